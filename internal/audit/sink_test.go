package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkRoundTrip(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first := New(EventTaskCreated, "task-1", map[string]interface{}{"description": "build a parser"})
	second := New(EventIterationStart, "task-1", map[string]interface{}{"iteration": 1})
	require.NoError(t, sink.Append(ctx, first))
	require.NoError(t, sink.Append(ctx, second))

	events, err := sink.ReadTrail(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTaskCreated, events[0].Type)
	assert.Equal(t, EventIterationStart, events[1].Type)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, "build a parser", events[0].Data["description"])
}

func TestFileSinkSeparatesTasks(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, New(EventTaskCreated, "task-a", nil)))
	require.NoError(t, sink.Append(ctx, New(EventTaskCreated, "task-b", nil)))

	a, err := sink.ReadTrail(ctx, "task-a")
	require.NoError(t, err)
	assert.Len(t, a, 1)
	assert.Equal(t, "task-a", a[0].TaskID)
}

func TestFileSinkMissingTrailIsEmpty(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	events, err := sink.ReadTrail(context.Background(), "never-written")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFileSinkConcurrentAppends(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				event := New(EventIterationComplete, "shared-task", map[string]interface{}{
					"writer": fmt.Sprintf("w%d", w),
				})
				assert.NoError(t, sink.Append(ctx, event))
			}
		}(w)
	}
	wg.Wait()

	events, err := sink.ReadTrail(ctx, "shared-task")
	require.NoError(t, err)
	assert.Len(t, events, writers*perWriter, "no append may be lost or torn")
}

func TestFileSinkSanitizesTaskID(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, New(EventTaskCreated, "../escape", nil)))

	events, err := sink.ReadTrail(ctx, "../escape")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "escape.jsonl"))
}

func TestBoltSinkRoundTrip(t *testing.T) {
	sink, err := NewBoltSink(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer sink.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		event := New(EventIterationComplete, "task-1", map[string]interface{}{"iteration": i})
		require.NoError(t, sink.Append(ctx, event))
	}

	events, err := sink.ReadTrail(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, float64(0), events[0].Data["iteration"], "events read back in append order")
	assert.Equal(t, float64(2), events[2].Data["iteration"])
}

func TestBoltSinkMissingBucketIsEmpty(t *testing.T) {
	sink, err := NewBoltSink(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer sink.Close()

	events, err := sink.ReadTrail(context.Background(), "never-written")
	require.NoError(t, err)
	assert.Empty(t, events)
}
