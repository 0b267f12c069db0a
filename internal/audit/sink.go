package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sink accepts audit events. Append is fire-and-forget at call sites: the
// loop logs append failures but never fails a run on one.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Trail is the read-back side, used only by the CLI.
type Trail interface {
	ReadTrail(ctx context.Context, taskID string) ([]Event, error)
}

// FileSink writes one JSON object per line to <dir>/<task-id>.jsonl.
// Each append is a single buffered write so concurrent task trails do not
// interleave within a record; a mutex serializes appends in-process.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

// NewFileSink creates the log directory if needed and returns the sink.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// DefaultLogDir returns ~/.aim/logs.
func DefaultLogDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".aim", "logs"), nil
}

// Append writes the event to the task's trail file.
func (s *FileSink) Append(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(event.TaskID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit trail: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// ReadTrail returns the task's events in append order. A missing trail is
// an empty trail, not an error. Lines that fail to parse are skipped so one
// torn write cannot hide the rest of the trail.
func (s *FileSink) ReadTrail(ctx context.Context, taskID string) ([]Event, error) {
	f, err := os.Open(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit trail: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("reading audit trail: %w", err)
	}
	return events, nil
}

func (s *FileSink) path(taskID string) string {
	// Task IDs are UUIDs, but sanitize anyway since they name files.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, taskID)
	return filepath.Join(s.dir, safe+".jsonl")
}
