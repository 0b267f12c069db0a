package agent

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultDelegateTimeout bounds a single CLI invocation.
	DefaultDelegateTimeout = 10 * time.Minute

	// maxCapturedLines caps stdout/stderr capture to prevent memory
	// exhaustion from a runaway subprocess.
	maxCapturedLines = 10000
)

// DelegateConfig configures a CLI-backed agent.
type DelegateConfig struct {
	// Command is the executable to invoke. Defaults to "claude".
	Command string

	// Args are passed before the prompt argument.
	Args []string

	// WorkingDir is the directory the subprocess runs in.
	WorkingDir string

	// Timeout bounds a single invocation. Defaults to DefaultDelegateTimeout.
	Timeout time.Duration
}

// DelegateAgent satisfies Port by shelling out to a local coding-agent CLI
// in single-shot mode. The composed prompt is passed as the final argument
// and stdout is returned as the output.
type DelegateAgent struct {
	capability Capability
	config     DelegateConfig
}

// NewDelegateAgent creates a CLI-backed agent for the given capability.
func NewDelegateAgent(capability Capability, cfg DelegateConfig) *DelegateAgent {
	if !capability.IsValid() {
		capability = CapGeneral
	}
	if cfg.Command == "" {
		cfg.Command = "claude"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDelegateTimeout
	}
	return &DelegateAgent{capability: capability, config: cfg}
}

// Capability returns the capability this agent was created for.
func (d *DelegateAgent) Capability() Capability { return d.capability }

// Execute runs the CLI with the composed prompt and returns captured stdout.
func (d *DelegateAgent) Execute(ctx context.Context, task Task) (string, error) {
	if strings.TrimSpace(task.Description) == "" {
		return "", Fatal(fmt.Errorf("task %s has no description", task.ID))
	}

	runCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	prompt := systemPrompt(d.capability, task) + "\n\n" + userPrompt(task)

	args := append(append([]string{}, d.config.Args...), prompt)
	cmd := exec.CommandContext(runCtx, d.config.Command, args...)
	cmd.Dir = d.config.WorkingDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", Fatal(fmt.Errorf("create stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", Fatal(fmt.Errorf("create stderr pipe: %w", err))
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", Fatal(fmt.Errorf("start %s: %w", d.config.Command, err))
	}

	var wg sync.WaitGroup
	var outLines, errLines []string
	wg.Add(2)
	go func() {
		defer wg.Done()
		outLines = captureLines(stdout)
	}()
	go func() {
		defer wg.Done()
		errLines = captureLines(stderr)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return "", Transient(fmt.Errorf("%s timed out after %v", d.config.Command, d.config.Timeout))
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if waitErr != nil {
		exitCode := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		detail := strings.Join(tail(errLines, 5), "; ")
		if detail == "" {
			detail = waitErr.Error()
		}
		return "", classifyExit(d.config.Command, exitCode, detail)
	}

	slog.Debug("delegate agent completed",
		"command", d.config.Command,
		"capability", d.capability,
		"duration", duration,
		"output_lines", len(outLines))

	output := strings.TrimSpace(strings.Join(outLines, "\n"))
	if output == "" {
		return "", Transient(fmt.Errorf("%s produced no output", d.config.Command))
	}
	return output, nil
}

// captureLines reads lines from r up to maxCapturedLines, draining the rest.
func captureLines(r interface{ Read([]byte) (int, error) }) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(lines) < maxCapturedLines {
			lines = append(lines, scanner.Text())
		}
	}
	return lines
}

// classifyExit maps a nonzero exit into the transient/fatal taxonomy.
// Exit 1 from a CLI agent is usually a prompt-level failure worth retrying;
// 126/127 mean the binary is missing or not executable and will never work.
func classifyExit(command string, exitCode int, detail string) error {
	err := fmt.Errorf("%s exited %d: %s", command, exitCode, detail)
	switch exitCode {
	case 126, 127:
		return Fatal(err)
	}
	lower := strings.ToLower(detail)
	if strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") {
		return Fatal(err)
	}
	return Transient(err)
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
