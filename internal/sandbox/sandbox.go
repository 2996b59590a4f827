package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultOutputLimit = 16 << 10
	waitDelay          = 500 * time.Millisecond
)

var ErrTimeout = errors.New("command timed out")

// secretEnvMarkers names environment variables that are never passed to
// executed commands.
var secretEnvMarkers = []string{"KEY", "TOKEN", "SECRET", "PASSWORD", "PASSWD", "DSN", "CREDENTIAL"}

type Result struct {
	Output    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Runner executes shell commands with a hard deadline. On timeout the whole
// process group is killed, so background children do not outlive the call.
type Runner struct {
	workDir     string
	shell       string
	timeout     time.Duration
	outputLimit int
}

type Option func(*Runner)

func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithOutputLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.outputLimit = n
		}
	}
}

func WithShell(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.shell = path
		}
	}
}

func NewRunner(workDir string, opts ...Option) (*Runner, error) {
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		workDir = wd
	}
	info, err := os.Stat(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat working directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("working directory %s is not a directory", workDir)
	}

	r := &Runner{
		workDir:     workDir,
		shell:       "/bin/sh",
		timeout:     DefaultTimeout,
		outputLimit: DefaultOutputLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runner) Timeout() time.Duration { return r.timeout }

// Run executes command through the shell. A non-zero exit status is reported
// in Result.ExitCode, not as an error; a timeout returns ErrTimeout along
// with whatever output was captured.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out := &limitedBuffer{limit: r.outputLimit}

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Dir = r.workDir
	cmd.Env = scrubEnv(os.Environ())
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	start := time.Now()
	err := cmd.Run()

	res := Result{
		Output:    out.String(),
		Truncated: out.truncated,
		Duration:  time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		return res, fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to run command: %w", err)
	}
	return res, nil
}

func scrubEnv(env []string) []string {
	result := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		upper := strings.ToUpper(name)
		secret := false
		for _, marker := range secretEnvMarkers {
			if strings.Contains(upper, marker) {
				secret = true
				break
			}
		}
		if !secret {
			result = append(result, kv)
		}
	}
	return result
}

// limitedBuffer keeps the first limit bytes and silently discards the rest,
// so a chatty command never blocks on a full pipe.
type limitedBuffer struct {
	buf       []byte
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
			b.truncated = true
		} else {
			b.buf = append(b.buf, p...)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}
