package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"
)

// Runner executes argv in dir and returns the combined stdout and stderr and
// the exit code. err is reserved for processes that could not be started;
// a non-zero exit is reported through the exit code alone.
type Runner func(ctx context.Context, dir string, argv []string) (output []byte, exitCode int, err error)

// DefaultMaxOutput caps captured output per phase.
const DefaultMaxOutput = 4 << 20

// ExecRunner returns a Runner backed by os/exec. Output beyond maxBytes is
// dropped; the process keeps running.
func ExecRunner(maxBytes int) Runner {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutput
	}
	return func(ctx context.Context, dir string, argv []string) ([]byte, int, error) {
		if len(argv) == 0 {
			return nil, -1, errors.New("empty command")
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = dir
		out := &limitedBuffer{max: maxBytes}
		cmd.Stdout = out
		cmd.Stderr = out
		cmd.WaitDelay = 2 * time.Second

		err := cmd.Run()
		if err == nil {
			return out.Bytes(), 0, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out.Bytes(), exitErr.ExitCode(), nil
		}
		if ctx.Err() != nil {
			return out.Bytes(), -1, nil
		}
		return out.Bytes(), -1, err
	}
}

// limitedBuffer is a goroutine-safe writer that keeps the first max bytes.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if remaining := l.max - l.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			l.buf.Write(p[:remaining])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}

func (l *limitedBuffer) Bytes() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.buf.Bytes()...)
}
