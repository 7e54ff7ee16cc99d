// Package transport defines how the model layer runs commands on cluster
// hosts.
//
// The model never talks to hosts directly. It hands command strings to an
// Executor and parses whatever text comes back. Timeouts and cancellation are
// the Executor's business and are driven by the context passed in.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"bitbucket.org/creachadair/shell"
)

// Exit codes some callers tolerate.
const (
	ExitSuccess    = 0
	ExitNoSuchFile = 2
)

// Result is the captured output of a command.
type Result struct {
	ExitCode int
	Output   string
}

// ExitError is returned when a command ran but exited with a nonzero code.
// The Result returned next to it still carries the output.
type ExitError struct {
	Host     string
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q on %s exited with code %d", e.Command, e.Host, e.ExitCode)
}

// IsExitCode reports whether err is an ExitError with the given code.
func IsExitCode(err error, code int) bool {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode == code
	}
	return false
}

// Executor runs commands on named hosts.
type Executor interface {
	// Execute runs command on host and blocks until it exits.
	Execute(ctx context.Context, host, command string) (Result, error)
	// ExecuteInput is Execute with input fed to the standard input of
	// command. Payloads of any size travel this way, never in the command
	// line.
	ExecuteInput(ctx context.Context, host, command string, input io.Reader) (Result, error)
	// ExecuteStreaming starts command on host and calls onLine for every line
	// of output, in order, from a single goroutine.
	ExecuteStreaming(ctx context.Context, host, command string, onLine func(string)) (*Handle, error)
}

// Command builds a shell command string with every argument quoted.
func Command(name string, args ...string) string {
	return shell.Join(append([]string{name}, args...))
}

// Handle controls a running stream.
type Handle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	errMu    sync.Mutex
	err      error
	canceled bool
}

// NewHandle wraps a cancel function. Executors call Finish when the stream
// has ended.
func NewHandle(cancel context.CancelFunc) *Handle {
	return &Handle{cancel: cancel, done: make(chan struct{})}
}

// Cancel stops the stream. Calling it on a stream that already stopped, or
// calling it twice, does nothing.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.errMu.Lock()
	h.canceled = true
	h.errMu.Unlock()
	h.cancel()
}

// Finish records the terminal error of the stream and wakes up waiters.
func (h *Handle) Finish(err error) {
	h.once.Do(func() {
		h.errMu.Lock()
		if !h.canceled {
			h.err = err
		}
		h.errMu.Unlock()
		close(h.done)
	})
}

// Done is closed when the stream ended.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the stream ended and returns its error. A canceled stream
// returns nil.
func (h *Handle) Wait() error {
	<-h.done
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}
