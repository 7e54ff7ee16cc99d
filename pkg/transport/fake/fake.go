// Package fake provides a scripted transport.Executor for tests.
package fake

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/LINBIT/lcmc/pkg/transport"
)

// Response is returned for commands whose text contains Match.
type Response struct {
	Host     string
	Match    string
	Output   string
	ExitCode int
	Err      error
	// Lines are delivered by ExecuteStreaming.
	Lines []string
}

// Call records one invocation.
type Call struct {
	Host    string
	Command string
	// Input is what ExecuteInput read from its reader.
	Input string
}

// Exec answers commands from a list of canned responses. The first response
// whose Host (if set) and Match fit is used.
type Exec struct {
	mu        sync.Mutex
	responses []Response
	calls     []Call
}

var _ transport.Executor = &Exec{}

// Expect adds canned responses.
func (e *Exec) Expect(rs ...Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses = append(e.responses, rs...)
}

// Calls returns all recorded invocations.
func (e *Exec) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

func (e *Exec) find(host, command, input string) (Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Host: host, Command: command, Input: input})
	for _, r := range e.responses {
		if r.Host != "" && r.Host != host {
			continue
		}
		if strings.Contains(command, r.Match) {
			return r, nil
		}
	}
	return Response{}, fmt.Errorf("unexpected command %q on %s", command, host)
}

func (e *Exec) Execute(ctx context.Context, host, command string) (transport.Result, error) {
	return e.execute(host, command, "")
}

func (e *Exec) ExecuteInput(ctx context.Context, host, command string, input io.Reader) (transport.Result, error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return transport.Result{}, err
	}
	return e.execute(host, command, string(data))
}

func (e *Exec) execute(host, command, input string) (transport.Result, error) {
	r, err := e.find(host, command, input)
	if err != nil {
		return transport.Result{}, err
	}
	if r.Err != nil {
		return transport.Result{}, r.Err
	}
	res := transport.Result{ExitCode: r.ExitCode, Output: r.Output}
	if r.ExitCode != 0 {
		return res, &transport.ExitError{Host: host, Command: command, ExitCode: r.ExitCode}
	}
	return res, nil
}

func (e *Exec) ExecuteStreaming(ctx context.Context, host, command string, onLine func(string)) (*transport.Handle, error) {
	r, err := e.find(host, command, "")
	if err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	ctx, cancel := context.WithCancel(ctx)
	h := transport.NewHandle(cancel)
	go func() {
		for _, l := range r.Lines {
			select {
			case <-ctx.Done():
				h.Finish(nil)
				return
			default:
			}
			onLine(l)
		}
		<-ctx.Done()
		h.Finish(nil)
	}()
	return h, nil
}
