package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"bitbucket.org/creachadair/shell"
	log "github.com/sirupsen/logrus"
)

// DefaultSSHCommand is used when no ssh command line is configured.
const DefaultSSHCommand = "ssh -o BatchMode=yes -o ConnectTimeout=10"

// Shell runs commands through the ssh client binary, or through "sh -c" for
// the local host.
type Shell struct {
	sshArgv []string
}

// NewShell parses sshCommand (e.g. "ssh -i /root/.ssh/lcmc -l root") into an
// argument vector.
func NewShell(sshCommand string) (*Shell, error) {
	if strings.TrimSpace(sshCommand) == "" {
		sshCommand = DefaultSSHCommand
	}
	argv, ok := shell.Split(sshCommand)
	if !ok || len(argv) == 0 {
		return nil, fmt.Errorf("invalid ssh command line %q", sshCommand)
	}
	return &Shell{sshArgv: argv}, nil
}

func isLocal(host string) bool {
	return host == "" || host == "localhost" || host == "127.0.0.1"
}

func (s *Shell) command(ctx context.Context, host, command string) *exec.Cmd {
	if isLocal(host) {
		return exec.CommandContext(ctx, "sh", "-c", command)
	}
	args := append(append([]string{}, s.sshArgv[1:]...), host, "--", command)
	return exec.CommandContext(ctx, s.sshArgv[0], args...)
}

// Execute runs a command and returns its stdout. stderr is logged and
// attached to the ExitError.
func (s *Shell) Execute(ctx context.Context, host, command string) (Result, error) {
	return s.execute(ctx, host, command, nil)
}

// ExecuteInput runs a command with input as its stdin. Over ssh the input is
// forwarded to the remote command.
func (s *Shell) ExecuteInput(ctx context.Context, host, command string, input io.Reader) (Result, error) {
	return s.execute(ctx, host, command, input)
}

func (s *Shell) execute(ctx context.Context, host, command string, input io.Reader) (Result, error) {
	cmd := s.command(ctx, host, command)
	cmd.Stdin = input
	contextLog := log.WithFields(log.Fields{"host": host, "command": command})

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, err
	}
	defer stdout.Close()

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, err
	}
	defer stderr.Close()

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start command: %w", err)
	}

	var stdoutSlurp []byte
	var stderrSlurp []byte
	ioWaitGroup := &sync.WaitGroup{}
	ioWaitGroup.Add(2)
	go func() {
		stdoutSlurp, _ = io.ReadAll(stdout)
		ioWaitGroup.Done()
	}()
	go func() {
		stderrSlurp, _ = io.ReadAll(stderr)
		ioWaitGroup.Done()
	}()
	ioWaitGroup.Wait()

	if len(stdoutSlurp) >= 1 {
		contextLog.Trace("command stdout output: ", string(stdoutSlurp))
	} else {
		contextLog.Trace("No stdout output")
	}
	if len(stderrSlurp) >= 1 {
		contextLog.Trace("command stderr output: ", string(stderrSlurp))
	}

	res := Result{Output: string(stdoutSlurp)}
	err = cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{
				Host:     host,
				Command:  command,
				ExitCode: res.ExitCode,
				Stderr:   string(stderrSlurp),
			}
		}
		return res, err
	}

	return res, nil
}

// ExecuteStreaming starts a long running command, e.g. "drbdsetup events".
func (s *Shell) ExecuteStreaming(ctx context.Context, host, command string, onLine func(string)) (*Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := s.command(ctx, host, command)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	handle := NewHandle(cancel)
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
		scanErr := scanner.Err()
		waitErr := cmd.Wait()
		cancel()
		if scanErr != nil {
			handle.Finish(fmt.Errorf("error reading command output: %w", scanErr))
			return
		}
		if waitErr != nil {
			handle.Finish(fmt.Errorf("command finished with error: %w", waitErr))
			return
		}
		handle.Finish(nil)
	}()

	return handle, nil
}
