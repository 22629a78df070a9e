// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/config"
)

// ProcessSpec identifies the account a worker process serves.
type ProcessSpec struct {
	AccountID string
	Kind      string
	Port      int
}

// Process is a running worker.
type Process interface {
	Pid() int
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader

	// Wait blocks until the process exits and returns its exit code.
	// Stdout and Stderr must be drained first.
	Wait() (int, error)

	// Terminate asks the process to stop.
	Terminate() error
	Kill() error
}

// Launcher starts worker processes.
type Launcher interface {
	Launch(spec ProcessSpec) (Process, error)
}

// ExecLauncher runs workers as child processes.
type ExecLauncher struct {
	// Binary defaults to the running executable.
	Binary string
	Args   []string

	// Env is appended to the parent environment before the account keys.
	Env []string
}

// Launch starts the worker with ACCOUNT_ID, ACCOUNT_KIND and PORT set.
func (l *ExecLauncher) Launch(spec ProcessSpec) (Process, error) {
	bin := l.Binary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve worker binary: %w", err)
		}
		bin = exe
	}

	cmd := exec.Command(bin, l.Args...) //nolint:gosec // binary and args come from configuration
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Env = append(cmd.Env,
		config.EnvAccountID+"="+spec.AccountID,
		config.EnvAccountKind+"="+spec.Kind,
		config.EnvPort+"="+strconv.Itoa(spec.Port),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }
func (p *execProcess) Terminate() error      { return p.cmd.Process.Signal(syscall.SIGTERM) }
func (p *execProcess) Kill() error           { return p.cmd.Process.Kill() }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return p.cmd.ProcessState.ExitCode(), nil
	}
	return -1, err
}
