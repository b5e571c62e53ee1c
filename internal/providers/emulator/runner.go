package emulator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Process is a started emulator process
type Process interface {
	Pid() int
	Wait() error
	Kill() error
}

// Runner executes SDK tools. Run waits for completion; Start launches a
// long-lived process that outlives the calling request.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	Start(name string, args []string, env []string, log io.Writer) (Process, error)
}

// ExecRunner runs tools with os/exec
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %v: %w: %s", name, args, err, bytes.TrimSpace(out.Bytes()))
	}
	return out.Bytes(), nil
}

func (ExecRunner) Start(name string, args []string, env []string, log io.Writer) (Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), env...)
	if log != nil {
		cmd.Stdout = log
		cmd.Stderr = log
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int    { return p.cmd.Process.Pid }
func (p *execProcess) Wait() error { return p.cmd.Wait() }
func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }
