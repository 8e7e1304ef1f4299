package remote

import (
	"bytes"
	"context"
	"os/exec"
)

// Command is an external command invocation.
type Command struct {
	Program string
	Dir     string
	Args    []string
}

// Runner executes external commands.
type Runner interface {
	// Run executes cmd and returns its stdout and stderr separately.
	Run(ctx context.Context, cmd Command) (stdout, stderr []byte, err error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a new command runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Ensure ExecRunner implements Runner interface.
var _ Runner = (*ExecRunner)(nil)

// Run executes the command. The process is killed when ctx is done.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, []byte, error) {
	// #nosec G204 - Program comes from workspace configuration
	execCmd := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	if cmd.Dir != "" {
		execCmd.Dir = cmd.Dir
	}
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr
	err := execCmd.Run()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return stdout.Bytes(), stderr.Bytes(), err
}
