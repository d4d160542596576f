// Package ipcmd runs the iproute2 "ip" command and reports its exit status
// and output streams.
package ipcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Result is the outcome of one command invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports a zero exit code.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Runner executes "ip" with the given arguments. An error means the process
// could not be run at all; a non-zero exit is reported in Result.
type Runner interface {
	Run(ctx context.Context, args ...string) (Result, error)
}

// ExecRunner runs the ip binary through os/exec.
type ExecRunner struct {
	Binary  string        // default "ip"
	Timeout time.Duration // per invocation; 0 = none
}

// NewExecRunner returns a runner for binary with a per-call timeout.
func NewExecRunner(binary string, timeout time.Duration) *ExecRunner {
	if binary == "" {
		binary = "ip"
	}
	return &ExecRunner{Binary: binary, Timeout: timeout}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	bin := r.Binary
	if bin == "" {
		bin = "ip"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return res, fmt.Errorf("%s %s: %w", bin, strings.Join(args, " "), err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	slog.Debug("ip command finished", "args", args, "exit", res.ExitCode)
	return res, nil
}

// CommandError reports an unexpected non-zero exit.
type CommandError struct {
	Args   []string
	Result Result
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ip %s: exit %d: %s",
		strings.Join(e.Args, " "), e.Result.ExitCode, strings.TrimSpace(e.Result.Stderr))
}
