// Package invoker runs the external tools of the pipeline: the alignment
// generator, the a3m-to-pqt converter and the interpreter that executes the
// generated prediction driver.
//
// Invocations are synchronous. No timeout is imposed; the context only
// carries interrupt cancellation from the command line.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	common "github.com/Shirosaru/Chai-pipeline/utils"
)

// Runner starts a program and blocks until it exits.
// A non-zero exit must be reported as *common.ExternalToolError.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	Logger *log.Logger

	// When true, the tool's stdout and stderr are mapped to the current
	// process. Otherwise output is captured and logged at debug level.
	Verbose bool
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	if r.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}

	logger.Info("running command", "cmd", commandLine(name, args))
	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	if out.Len() > 0 {
		logger.Debug("command output", "tool", name, "output", strings.TrimSpace(out.String()))
	}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		logger.Debug("command failed", "tool", name, "exit", code, "duration_ms", dur.Milliseconds())
		return &common.ExternalToolError{Tool: name, Args: args, ExitCode: code, Err: err}
	}
	logger.Debug("command finished", "tool", name, "duration_ms", dur.Milliseconds())
	return nil
}

// DryRunner logs the commands it would run and reports success.
type DryRunner struct {
	Logger *log.Logger
}

func (r DryRunner) Run(ctx context.Context, name string, args ...string) error {
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Info("dry-run: skipping command", "cmd", commandLine(name, args))
	return ctx.Err()
}

// LookPath reports where name resolves on PATH, or an error if it does not.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func commandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
