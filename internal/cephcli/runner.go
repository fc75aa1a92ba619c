package cephcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	utilexec "k8s.io/utils/exec"

	"github.com/devzero-inc/rbd-label-exporter/internal/metrics"
)

// Command is a single CLI invocation
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result holds the outcome of a command. A nonzero ExitCode is a normal
// outcome; Err is only set when the process could not be run at all.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Err      error
}

// Success reports whether the command ran and exited with status 0
func (r Result) Success() bool {
	return r.ExitCode == 0 && r.Err == nil
}

// Runner executes cluster CLI commands
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

type execRunner struct {
	exec    utilexec.Interface
	log     logr.Logger
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewRunner returns a Runner backed by exec. A zero timeout disables the
// per-command deadline.
func NewRunner(exec utilexec.Interface, log logr.Logger, timeout time.Duration, m *metrics.Metrics) Runner {
	return &execRunner{
		exec:    exec,
		log:     log,
		timeout: timeout,
		metrics: m,
	}
}

func (r *execRunner) Run(ctx context.Context, c Command) Result {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := r.exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.SetStdout(&stdout)
	cmd.SetStderr(&stderr)

	r.log.V(1).Info("Running command", "command", c.String())
	err := cmd.Run()

	res := Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if err != nil {
		var exitErr utilexec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
		} else {
			res.ExitCode = -1
			res.Err = err
		}
		// Killed by the deadline or by shutdown
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.ExitCode = -1
			res.Err = fmt.Errorf("command did not complete: %w", ctxErr)
		}
	}

	if !res.Success() {
		r.log.Error(res.Err, "Command failed",
			"command", c.String(),
			"exitCode", res.ExitCode,
			"stdout", string(res.Stdout),
			"stderr", string(res.Stderr))
		r.metrics.CommandFailures.WithLabelValues(c.Name).Inc()
	}

	return res
}
