// Package optimize invokes the external server-optimization action that
// reconfigures services for the machine's current capacity.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds the optimization subprocess when no timeout is
// configured. A timeout counts as a failed cycle and is retried on the
// next poll.
const DefaultTimeout = 10 * time.Minute

// Optimizer runs the downstream optimization action. Exit contract:
// nil = success, non-nil = failure; no other output contract is assumed.
type Optimizer interface {
	Run(ctx context.Context) error
}

// CommandOptimizer runs an external executable with the --optimize flag.
type CommandOptimizer struct {
	command string
	timeout time.Duration
	logger  *slog.Logger

	// execCommand is overridable for testing.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Compile-time check: CommandOptimizer satisfies the Optimizer interface.
var _ Optimizer = (*CommandOptimizer)(nil)

// NewCommandOptimizer creates an optimizer invoking command. A zero timeout
// uses DefaultTimeout. If logger is nil, a no-op logger is used.
func NewCommandOptimizer(command string, timeout time.Duration, logger *slog.Logger) *CommandOptimizer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandOptimizer{
		command:     command,
		timeout:     timeout,
		logger:      logger,
		execCommand: exec.CommandContext,
	}
}

// Run invokes the optimization executable and waits for it to finish.
// Exit code 0 is success; a nonzero exit, a missing executable, or hitting
// the timeout all report failure.
func (o *CommandOptimizer) Run(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	o.logger.Info("running optimization", "command", o.command, "timeout", o.timeout)
	start := time.Now()

	cmd := o.execCommand(runCtx, o.command, "--optimize")
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("optimize: %s timed out after %s", o.command, o.timeout)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("optimize: %s exited with code %d: %s",
				o.command, exitErr.ExitCode(), strings.TrimSpace(string(out)))
		}
		return fmt.Errorf("optimize: run %s: %w", o.command, err)
	}

	o.logger.Info("optimization completed", "command", o.command, "duration", elapsed.Round(time.Second))
	return nil
}
