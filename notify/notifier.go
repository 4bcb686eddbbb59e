package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// sendTimeout bounds a single transport attempt so a wedged MTA cannot
// stall the monitor loop.
const sendTimeout = 30 * time.Second

// Notifier delivers a notification of a given type with a message body.
type Notifier interface {
	Notify(ctx context.Context, typ, body string) error
}

// transport describes one mail transport agent candidate. args builds the
// command line; stdin builds the message piped to the process.
type transport struct {
	binary string
	args   func(recipient, subject string) []string
	stdin  func(recipient, subject, body string) string
}

// transports lists the mail agents tried in order. The first binary found
// on PATH that exits successfully wins.
var transports = []transport{
	{
		binary: "mail",
		args:   func(to, subj string) []string { return []string{"-s", subj, to} },
		stdin:  func(_, _, body string) string { return body + "\n" },
	},
	{
		binary: "mailx",
		args:   func(to, subj string) []string { return []string{"-s", subj, to} },
		stdin:  func(_, _, body string) string { return body + "\n" },
	},
	{
		binary: "sendmail",
		args:   func(to, _ string) []string { return []string{"-t"} },
		stdin: func(to, subj, body string) string {
			return fmt.Sprintf("To: %s\nSubject: %s\n\n%s\n", to, subj, body)
		},
	},
	{
		binary: "msmtp",
		args:   func(to, _ string) []string { return []string{to} },
		stdin: func(to, subj, body string) string {
			return fmt.Sprintf("To: %s\nSubject: %s\n\n%s\n", to, subj, body)
		},
	},
	{
		binary: "mutt",
		args:   func(to, subj string) []string { return []string{"-s", subj, "--", to} },
		stdin:  func(_, _, body string) string { return body + "\n" },
	},
}

// MailNotifier sends notifications by piping the message body to the first
// installed mail transport agent that succeeds.
type MailNotifier struct {
	recipient string
	logger    *slog.Logger

	// Overridable for testing.
	lookPath    func(file string) (string, error)
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Compile-time check: MailNotifier satisfies the Notifier interface.
var _ Notifier = (*MailNotifier)(nil)

// NewMailNotifier creates a notifier addressing the given recipient.
// If logger is nil, a no-op logger is used.
func NewMailNotifier(recipient string, logger *slog.Logger) *MailNotifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MailNotifier{
		recipient:   recipient,
		logger:      logger,
		lookPath:    exec.LookPath,
		execCommand: exec.CommandContext,
	}
}

// Notify attempts delivery through each known transport in order and returns
// nil on the first success. Transports that are not installed or exit
// nonzero are skipped with a debug log. An error is returned only when every
// transport fails.
func (n *MailNotifier) Notify(ctx context.Context, typ, body string) error {
	subject := Subject(typ)

	var lastErr error
	for _, t := range transports {
		path, err := n.lookPath(t.binary)
		if err != nil {
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		cmd := n.execCommand(sendCtx, path, t.args(n.recipient, subject)...)
		cmd.Stdin = strings.NewReader(t.stdin(n.recipient, subject, body))

		err = cmd.Run()
		cancel()
		if err != nil {
			n.logger.Debug("mail transport failed, trying next",
				"transport", t.binary, "error", err)
			lastErr = fmt.Errorf("notify: %s: %w", t.binary, err)
			continue
		}

		n.logger.Info("notification sent",
			"type", typ, "transport", t.binary, "recipient", n.recipient)
		return nil
	}

	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("notify: no mail transport agent installed")
}

// Subject derives the mail subject line for a notification type.
func Subject(typ string) string {
	switch typ {
	case TypeHardwareChange:
		return "[hardwatch] hardware change detected"
	case TypeOptimizationCompleted:
		return "[hardwatch] server optimization completed"
	case TypeTestEmail:
		return "[hardwatch] test notification"
	default:
		return "[hardwatch] " + typ
	}
}
