package auth

import (
	"context"
	"time"
)

// Message is a transactional email sent by the auth workflows.
// Template names a mail template owned by the delivering system,
// Data carries the interpolation values (tokens, names, links).
type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]any
}

type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, msg Message) error {
	return nil
}

// logMailer writes messages to the logger instead of delivering
// them. Useful in development and in tests that only care about
// the workflow side effects.
type logMailer struct {
	logger Logger
}

func NewLogMailer(logger Logger) Mailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &logMailer{logger: logger}
}

func (m *logMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info("mail: to=%s subject=%q template=%s", msg.To, msg.Subject, msg.Template)
	return nil
}

func normalizeMailer(mailer Mailer) Mailer {
	if mailer == nil {
		return noopMailer{}
	}
	return mailer
}

// dispatchMail sends a message outside the caller's transaction and
// request lifetime. Delivery failures are logged, never surfaced:
// the workflow already committed and the user can re-request the
// email.
func dispatchMail(mailer Mailer, logger Logger, msg Message, timeout time.Duration) {
	if logger == nil {
		logger = defLogger{}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := normalizeMailer(mailer).Send(ctx, msg); err != nil {
			logger.Error("mail delivery failed: to=%s template=%s error=%v", msg.To, msg.Template, err)
		}
	}()
}
