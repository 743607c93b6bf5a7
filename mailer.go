package accounts

import "context"

// Mailer delivers transactional mail. Implementations sit outside this
// package; callers treat delivery as best-effort and never block a request on
// it.
type Mailer interface {
	Send(ctx context.Context, to, template string, params map[string]any) error
}

// NoopMailer discards all mail. Useful for tests and environments without an
// outbound mail provider.
type NoopMailer struct{}

func (NoopMailer) Send(ctx context.Context, to, template string, params map[string]any) error {
	return nil
}

// LogMailer writes mail to the logger instead of delivering it. Handy in
// development.
type LogMailer struct {
	Logger Logger
}

func (m LogMailer) Send(ctx context.Context, to, template string, params map[string]any) error {
	logger := m.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("mail %s -> %s %v", template, to, params)
	return nil
}
