package notify

import (
	"context"
	"log/slog"
)

// LogGateway writes messages to a slog.Logger instead of delivering them.
// Used in development and when no SMS provider is configured.
type LogGateway struct {
	Logger *slog.Logger
}

// Send logs the rendered message at info level.
func (g LogGateway) Send(ctx context.Context, to Recipient, template TemplateID) error {
	text, err := Render(template)
	if err != nil {
		return err
	}

	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"member_id", to.MemberID,
		"template", template,
		"text", text,
	)
	return nil
}
