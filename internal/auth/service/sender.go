package service

import (
	"context"
	"log/slog"

	"medfayda/pkg/platform/privacy"
)

// LogSender is a CodeSender for development deployments without an SMS
// gateway. The code is written to the log only when revealCode is set.
type LogSender struct {
	logger     *slog.Logger
	revealCode bool
}

func NewLogSender(logger *slog.Logger, revealCode bool) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, revealCode: revealCode}
}

func (l *LogSender) SendCode(ctx context.Context, phone, code string) error {
	args := []any{"phone", privacy.MaskPhone(phone)}
	if l.revealCode {
		args = append(args, "code", code)
	}
	l.logger.InfoContext(ctx, "verification code issued", args...)
	return nil
}
