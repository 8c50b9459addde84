package service

import (
	"context"

	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
)

type demoMessage struct {
	sender  string
	subject string
	body    string
}

var demoMessages = []demoMessage{
	{
		sender:  "welcome@temp-mail.org",
		subject: "Welcome to Temporary Mail!",
		body:    "<p>This is a demo welcome email.</p><p>Enjoy your stay ✨</p>",
	},
	{
		sender:  "news@temp-mail.org",
		subject: "Get Started",
		body:    "<b>Your inbox is ready to receive mails.</b><br>Use it anywhere!",
	},
}

// SeedDemoMessages 返回向新收件箱写入演示邮件的回调。
func SeedDemoMessages(messages *MessageService, logger *zap.Logger) CreateHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, inbox *domain.Inbox) {
		for _, demo := range demoMessages {
			if _, err := messages.Save(ctx, inbox.ID, demo.sender, demo.subject, demo.body); err != nil {
				logger.Warn("failed to seed demo message",
					zap.String("inbox_id", inbox.ID),
					zap.String("subject", demo.subject),
					zap.Error(err),
				)
			}
		}
	}
}
