package mailer

import (
	"context"

	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/config"
)

// Message 邮件内容
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Text    string
	HTML    string
}

// Mailer 邮件发送接口
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New 配置了 SendGrid API Key 时使用 SendGrid，否则输出到日志
func New(cfg *config.MailConfig, logger *zap.Logger) Mailer {
	if cfg.SendGridAPIKey != "" {
		return NewSendGrid(cfg, logger)
	}
	logger.Info("未配置 SendGrid，邮件将输出到日志")
	return NewConsole(logger)
}
