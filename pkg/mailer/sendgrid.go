package mailer

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/config"
)

// SendGrid 基于 SendGrid v3 API 的邮件发送
type SendGrid struct {
	client *sendgrid.Client
	from   *sgmail.Email
	logger *zap.Logger
}

// NewSendGrid 创建 SendGrid 发送器
func NewSendGrid(cfg *config.MailConfig, logger *zap.Logger) *SendGrid {
	return &SendGrid{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   sgmail.NewEmail(cfg.FromName, cfg.From),
		logger: logger,
	}
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	res, err := s.client.SendWithContext(ctx, buildMessage(s.from, msg))
	if err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		s.logger.Error("SendGrid 返回错误",
			zap.Int("status", res.StatusCode),
			zap.String("body", res.Body),
		)
		return fmt.Errorf("发送邮件失败: HTTP %d", res.StatusCode)
	}
	return nil
}

// buildMessage 未提供 HTML 时由纯文本生成，正文含用户姓名，需转义后再嵌入
func buildMessage(from *sgmail.Email, msg Message) *sgmail.SGMailV3 {
	to := sgmail.NewEmail(msg.ToName, msg.ToEmail)
	body := msg.HTML
	if body == "" {
		body = "<p>" + strings.ReplaceAll(html.EscapeString(msg.Text), "\n", "<br>") + "</p>"
	}
	return sgmail.NewSingleEmail(from, msg.Subject, to, msg.Text, body)
}
