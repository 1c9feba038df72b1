package mailer

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Console 将邮件写入日志，并保留已发送记录
type Console struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewConsole 创建日志邮件发送器
func NewConsole(logger *zap.Logger) *Console {
	return &Console{logger: logger}
}

func (c *Console) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()

	c.logger.Info("邮件（未实际发送）",
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}

// Sent 返回已发送邮件的副本
func (c *Console) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}
