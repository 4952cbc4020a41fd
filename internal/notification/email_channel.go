package notification

import (
	"context"

	"go.uber.org/zap"

	"gymdesk/backend/internal/model"
)

// EmailTemplate 通知邮件使用的模板名
const EmailTemplate = "notification"

// Mailer 邮件发送能力，由 pkg/mail 的 Mailer / LogMailer 实现
type Mailer interface {
	SendMail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error
}

// EmailChannel 邮件通道，仅投递给已验证邮箱的用户
type EmailChannel struct {
	gate
	mailer Mailer
	logger *zap.Logger
}

// NewEmailChannel 创建邮件通道
func NewEmailChannel(prefs PreferenceChecker, mailer Mailer, logger *zap.Logger) *EmailChannel {
	return &EmailChannel{
		gate:   gate{name: ChannelEmail, prefs: prefs},
		mailer: mailer,
		logger: logger,
	}
}

func (c *EmailChannel) CanSend(ctx context.Context, user *model.User, eventType EventType) bool {
	return c.IsEnabledFor(ctx, user, eventType) && user.HasVerifiedEmail()
}

func (c *EmailChannel) Send(ctx context.Context, user *model.User, msg *Message) bool {
	if msg == nil || !c.CanSend(ctx, user, msg.Type) {
		return false
	}
	data := map[string]interface{}{
		"title":   msg.Title,
		"message": msg.Message,
		"color":   msg.Color,
		"name":    user.Name,
		"data":    msg.Data,
	}
	return deliver(c.logger, c.name, user, msg, func() error {
		return c.mailer.SendMail(ctx, user.Email, msg.Title, EmailTemplate, data)
	})
}
