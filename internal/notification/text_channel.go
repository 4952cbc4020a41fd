package notification

import (
	"context"

	"go.uber.org/zap"

	"gymdesk/backend/internal/model"
	"gymdesk/backend/pkg/sms"
)

// TextChannel 基于手机号的文本通道（短信 / WhatsApp）
type TextChannel struct {
	gate
	provider sms.Provider
	logger   *zap.Logger
}

// NewSMSChannel 创建短信通道
func NewSMSChannel(prefs PreferenceChecker, provider sms.Provider, logger *zap.Logger) *TextChannel {
	return newTextChannel(ChannelSMS, prefs, provider, logger)
}

// NewWhatsAppChannel 创建 WhatsApp 通道
func NewWhatsAppChannel(prefs PreferenceChecker, provider sms.Provider, logger *zap.Logger) *TextChannel {
	return newTextChannel(ChannelWhatsApp, prefs, provider, logger)
}

func newTextChannel(name string, prefs PreferenceChecker, provider sms.Provider, logger *zap.Logger) *TextChannel {
	return &TextChannel{
		gate:     gate{name: name, prefs: prefs},
		provider: provider,
		logger:   logger,
	}
}

func (c *TextChannel) CanSend(ctx context.Context, user *model.User, eventType EventType) bool {
	return c.IsEnabledFor(ctx, user, eventType) && user.HasPhone()
}

func (c *TextChannel) Send(ctx context.Context, user *model.User, msg *Message) bool {
	if msg == nil || !c.CanSend(ctx, user, msg.Type) {
		return false
	}
	text := msg.Title + ": " + msg.Message
	return deliver(c.logger, c.name, user, msg, func() error {
		return c.provider.Send(ctx, user.Phone, text)
	})
}
