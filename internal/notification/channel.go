package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gymdesk/backend/internal/model"
)

// 通道标识
const (
	ChannelEmail    = "email"
	ChannelPush     = "push"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// AllChannels 全部已知通道，顺序即默认注册顺序
var AllChannels = []string{ChannelEmail, ChannelPush, ChannelSMS, ChannelWhatsApp}

// IsKnownChannel 是否为已知通道
func IsKnownChannel(name string) bool {
	for _, c := range AllChannels {
		if c == name {
			return true
		}
	}
	return false
}

// Channel 投递通道
// Send 不返回 error：投递失败在通道内部记录日志并返回 false
type Channel interface {
	Name() string
	// IsEnabledFor 用户是否为该事件类型打开了此通道
	IsEnabledFor(ctx context.Context, user *model.User, eventType EventType) bool
	// CanSend 已启用且用户具备投递前提（邮箱已验证 / 有手机号）
	CanSend(ctx context.Context, user *model.User, eventType EventType) bool
	Send(ctx context.Context, user *model.User, msg *Message) bool
}

// PreferenceChecker 通道查询偏好所需的最小能力，由 PreferenceStore 实现
type PreferenceChecker interface {
	IsChannelEnabled(ctx context.Context, userID string, eventType EventType, channel string) bool
}

// gate 各通道共用的偏好判断
type gate struct {
	name  string
	prefs PreferenceChecker
}

func (g gate) Name() string { return g.name }

func (g gate) IsEnabledFor(ctx context.Context, user *model.User, eventType EventType) bool {
	if user == nil || user.UserID == "" {
		return false
	}
	return g.prefs.IsChannelEnabled(ctx, user.UserID, eventType, g.name)
}

// deliver 执行一次投递，错误与 panic 统一记录为失败
func deliver(logger *zap.Logger, channel string, user *model.User, msg *Message, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logDeliveryFailure(logger, channel, user, msg, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()
	if err := fn(); err != nil {
		logDeliveryFailure(logger, channel, user, msg, err)
		return false
	}
	return true
}

func logDeliveryFailure(logger *zap.Logger, channel string, user *model.User, msg *Message, err error) {
	logger.Error("通知投递失败",
		zap.String("channel", channel),
		zap.String("user_id", user.UserID),
		zap.String("event_type", string(msg.Type)),
		zap.Error(err),
	)
}
