package notification

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gymdesk/backend/internal/model"
)

// NotificationWriter 站内通知落库
type NotificationWriter interface {
	Create(ctx context.Context, n *model.Notification) error
}

// Publisher 实时推送，失败不影响站内记录
type Publisher interface {
	Publish(ctx context.Context, n *model.Notification) error
}

// PushChannel 站内通知通道：落库即视为投递成功，随后尽力推送到在线连接
type PushChannel struct {
	gate
	store     NotificationWriter
	publisher Publisher
	logger    *zap.Logger
}

// NewPushChannel 创建站内通知通道，publisher 可为 nil
func NewPushChannel(prefs PreferenceChecker, store NotificationWriter, publisher Publisher, logger *zap.Logger) *PushChannel {
	return &PushChannel{
		gate:      gate{name: ChannelPush, prefs: prefs},
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// CanSend 站内通知没有额外前提
func (c *PushChannel) CanSend(ctx context.Context, user *model.User, eventType EventType) bool {
	return c.IsEnabledFor(ctx, user, eventType)
}

func (c *PushChannel) Send(ctx context.Context, user *model.User, msg *Message) bool {
	if msg == nil || !c.CanSend(ctx, user, msg.Type) {
		return false
	}

	userID := user.UserID
	record := NewRecord(&userID, msg)
	ok := deliver(c.logger, c.name, user, msg, func() error {
		return c.store.Create(ctx, record)
	})
	if !ok {
		return false
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, record); err != nil {
			c.logger.Warn("站内通知实时推送失败",
				zap.String("user_id", userID),
				zap.String("notification_id", record.NotificationID),
				zap.Error(err),
			)
		}
	}
	return true
}

// NewRecord 由渲染结果构造通知记录，userID 为 nil 表示员工广播
func NewRecord(userID *string, msg *Message) *model.Notification {
	data := make(datatypes.JSONMap, len(msg.Data))
	for k, v := range msg.Data {
		data[k] = v
	}
	return &model.Notification{
		UserID:   userID,
		Type:     string(msg.Type),
		Title:    msg.Title,
		Message:  msg.Message,
		Data:     data,
		Priority: string(msg.Priority),
		Color:    msg.Color,
		Icon:     msg.Icon,
	}
}
