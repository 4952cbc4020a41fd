package notification

import (
	"context"
	"errors"

	"gymdesk/backend/internal/model"
	"gymdesk/backend/pkg/ws"
)

// WSEventNotification 前端订阅的实时事件名
const WSEventNotification = "notification.created"

// HubPublisher 通过 WebSocket Hub 推送新通知
type HubPublisher struct {
	hub *ws.Hub
}

// NewHubPublisher 创建 HubPublisher
func NewHubPublisher(hub *ws.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Publish 用户通知推给本人，广播通知推给全部在线员工；用户离线不算失败
func (p *HubPublisher) Publish(_ context.Context, n *model.Notification) error {
	if n.IsBroadcast() {
		return p.hub.SendToStaff(WSEventNotification, n)
	}
	err := p.hub.SendToUser(*n.UserID, WSEventNotification, n)
	if errors.Is(err, ws.ErrNoConnection) {
		return nil
	}
	return err
}
