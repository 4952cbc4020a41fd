package handler

import (
	"go.uber.org/zap"

	"gymdesk/backend/internal/service"
	"gymdesk/backend/pkg/ws"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Notification *NotificationHandler
	Realtime     *RealtimeHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, hub *ws.Hub, allowOrigins []string, logger *zap.Logger) *Handler {
	return &Handler{
		Notification: NewNotificationHandler(svc.Notification),
		Realtime:     NewRealtimeHandler(hub, allowOrigins, logger),
	}
}
