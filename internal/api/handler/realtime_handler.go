package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gymdesk/backend/internal/model"
	"gymdesk/backend/pkg/ws"
)

// RealtimeHandler 站内通知实时推送（WebSocket）
type RealtimeHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewRealtimeHandler 创建 RealtimeHandler，仅接受 allowOrigins 中的浏览器来源
func NewRealtimeHandler(hub *ws.Hub, allowOrigins []string, logger *zap.Logger) *RealtimeHandler {
	origins := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}
	return &RealtimeHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// 非浏览器客户端不带 Origin
				return origin == "" || origins[origin]
			},
		},
		logger: logger,
	}
}

// Connect 建立实时连接
// GET /api/v1/notifications/ws?token=
func (h *RealtimeHandler) Connect(c *gin.Context) {
	viewer, ok := MustGetViewer(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已写入 HTTP 错误响应
		h.logger.Warn("WebSocket 握手失败", zap.String("user_id", viewer.UserID), zap.Error(err))
		return
	}

	h.hub.Serve(viewer.UserID, model.IsStaffRole(viewer.Role), conn)
}
