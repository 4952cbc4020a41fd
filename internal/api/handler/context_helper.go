package handler

import (
	"github.com/gin-gonic/gin"

	"gymdesk/backend/internal/service"
	"gymdesk/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	v, exists := c.Get("role")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetViewer 组合 user_id 与 role，用于计算通知可见范围
func MustGetViewer(c *gin.Context) (service.Viewer, bool) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return service.Viewer{}, false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return service.Viewer{}, false
	}
	return service.Viewer{UserID: userID, Role: role}, true
}
