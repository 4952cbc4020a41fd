package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gymdesk/backend/internal/dto"
	"gymdesk/backend/internal/notification"
	"gymdesk/backend/internal/service"
	"gymdesk/backend/pkg/response"
)

// NotificationHandler 通知模块 HTTP 处理器
type NotificationHandler struct {
	notificationSvc service.NotificationService
}

// NewNotificationHandler 创建 NotificationHandler
func NewNotificationHandler(notificationSvc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationSvc: notificationSvc}
}

// List 通知列表
// GET /api/v1/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	viewer, ok := MustGetViewer(c)
	if !ok {
		return
	}

	var req dto.NotificationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.notificationSvc.List(c.Request.Context(), viewer, &req)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OKPage(c, result.List, result.Total, req.GetPage(), req.GetPageSize(),
		map[string]interface{}{"unread_count": result.UnreadCount})
}

// UnreadCount 未读数
// GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	viewer, ok := MustGetViewer(c)
	if !ok {
		return
	}

	count, err := h.notificationSvc.UnreadCount(c.Request.Context(), viewer)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, dto.UnreadCountResponse{Count: count})
}

// MarkAsRead 标记单条已读
// PUT /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	viewer, ok := MustGetViewer(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "通知ID格式无效")
	if !ok {
		return
	}

	result, err := h.notificationSvc.MarkAsRead(c.Request.Context(), viewer, id)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, result)
}

// MarkAllAsRead 全部标记已读
// PUT /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	viewer, ok := MustGetViewer(c)
	if !ok {
		return
	}

	updated, err := h.notificationSvc.MarkAllAsRead(c.Request.Context(), viewer)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, dto.MarkAllReadResponse{Updated: updated})
}

// Delete 删除通知
// DELETE /api/v1/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	viewer, ok := MustGetViewer(c)
	if !ok {
		return
	}

	id, ok := uuidParam(c, "通知ID格式无效")
	if !ok {
		return
	}

	if err := h.notificationSvc.Delete(c.Request.Context(), viewer, id); err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, nil)
}

// ────────────────────── Settings ──────────────────────

// GetSettings 获取通知偏好矩阵
// GET /api/v1/notifications/settings
func (h *NotificationHandler) GetSettings(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.notificationSvc.GetSettings(c.Request.Context(), userID)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, result)
}

// UpdateSettings 批量更新通知偏好
// PUT /api/v1/notifications/settings
func (h *NotificationHandler) UpdateSettings(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.notificationSvc.UpdateSettings(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, result)
}

// AvailableChannels 当前用户可接收某类事件的通道
// GET /api/v1/notifications/channels?event_type=
func (h *NotificationHandler) AvailableChannels(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	eventType := c.Query("event_type")
	if eventType == "" {
		response.BadRequest(c, 10001, "event_type不能为空")
		return
	}

	result, err := h.notificationSvc.AvailableChannels(c.Request.Context(), userID, eventType)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, result)
}

// ProvisionUser 为新建档用户补齐默认偏好（员工）
// POST /api/v1/notifications/users/:id/provision
func (h *NotificationHandler) ProvisionUser(c *gin.Context) {
	id, ok := uuidParam(c, "用户ID格式无效")
	if !ok {
		return
	}

	if err := h.notificationSvc.ProvisionUser(c.Request.Context(), id); err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, nil)
}

// ────────────────────── Events / Broadcast ──────────────────────

// EmitEvent 业务事件接入（员工）
// POST /api/v1/notifications/events
func (h *NotificationHandler) EmitEvent(c *gin.Context) {
	var req dto.EmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.notificationSvc.Emit(c.Request.Context(), &req)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.Accepted(c, dto.DispatchResponse{Results: result})
}

// Broadcast 员工广播（管理员）
// POST /api/v1/notifications/broadcast
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req dto.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.notificationSvc.Broadcast(c.Request.Context(), &req)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, result)
}

// uuidParam 校验路径参数 :id，非法时直接写 400
func uuidParam(c *gin.Context, msg string) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.BadRequest(c, 10001, msg)
		return "", false
	}
	return id, true
}

func (h *NotificationHandler) handleNotificationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotificationNotFound):
		response.NotFound(c, 18001, "通知不存在")
	case errors.Is(err, notification.ErrUnknownEventType):
		response.BadRequest(c, 18002, "未知的事件类型")
	case errors.Is(err, notification.ErrInvalidEventPayload):
		response.Unprocessable(c, 18003, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 18004, "用户不存在")
	case errors.Is(err, notification.ErrInvalidPreference):
		response.BadRequest(c, 18005, err.Error())
	default:
		response.InternalError(c)
	}
}
