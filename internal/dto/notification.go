package dto

import "time"

// ── 通知列表 ──

// NotificationListRequest GET /notifications 查询参数
type NotificationListRequest struct {
	PaginationRequest
	UnreadOnly bool   `form:"unread_only"`
	Type       string `form:"type" binding:"omitempty,max=50"`
}

// NotificationResponse 单条通知
type NotificationResponse struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Priority  string                 `json:"priority"`
	Color     string                 `json:"color"`
	Icon      string                 `json:"icon"`
	Broadcast bool                   `json:"broadcast"`
	IsRead    bool                   `json:"is_read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NotificationListResult 列表结果，UnreadCount 不受筛选条件影响
type NotificationListResult struct {
	List        []NotificationResponse
	Total       int64
	UnreadCount int64
}

// UnreadCountResponse 未读数
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// MarkAllReadResponse 批量已读结果
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// ── 通知偏好 ──

// PreferenceItem 单个 (事件类型, 通道) 开关
type PreferenceItem struct {
	EventType string `json:"event_type" binding:"required,max=50"`
	Channel   string `json:"channel"    binding:"required,max=20"`
	Enabled   *bool  `json:"enabled"    binding:"required"`
}

// UpdateSettingsRequest PUT /notifications/settings
type UpdateSettingsRequest struct {
	Preferences []PreferenceItem `json:"preferences" binding:"required,min=1,max=100,dive"`
}

// SettingsResponse 偏好矩阵
type SettingsResponse struct {
	Preferences []PreferenceResponse `json:"preferences"`
	Defaults    map[string]bool      `json:"defaults"`
}

// PreferenceResponse 偏好矩阵中的一项
type PreferenceResponse struct {
	EventType string `json:"event_type"`
	Channel   string `json:"channel"`
	Enabled   bool   `json:"enabled"`
}

// AvailableChannelsResponse 当前可投递的通道
type AvailableChannelsResponse struct {
	EventType string   `json:"event_type"`
	Channels  []string `json:"channels"`
}

// ── 事件接入 / 广播 ──

// EmitEventRequest POST /notifications/events
type EmitEventRequest struct {
	Type    string                 `json:"type"    binding:"required,max=50"`
	UserID  string                 `json:"user_id" binding:"required,uuid"`
	Payload map[string]interface{} `json:"payload"`
}

// DispatchResponse 各通道投递结果
type DispatchResponse struct {
	Results map[string]bool `json:"results"`
}

// BroadcastRequest POST /notifications/broadcast
type BroadcastRequest struct {
	Title    string                 `json:"title"    binding:"required,max=200"`
	Message  string                 `json:"message"  binding:"required,max=2000"`
	Priority string                 `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	Data     map[string]interface{} `json:"data"`
}
