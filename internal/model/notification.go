package model

import (
	"time"

	"gorm.io/datatypes"
)

// Notification 站内通知表 — 对应 notifications
// UserID 为空表示广播给全体员工；ReadAt 一经设置不再清空
type Notification struct {
	NotificationID string            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"notification_id"`
	UserID         *string           `gorm:"type:uuid"                                      json:"user_id,omitempty"`
	Type           string            `gorm:"type:varchar(50);not null"                      json:"type"`
	Title          string            `gorm:"type:varchar(200);not null"                     json:"title"`
	Message        string            `gorm:"type:text;not null"                             json:"message"`
	Data           datatypes.JSONMap `gorm:"type:jsonb;not null"                            json:"data"`
	Priority       string            `gorm:"type:varchar(10);not null;default:'normal'"     json:"priority"`
	Color          string            `gorm:"type:varchar(20);not null;default:''"           json:"color"`
	Icon           string            `gorm:"type:varchar(50);not null;default:''"           json:"icon"`
	ReadAt         *time.Time        `                                                      json:"read_at,omitempty"`
	SoftDeleteModel
}

// TableName 指定表名
func (Notification) TableName() string { return "notifications" }

// IsRead 是否已读
func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// IsBroadcast 是否为员工广播
func (n *Notification) IsBroadcast() bool { return n.UserID == nil }

// MarkRead 设置已读时间，已读记录保持原时间不变
func (n *Notification) MarkRead(at time.Time) {
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
}

// NotificationSetting 通知偏好表 — 对应 notification_settings
// (user_id, event_type, channel) 唯一
type NotificationSetting struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"                                           json:"-"`
	UserID    string `gorm:"type:uuid;not null;uniqueIndex:uq_notification_settings,priority:1" json:"user_id"`
	EventType string `gorm:"type:varchar(50);not null;uniqueIndex:uq_notification_settings,priority:2" json:"event_type"`
	Channel   string `gorm:"type:varchar(20);not null;uniqueIndex:uq_notification_settings,priority:3" json:"channel"`
	Enabled   bool   `gorm:"not null"                                                           json:"enabled"`
	BaseModel
}

// TableName 指定表名
func (NotificationSetting) TableName() string { return "notification_settings" }
