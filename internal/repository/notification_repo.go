package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gymdesk/backend/internal/model"
)

// NotificationScope 通知可见范围
// 会员只能看到发给自己的通知；员工额外可见 user_id 为空的广播通知
type NotificationScope struct {
	UserID           string
	IncludeBroadcast bool
}

// ScopeFor 根据用户角色计算可见范围
func ScopeFor(userID, role string) NotificationScope {
	return NotificationScope{
		UserID:           userID,
		IncludeBroadcast: model.IsStaffRole(role),
	}
}

// Visible 判断单条通知是否落在范围内
func (s NotificationScope) Visible(n *model.Notification) bool {
	if n.UserID == nil {
		return s.IncludeBroadcast
	}
	return *n.UserID == s.UserID
}

func (s NotificationScope) apply(db *gorm.DB) *gorm.DB {
	if s.IncludeBroadcast {
		return db.Where("(user_id = ? OR user_id IS NULL)", s.UserID)
	}
	return db.Where("user_id = ?", s.UserID)
}

// NotificationFilter 列表筛选条件
type NotificationFilter struct {
	UnreadOnly bool
	Type       string
}

// NotificationRepository 站内通知数据访问接口
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	GetVisible(ctx context.Context, id string, scope NotificationScope) (*model.Notification, error)
	ListVisible(ctx context.Context, scope NotificationScope, filter NotificationFilter, offset, limit int) ([]model.Notification, int64, error)
	CountUnread(ctx context.Context, scope NotificationScope) (int64, error)
	// MarkAsRead 仅更新 read_at 为空的记录，返回受影响行数
	MarkAsRead(ctx context.Context, id string, scope NotificationScope, at time.Time) (int64, error)
	MarkAllAsRead(ctx context.Context, scope NotificationScope, at time.Time) (int64, error)
	Delete(ctx context.Context, id string, scope NotificationScope) (int64, error)
}

type notificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepo 创建 NotificationRepository 实例
func NewNotificationRepo(db *gorm.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepo) GetVisible(ctx context.Context, id string, scope NotificationScope) (*model.Notification, error) {
	var n model.Notification
	err := scope.apply(r.db.WithContext(ctx)).
		Where("notification_id = ?", id).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepo) ListVisible(ctx context.Context, scope NotificationScope, filter NotificationFilter, offset, limit int) ([]model.Notification, int64, error) {
	var list []model.Notification
	var total int64

	db := scope.apply(r.db.WithContext(ctx).Model(&model.Notification{}))
	if filter.UnreadOnly {
		db = db.Where("read_at IS NULL")
	}
	if filter.Type != "" {
		db = db.Where("type = ?", filter.Type)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

func (r *notificationRepo) CountUnread(ctx context.Context, scope NotificationScope) (int64, error) {
	var total int64
	err := scope.apply(r.db.WithContext(ctx).Model(&model.Notification{})).
		Where("read_at IS NULL").
		Count(&total).Error
	return total, err
}

func (r *notificationRepo) MarkAsRead(ctx context.Context, id string, scope NotificationScope, at time.Time) (int64, error) {
	result := scope.apply(r.db.WithContext(ctx).Model(&model.Notification{})).
		Where("notification_id = ? AND read_at IS NULL", id).
		Update("read_at", at)
	return result.RowsAffected, result.Error
}

func (r *notificationRepo) MarkAllAsRead(ctx context.Context, scope NotificationScope, at time.Time) (int64, error) {
	result := scope.apply(r.db.WithContext(ctx).Model(&model.Notification{})).
		Where("read_at IS NULL").
		Update("read_at", at)
	return result.RowsAffected, result.Error
}

func (r *notificationRepo) Delete(ctx context.Context, id string, scope NotificationScope) (int64, error) {
	result := scope.apply(r.db.WithContext(ctx)).
		Where("notification_id = ?", id).
		Delete(&model.Notification{})
	return result.RowsAffected, result.Error
}
