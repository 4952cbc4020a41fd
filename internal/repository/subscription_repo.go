package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gymdesk/backend/internal/model"
)

// SubscriptionRepository 订阅数据访问接口（供到期提醒任务使用）
type SubscriptionRepository interface {
	// ListExpiring 查询 [from, to] 内到期、且尚未发送过到期提醒的有效订阅
	ListExpiring(ctx context.Context, from, to time.Time) ([]model.Subscription, error)
	// ListLapsed 查询到期日早于 before 但状态仍为 active 的订阅
	ListLapsed(ctx context.Context, before time.Time) ([]model.Subscription, error)
	MarkExpiryNotified(ctx context.Context, id string, at time.Time) error
	// MarkExpired 将 active 订阅置为 expired，返回是否由本次调用完成状态变更
	MarkExpired(ctx context.Context, id string) (bool, error)
}

type subscriptionRepo struct {
	db *gorm.DB
}

// NewSubscriptionRepo 创建 SubscriptionRepository 实例
func NewSubscriptionRepo(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

func (r *subscriptionRepo) ListExpiring(ctx context.Context, from, to time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Plan").
		Where("status = ?", model.SubscriptionActive).
		Where("end_date BETWEEN ? AND ?", from, to).
		Where("expiry_notified_at IS NULL").
		Order("end_date ASC").
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepo) ListLapsed(ctx context.Context, before time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Plan").
		Where("status = ?", model.SubscriptionActive).
		Where("end_date < ?", before).
		Order("end_date ASC").
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepo) MarkExpiryNotified(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("subscription_id = ?", id).
		Update("expiry_notified_at", at).Error
}

func (r *subscriptionRepo) MarkExpired(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("subscription_id = ? AND status = ?", id, model.SubscriptionActive).
		Update("status", model.SubscriptionExpired)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
