package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gymdesk/backend/internal/model"
)

// NotificationSettingRepository 通知偏好数据访问接口
type NotificationSettingRepository interface {
	Get(ctx context.Context, userID, eventType, channel string) (*model.NotificationSetting, error)
	ListByUser(ctx context.Context, userID string) ([]model.NotificationSetting, error)
	// Upsert 按 (user_id, event_type, channel) 幂等写入，已存在则覆盖 enabled
	Upsert(ctx context.Context, settings []model.NotificationSetting) error
	// InsertMissing 只补齐缺失的组合，不覆盖用户已有选择
	InsertMissing(ctx context.Context, settings []model.NotificationSetting) error
}

type notificationSettingRepo struct {
	db *gorm.DB
}

// NewNotificationSettingRepo 创建 NotificationSettingRepository 实例
func NewNotificationSettingRepo(db *gorm.DB) NotificationSettingRepository {
	return &notificationSettingRepo{db: db}
}

var settingConflictColumns = []clause.Column{{Name: "user_id"}, {Name: "event_type"}, {Name: "channel"}}

func (r *notificationSettingRepo) Get(ctx context.Context, userID, eventType, channel string) (*model.NotificationSetting, error) {
	var s model.NotificationSetting
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_type = ? AND channel = ?", userID, eventType, channel).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *notificationSettingRepo) ListByUser(ctx context.Context, userID string) ([]model.NotificationSetting, error) {
	var list []model.NotificationSetting
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("event_type, channel").
		Find(&list).Error
	return list, err
}

func (r *notificationSettingRepo) Upsert(ctx context.Context, settings []model.NotificationSetting) error {
	if len(settings) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   settingConflictColumns,
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
		}).
		Create(&settings).Error
}

func (r *notificationSettingRepo) InsertMissing(ctx context.Context, settings []model.NotificationSetting) error {
	if len(settings) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   settingConflictColumns,
			DoNothing: true,
		}).
		Create(&settings).Error
}
