package service

import (
	"go.uber.org/zap"

	"gymdesk/backend/internal/notification"
	"gymdesk/backend/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Notification NotificationService
}

// NewService 创建 Service 聚合
func NewService(
	repo *repository.Repository,
	prefs *notification.PreferenceStore,
	dispatcher *notification.Dispatcher,
	publisher notification.Publisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		Notification: NewNotificationService(repo, prefs, dispatcher, publisher, logger),
	}
}
