package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gymdesk/backend/internal/dto"
	"gymdesk/backend/internal/model"
	"gymdesk/backend/internal/notification"
	"gymdesk/backend/internal/repository"
)

// ── 通知模块业务错误 ──

var (
	ErrNotificationNotFound = errors.New("通知不存在")
	ErrUserNotFound         = errors.New("用户不存在")
)

// Viewer 当前请求的用户身份
type Viewer struct {
	UserID string
	Role   string
}

func (v Viewer) scope() repository.NotificationScope {
	return repository.ScopeFor(v.UserID, v.Role)
}

// NotificationService 通知业务接口
type NotificationService interface {
	List(ctx context.Context, viewer Viewer, req *dto.NotificationListRequest) (*dto.NotificationListResult, error)
	UnreadCount(ctx context.Context, viewer Viewer) (int64, error)
	MarkAsRead(ctx context.Context, viewer Viewer, id string) (*dto.NotificationResponse, error)
	MarkAllAsRead(ctx context.Context, viewer Viewer) (int64, error)
	Delete(ctx context.Context, viewer Viewer, id string) error

	GetSettings(ctx context.Context, userID string) (*dto.SettingsResponse, error)
	UpdateSettings(ctx context.Context, userID string, req *dto.UpdateSettingsRequest) (*dto.SettingsResponse, error)
	AvailableChannels(ctx context.Context, userID string, eventType string) (*dto.AvailableChannelsResponse, error)
	// ProvisionUser 新用户建档时补齐默认偏好
	ProvisionUser(ctx context.Context, userID string) error

	// Notify 分发事件，投递失败只记录日志
	Notify(ctx context.Context, ev notification.Event) notification.Result
	// Emit 事件接入：按 user_id 加载用户并由原始载荷构造事件
	Emit(ctx context.Context, req *dto.EmitEventRequest) (notification.Result, error)
	// Broadcast 创建 user_id 为空的员工广播并实时推送
	Broadcast(ctx context.Context, req *dto.BroadcastRequest) (*dto.NotificationResponse, error)
}

type notificationService struct {
	repo       *repository.Repository
	prefs      *notification.PreferenceStore
	dispatcher *notification.Dispatcher
	publisher  notification.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewNotificationService 创建 NotificationService 实例，publisher 可为 nil
func NewNotificationService(
	repo *repository.Repository,
	prefs *notification.PreferenceStore,
	dispatcher *notification.Dispatcher,
	publisher notification.Publisher,
	logger *zap.Logger,
) NotificationService {
	return &notificationService{
		repo:       repo,
		prefs:      prefs,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// ────────────────────── List ──────────────────────

func (s *notificationService) List(ctx context.Context, viewer Viewer, req *dto.NotificationListRequest) (*dto.NotificationListResult, error) {
	scope := viewer.scope()
	filter := repository.NotificationFilter{UnreadOnly: req.UnreadOnly, Type: req.Type}

	list, total, err := s.repo.Notification.ListVisible(ctx, scope, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询通知列表失败", zap.String("user_id", viewer.UserID), zap.Error(err))
		return nil, err
	}
	unread, err := s.repo.Notification.CountUnread(ctx, scope)
	if err != nil {
		s.logger.Error("统计未读通知失败", zap.String("user_id", viewer.UserID), zap.Error(err))
		return nil, err
	}

	items := make([]dto.NotificationResponse, 0, len(list))
	for i := range list {
		items = append(items, *toNotificationResponse(&list[i]))
	}
	return &dto.NotificationListResult{List: items, Total: total, UnreadCount: unread}, nil
}

// ────────────────────── UnreadCount ──────────────────────

func (s *notificationService) UnreadCount(ctx context.Context, viewer Viewer) (int64, error) {
	n, err := s.repo.Notification.CountUnread(ctx, viewer.scope())
	if err != nil {
		s.logger.Error("统计未读通知失败", zap.String("user_id", viewer.UserID), zap.Error(err))
		return 0, err
	}
	return n, nil
}

// ────────────────────── MarkAsRead ──────────────────────

func (s *notificationService) MarkAsRead(ctx context.Context, viewer Viewer, id string) (*dto.NotificationResponse, error) {
	scope := viewer.scope()
	n, err := s.repo.Notification.GetVisible(ctx, id, scope)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		s.logger.Error("查询通知失败", zap.String("notification_id", id), zap.Error(err))
		return nil, err
	}
	if n.IsRead() {
		return toNotificationResponse(n), nil
	}

	at := s.now()
	if _, err := s.repo.Notification.MarkAsRead(ctx, id, scope, at); err != nil {
		s.logger.Error("标记通知已读失败", zap.String("notification_id", id), zap.Error(err))
		return nil, err
	}
	n.MarkRead(at)
	return toNotificationResponse(n), nil
}

// ────────────────────── MarkAllAsRead ──────────────────────

func (s *notificationService) MarkAllAsRead(ctx context.Context, viewer Viewer) (int64, error) {
	updated, err := s.repo.Notification.MarkAllAsRead(ctx, viewer.scope(), s.now())
	if err != nil {
		s.logger.Error("批量标记已读失败", zap.String("user_id", viewer.UserID), zap.Error(err))
		return 0, err
	}
	return updated, nil
}

// ────────────────────── Delete ──────────────────────

func (s *notificationService) Delete(ctx context.Context, viewer Viewer, id string) error {
	affected, err := s.repo.Notification.Delete(ctx, id, viewer.scope())
	if err != nil {
		s.logger.Error("删除通知失败", zap.String("notification_id", id), zap.Error(err))
		return err
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// ────────────────────── Settings ──────────────────────

func (s *notificationService) GetSettings(ctx context.Context, userID string) (*dto.SettingsResponse, error) {
	prefs, err := s.prefs.Matrix(ctx, userID)
	if err != nil {
		s.logger.Error("查询通知偏好失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return toSettingsResponse(prefs), nil
}

func (s *notificationService) UpdateSettings(ctx context.Context, userID string, req *dto.UpdateSettingsRequest) (*dto.SettingsResponse, error) {
	prefs := make([]notification.Preference, 0, len(req.Preferences))
	for _, item := range req.Preferences {
		prefs = append(prefs, notification.Preference{
			EventType: notification.EventType(item.EventType),
			Channel:   item.Channel,
			Enabled:   item.Enabled != nil && *item.Enabled,
		})
	}
	if err := s.prefs.SetPreferences(ctx, userID, prefs); err != nil {
		if !errors.Is(err, notification.ErrInvalidPreference) {
			s.logger.Error("保存通知偏好失败", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("通知偏好已更新", zap.String("user_id", userID), zap.Int("count", len(prefs)))
	return s.GetSettings(ctx, userID)
}

func (s *notificationService) AvailableChannels(ctx context.Context, userID string, eventType string) (*dto.AvailableChannelsResponse, error) {
	et := notification.EventType(eventType)
	if !notification.IsKnownEventType(et) {
		return nil, notification.ErrUnknownEventType
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	channels := s.dispatcher.AvailableChannels(ctx, user, et)
	if channels == nil {
		channels = []string{}
	}
	return &dto.AvailableChannelsResponse{EventType: eventType, Channels: channels}, nil
}

func (s *notificationService) ProvisionUser(ctx context.Context, userID string) error {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return err
	}
	if err := s.prefs.Provision(ctx, userID); err != nil {
		s.logger.Error("初始化通知偏好失败", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── Dispatch ──────────────────────

func (s *notificationService) Notify(ctx context.Context, ev notification.Event) notification.Result {
	result := s.dispatcher.DispatchEvent(ctx, ev)

	userID := ""
	if u := ev.User(); u != nil {
		userID = u.UserID
	}
	fields := []zap.Field{
		zap.String("user_id", userID),
		zap.String("event_type", string(ev.Type())),
		zap.Any("results", result),
	}
	if result.Sent() {
		s.logger.Info("通知已分发", fields...)
	} else {
		s.logger.Warn("通知未能通过任何通道送达", fields...)
	}
	return result
}

func (s *notificationService) Emit(ctx context.Context, req *dto.EmitEventRequest) (notification.Result, error) {
	et := notification.EventType(req.Type)
	if !notification.IsKnownEventType(et) {
		return nil, notification.ErrUnknownEventType
	}
	user, err := s.loadUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	ev, err := notification.BuildEvent(et, user, req.Payload)
	if err != nil {
		return nil, err
	}
	return s.Notify(ctx, ev), nil
}

func (s *notificationService) Broadcast(ctx context.Context, req *dto.BroadcastRequest) (*dto.NotificationResponse, error) {
	priority := notification.Priority(req.Priority)
	if priority == "" {
		priority = notification.PriorityNormal
	}
	msg := &notification.Message{
		Type:     notification.TypeStaffBroadcast,
		Title:    req.Title,
		Message:  req.Message,
		Data:     req.Data,
		Priority: priority,
		Color:    notification.ColorBlue,
		Icon:     "megaphone",
	}
	record := notification.NewRecord(nil, msg)
	if err := s.repo.Notification.Create(ctx, record); err != nil {
		s.logger.Error("创建员工广播失败", zap.Error(err))
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, record); err != nil {
			s.logger.Warn("员工广播实时推送失败", zap.String("notification_id", record.NotificationID), zap.Error(err))
		}
	}
	s.logger.Info("员工广播已创建", zap.String("notification_id", record.NotificationID), zap.String("title", record.Title))
	return toNotificationResponse(record), nil
}

// ── 内部方法 ──

func (s *notificationService) loadUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return user, nil
}

func toNotificationResponse(n *model.Notification) *dto.NotificationResponse {
	data := map[string]interface{}(n.Data)
	if data == nil {
		data = map[string]interface{}{}
	}
	return &dto.NotificationResponse{
		ID:        n.NotificationID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      data,
		Priority:  n.Priority,
		Color:     n.Color,
		Icon:      n.Icon,
		Broadcast: n.IsBroadcast(),
		IsRead:    n.IsRead(),
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

func toSettingsResponse(prefs []notification.Preference) *dto.SettingsResponse {
	items := make([]dto.PreferenceResponse, 0, len(prefs))
	for _, p := range prefs {
		items = append(items, dto.PreferenceResponse{
			EventType: string(p.EventType),
			Channel:   p.Channel,
			Enabled:   p.Enabled,
		})
	}
	defaults := make(map[string]bool, len(notification.AllChannels))
	for _, ch := range notification.AllChannels {
		defaults[ch] = notification.DefaultEnabled(ch)
	}
	return &dto.SettingsResponse{Preferences: items, Defaults: defaults}
}
