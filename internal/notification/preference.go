package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gymdesk/backend/internal/model"
	"gymdesk/backend/internal/repository"
	pkgerrors "gymdesk/backend/pkg/errors"
)

// ErrInvalidPreference 偏好中包含未知的事件类型或通道
var ErrInvalidPreference = errors.New("无效的通知偏好")

// DefaultEnabled 默认策略：邮件与站内通知开启，短信与 WhatsApp 关闭
// 查询兜底与新用户初始化共用此处的定义
func DefaultEnabled(channel string) bool {
	switch channel {
	case ChannelEmail, ChannelPush:
		return true
	default:
		return false
	}
}

// Preference 单个 (事件类型, 通道) 的开关
type Preference struct {
	EventType EventType `json:"event_type"`
	Channel   string    `json:"channel"`
	Enabled   bool      `json:"enabled"`
}

// PreferenceCache 偏好缓存，由 pkg/redis.Client 实现
// GetPreference 未命中时返回 pkg/errors.ErrCacheMiss
// InvalidatePreferences 推进版本号；FillPreferences 在版本号变化后返回 pkg/errors.ErrCacheStale
type PreferenceCache interface {
	GetPreference(ctx context.Context, userID, eventType, channel string) (bool, error)
	PreferenceVersion(ctx context.Context, userID string) (int64, error)
	FillPreferences(ctx context.Context, userID string, version int64, values map[string]map[string]bool) error
	InvalidatePreferences(ctx context.Context, userID string) error
}

// PreferenceStore 用户通知偏好：缓存 → 数据库 → 默认策略
type PreferenceStore struct {
	repo   repository.NotificationSettingRepository
	cache  PreferenceCache
	logger *zap.Logger
}

// NewPreferenceStore 创建偏好存储，cache 可为 nil
func NewPreferenceStore(repo repository.NotificationSettingRepository, cache PreferenceCache, logger *zap.Logger) *PreferenceStore {
	return &PreferenceStore{repo: repo, cache: cache, logger: logger}
}

// IsChannelEnabled 查询失败不向上抛出，按默认策略处理
func (s *PreferenceStore) IsChannelEnabled(ctx context.Context, userID string, eventType EventType, channel string) bool {
	if s.cache == nil {
		return s.lookup(ctx, userID, eventType, channel)
	}

	v, err := s.cache.GetPreference(ctx, userID, string(eventType), channel)
	if err == nil {
		return v
	}
	if !errors.Is(err, pkgerrors.ErrCacheMiss) {
		s.logger.Warn("读取偏好缓存失败", zap.String("user_id", userID), zap.Error(err))
	}

	// 版本号须在查询数据库之前读取
	version, verErr := s.cache.PreferenceVersion(ctx, userID)
	if verErr != nil {
		s.logger.Warn("读取偏好缓存版本失败，本次不回填", zap.String("user_id", userID), zap.Error(verErr))
	}

	settings, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("查询通知偏好失败，按默认策略处理",
			zap.String("user_id", userID),
			zap.String("event_type", string(eventType)),
			zap.String("channel", channel),
			zap.Error(err),
		)
		return DefaultEnabled(channel)
	}

	grid := overlay(settings)
	if verErr == nil {
		s.fill(ctx, userID, version, grid)
	}
	if enabled, ok := grid[string(eventType)][channel]; ok {
		return enabled
	}
	return DefaultEnabled(channel)
}

// lookup 无缓存时按单条记录查询
func (s *PreferenceStore) lookup(ctx context.Context, userID string, eventType EventType, channel string) bool {
	setting, err := s.repo.Get(ctx, userID, string(eventType), channel)
	if err == nil {
		return setting.Enabled
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn("查询通知偏好失败，按默认策略处理",
			zap.String("user_id", userID),
			zap.String("event_type", string(eventType)),
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
	return DefaultEnabled(channel)
}

// Matrix 返回完整的 (事件类型 × 通道) 开关表，未存储的按默认策略填充
func (s *PreferenceStore) Matrix(ctx context.Context, userID string) ([]Preference, error) {
	settings, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询通知偏好失败: %w", err)
	}
	grid := overlay(settings)

	prefs := make([]Preference, 0, len(AllEventTypes)*len(AllChannels))
	for _, et := range AllEventTypes {
		for _, ch := range AllChannels {
			prefs = append(prefs, Preference{EventType: et, Channel: ch, Enabled: grid[string(et)][ch]})
		}
	}
	return prefs, nil
}

// SetPreferences 批量幂等写入；同一组合出现多次时以最后一次为准
func (s *PreferenceStore) SetPreferences(ctx context.Context, userID string, prefs []Preference) error {
	type key struct {
		eventType EventType
		channel   string
	}
	index := make(map[key]int, len(prefs))
	settings := make([]model.NotificationSetting, 0, len(prefs))
	for _, p := range prefs {
		if !IsKnownEventType(p.EventType) || !IsKnownChannel(p.Channel) {
			return fmt.Errorf("%w: %s/%s", ErrInvalidPreference, p.EventType, p.Channel)
		}
		k := key{p.EventType, p.Channel}
		if i, ok := index[k]; ok {
			settings[i].Enabled = p.Enabled
			continue
		}
		index[k] = len(settings)
		settings = append(settings, model.NotificationSetting{
			UserID:    userID,
			EventType: string(p.EventType),
			Channel:   p.Channel,
			Enabled:   p.Enabled,
		})
	}

	if err := s.repo.Upsert(ctx, settings); err != nil {
		return fmt.Errorf("保存通知偏好失败: %w", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

// Provision 为用户补齐默认偏好，已有的显式选择保持不变
func (s *PreferenceStore) Provision(ctx context.Context, userID string) error {
	settings := make([]model.NotificationSetting, 0, len(AllEventTypes)*len(AllChannels))
	for _, et := range AllEventTypes {
		for _, ch := range AllChannels {
			settings = append(settings, model.NotificationSetting{
				UserID:    userID,
				EventType: string(et),
				Channel:   ch,
				Enabled:   DefaultEnabled(ch),
			})
		}
	}
	if err := s.repo.InsertMissing(ctx, settings); err != nil {
		return fmt.Errorf("初始化通知偏好失败: %w", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *PreferenceStore) fill(ctx context.Context, userID string, version int64, grid map[string]map[string]bool) {
	err := s.cache.FillPreferences(ctx, userID, version, grid)
	switch {
	case err == nil:
	case errors.Is(err, pkgerrors.ErrCacheStale):
		s.logger.Debug("偏好在查询期间已更新，跳过缓存回填", zap.String("user_id", userID))
	default:
		s.logger.Warn("写入偏好缓存失败", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *PreferenceStore) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePreferences(ctx, userID); err != nil {
		s.logger.Warn("清除偏好缓存失败", zap.String("user_id", userID), zap.Error(err))
	}
}

// overlay 默认策略叠加已存储的开关，结果覆盖全部已知组合
func overlay(settings []model.NotificationSetting) map[string]map[string]bool {
	grid := make(map[string]map[string]bool, len(AllEventTypes))
	for _, et := range AllEventTypes {
		row := make(map[string]bool, len(AllChannels))
		for _, ch := range AllChannels {
			row[ch] = DefaultEnabled(ch)
		}
		grid[string(et)] = row
	}
	for _, st := range settings {
		row, ok := grid[st.EventType]
		if !ok {
			continue
		}
		if _, known := row[st.Channel]; known {
			row[st.Channel] = st.Enabled
		}
	}
	return grid
}
