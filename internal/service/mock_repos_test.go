package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"gymdesk/backend/internal/model"
	"gymdesk/backend/internal/repository"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct {
	records []*model.Notification
	seq     int
	err     error
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{}
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.seq++
	if n.NotificationID == "" {
		n.NotificationID = fmt.Sprintf("n-%d", m.seq)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Minute)
	}
	m.records = append(m.records, n)
	return nil
}

func (m *mockNotificationRepo) alive() []*model.Notification {
	var out []*model.Notification
	for _, n := range m.records {
		if !n.DeletedAt.Valid {
			out = append(out, n)
		}
	}
	return out
}

func (m *mockNotificationRepo) GetVisible(_ context.Context, id string, scope repository.NotificationScope) (*model.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, n := range m.alive() {
		if n.NotificationID == id && scope.Visible(n) {
			cp := *n
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockNotificationRepo) ListVisible(_ context.Context, scope repository.NotificationScope, filter repository.NotificationFilter, offset, limit int) ([]model.Notification, int64, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	var matched []model.Notification
	for _, n := range m.alive() {
		if !scope.Visible(n) {
			continue
		}
		if filter.UnreadOnly && n.IsRead() {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		matched = append(matched, *n)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if offset >= len(matched) {
		return []model.Notification{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *mockNotificationRepo) CountUnread(_ context.Context, scope repository.NotificationScope) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	var count int64
	for _, n := range m.alive() {
		if scope.Visible(n) && !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) MarkAsRead(_ context.Context, id string, scope repository.NotificationScope, at time.Time) (int64, error) {
	for _, n := range m.alive() {
		if n.NotificationID == id && scope.Visible(n) && !n.IsRead() {
			n.MarkRead(at)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *mockNotificationRepo) MarkAllAsRead(_ context.Context, scope repository.NotificationScope, at time.Time) (int64, error) {
	var updated int64
	for _, n := range m.alive() {
		if scope.Visible(n) && !n.IsRead() {
			n.MarkRead(at)
			updated++
		}
	}
	return updated, nil
}

func (m *mockNotificationRepo) Delete(_ context.Context, id string, scope repository.NotificationScope) (int64, error) {
	for _, n := range m.alive() {
		if n.NotificationID == id && scope.Visible(n) {
			n.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
			return 1, nil
		}
	}
	return 0, nil
}

// ── Mock NotificationSettingRepository ──

type mockSettingRepo struct {
	rows map[string]model.NotificationSetting
}

func newMockSettingRepo() *mockSettingRepo {
	return &mockSettingRepo{rows: make(map[string]model.NotificationSetting)}
}

func settingKey(userID, eventType, channel string) string {
	return userID + "|" + eventType + "|" + channel
}

func (m *mockSettingRepo) Get(_ context.Context, userID, eventType, channel string) (*model.NotificationSetting, error) {
	if s, ok := m.rows[settingKey(userID, eventType, channel)]; ok {
		return &s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSettingRepo) ListByUser(_ context.Context, userID string) ([]model.NotificationSetting, error) {
	var list []model.NotificationSetting
	for _, s := range m.rows {
		if s.UserID == userID {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *mockSettingRepo) Upsert(_ context.Context, settings []model.NotificationSetting) error {
	for _, s := range settings {
		m.rows[settingKey(s.UserID, s.EventType, s.Channel)] = s
	}
	return nil
}

func (m *mockSettingRepo) InsertMissing(_ context.Context, settings []model.NotificationSetting) error {
	for _, s := range settings {
		k := settingKey(s.UserID, s.EventType, s.Channel)
		if _, exists := m.rows[k]; !exists {
			m.rows[k] = s
		}
	}
	return nil
}
