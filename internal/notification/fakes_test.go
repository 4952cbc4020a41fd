package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"gymdesk/backend/internal/model"
	pkgerrors "gymdesk/backend/pkg/errors"
)

var errBoom = errors.New("boom")

func verifiedMember() *model.User {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.User{
		UserID:          "u-1",
		Name:            "Asha",
		Email:           "asha@example.com",
		EmailVerifiedAt: &at,
		Phone:           "+919800000001",
		Role:            model.RoleMember,
	}
}

// ── Mock PreferenceChecker ──

type stubPrefs struct {
	values map[string]bool
}

func newStubPrefs() *stubPrefs { return &stubPrefs{values: make(map[string]bool)} }

func (s *stubPrefs) set(eventType EventType, channel string, enabled bool) {
	s.values[string(eventType)+":"+channel] = enabled
}

func (s *stubPrefs) IsChannelEnabled(_ context.Context, _ string, eventType EventType, channel string) bool {
	if v, ok := s.values[string(eventType)+":"+channel]; ok {
		return v
	}
	return DefaultEnabled(channel)
}

// ── Mock Mailer ──

type mailCall struct {
	to, subject, template string
	data                  map[string]interface{}
}

type mockMailer struct {
	calls []mailCall
	err   error
	panic bool
}

func (m *mockMailer) SendMail(_ context.Context, to, subject, templateName string, data map[string]interface{}) error {
	if m.panic {
		panic("smtp exploded")
	}
	m.calls = append(m.calls, mailCall{to: to, subject: subject, template: templateName, data: data})
	return m.err
}

// ── Mock NotificationWriter / Publisher ──

type mockWriter struct {
	mu      sync.Mutex
	records []*model.Notification
	err     error
}

func (m *mockWriter) Create(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if n.NotificationID == "" {
		n.NotificationID = fmt.Sprintf("n-%d", len(m.records)+1)
	}
	m.records = append(m.records, n)
	return nil
}

type mockPublisher struct {
	published []*model.Notification
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, n *model.Notification) error {
	m.published = append(m.published, n)
	return m.err
}

// ── Mock sms.Provider ──

type textCall struct{ phone, text string }

type mockProvider struct {
	calls []textCall
	err   error
}

func (m *mockProvider) Send(_ context.Context, phone, text string) error {
	m.calls = append(m.calls, textCall{phone: phone, text: text})
	return m.err
}

// ── Mock NotificationSettingRepository ──

type mockSettingRepo struct {
	rows      map[string]model.NotificationSetting
	err       error
	listCalls int
	getCalls  int
}

func newMockSettingRepo() *mockSettingRepo {
	return &mockSettingRepo{rows: make(map[string]model.NotificationSetting)}
}

func settingKey(userID, eventType, channel string) string {
	return userID + "|" + eventType + "|" + channel
}

func (m *mockSettingRepo) Get(_ context.Context, userID, eventType, channel string) (*model.NotificationSetting, error) {
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.rows[settingKey(userID, eventType, channel)]; ok {
		return &s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSettingRepo) ListByUser(_ context.Context, userID string) ([]model.NotificationSetting, error) {
	m.listCalls++
	if m.err != nil {
		return nil, m.err
	}
	var list []model.NotificationSetting
	for _, s := range m.rows {
		if s.UserID == userID {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *mockSettingRepo) Upsert(_ context.Context, settings []model.NotificationSetting) error {
	if m.err != nil {
		return m.err
	}
	for _, s := range settings {
		m.rows[settingKey(s.UserID, s.EventType, s.Channel)] = s
	}
	return nil
}

func (m *mockSettingRepo) InsertMissing(_ context.Context, settings []model.NotificationSetting) error {
	if m.err != nil {
		return m.err
	}
	for _, s := range settings {
		k := settingKey(s.UserID, s.EventType, s.Channel)
		if _, exists := m.rows[k]; !exists {
			m.rows[k] = s
		}
	}
	return nil
}

// ── Mock PreferenceCache ──

type mockCache struct {
	data        map[string]map[string]map[string]bool
	versions    map[string]int64
	getErr      error
	fills       int
	staleFills  int
	invalidated []string
}

func newMockCache() *mockCache {
	return &mockCache{
		data:     make(map[string]map[string]map[string]bool),
		versions: make(map[string]int64),
	}
}

func (m *mockCache) GetPreference(_ context.Context, userID, eventType, channel string) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	v, ok := m.data[userID][eventType][channel]
	if !ok {
		return false, pkgerrors.ErrCacheMiss
	}
	return v, nil
}

func (m *mockCache) PreferenceVersion(_ context.Context, userID string) (int64, error) {
	return m.versions[userID], nil
}

func (m *mockCache) FillPreferences(_ context.Context, userID string, version int64, values map[string]map[string]bool) error {
	if m.versions[userID] != version {
		m.staleFills++
		return pkgerrors.ErrCacheStale
	}
	m.fills++
	m.data[userID] = values
	return nil
}

func (m *mockCache) InvalidatePreferences(_ context.Context, userID string) error {
	m.invalidated = append(m.invalidated, userID)
	m.versions[userID]++
	delete(m.data, userID)
	return nil
}

// ── 在 ListByUser 返回前插入一次写入 ──

type interleavingSettingRepo struct {
	*mockSettingRepo
	afterList func()
}

func (r *interleavingSettingRepo) ListByUser(ctx context.Context, userID string) ([]model.NotificationSetting, error) {
	list, err := r.mockSettingRepo.ListByUser(ctx, userID)
	if fn := r.afterList; fn != nil {
		r.afterList = nil
		fn()
	}
	return list, err
}
