package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"gymdesk/backend/internal/dto"
	"gymdesk/backend/internal/model"
	"gymdesk/backend/internal/notification"
	"gymdesk/backend/internal/repository"
)

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) SendMail(_ context.Context, to, _, _ string, _ map[string]interface{}) error {
	m.sent = append(m.sent, to)
	return nil
}

type recordingPublisher struct {
	published []*model.Notification
}

func (p *recordingPublisher) Publish(_ context.Context, n *model.Notification) error {
	p.published = append(p.published, n)
	return nil
}

type testEnv struct {
	svc       NotificationService
	users     *mockUserRepo
	notes     *mockNotificationRepo
	settings  *mockSettingRepo
	mailer    *recordingMailer
	publisher *recordingPublisher
}

func setupTestNotificationService() *testEnv {
	users := newMockUserRepo()
	notes := newMockNotificationRepo()
	settings := newMockSettingRepo()
	repo := &repository.Repository{
		User:                users,
		Notification:        notes,
		NotificationSetting: settings,
	}
	logger := zap.NewNop()
	prefs := notification.NewPreferenceStore(settings, nil, logger)
	mailer := &recordingMailer{}
	publisher := &recordingPublisher{}
	dispatcher := notification.NewDispatcher(logger, []notification.Channel{
		notification.NewEmailChannel(prefs, mailer, logger),
		notification.NewPushChannel(prefs, notes, publisher, logger),
	})

	return &testEnv{
		svc:       NewNotificationService(repo, prefs, dispatcher, publisher, logger),
		users:     users,
		notes:     notes,
		settings:  settings,
		mailer:    mailer,
		publisher: publisher,
	}
}

func createTestUser(repo *mockUserRepo, id, role string, verified bool) *model.User {
	u := &model.User{UserID: id, Name: "User " + id, Email: id + "@example.com", Role: role}
	if verified {
		at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		u.EmailVerifiedAt = &at
	}
	repo.users[id] = u
	return u
}

func seedNotification(repo *mockNotificationRepo, userID *string, typ string) *model.Notification {
	n := &model.Notification{UserID: userID, Type: typ, Title: typ, Message: typ, Priority: "normal"}
	_ = repo.Create(context.Background(), n)
	return n
}

func strPtr(s string) *string { return &s }

// ────────────────────── List / Scope ──────────────────────

func TestList_MemberSeesOnlyOwn(t *testing.T) {
	env := setupTestNotificationService()
	seedNotification(env.notes, strPtr("m-1"), "payment_received")
	seedNotification(env.notes, strPtr("m-2"), "payment_received")
	seedNotification(env.notes, nil, string(notification.TypeStaffBroadcast))

	result, err := env.svc.List(context.Background(), Viewer{UserID: "m-1", Role: model.RoleMember}, &dto.NotificationListRequest{})
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if result.Total != 1 || len(result.List) != 1 {
		t.Errorf("会员期望只看到 1 条，实际 total=%d", result.Total)
	}
	if result.List[0].Broadcast {
		t.Error("会员不应看到广播")
	}
}

func TestList_StaffSeesBroadcast(t *testing.T) {
	env := setupTestNotificationService()
	seedNotification(env.notes, strPtr("s-1"), "payment_received")
	seedNotification(env.notes, strPtr("m-2"), "payment_received")
	seedNotification(env.notes, nil, string(notification.TypeStaffBroadcast))

	result, err := env.svc.List(context.Background(), Viewer{UserID: "s-1", Role: model.RoleTrainer}, &dto.NotificationListRequest{})
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("员工期望看到 2 条（本人 + 广播），实际 %d", result.Total)
	}
	if result.UnreadCount != 2 {
		t.Errorf("期望未读 2，实际 %d", result.UnreadCount)
	}
	if !result.List[0].Broadcast {
		t.Error("列表应按创建时间倒序，最新的广播在前")
	}
}

func TestList_UnreadOnlyAndType(t *testing.T) {
	env := setupTestNotificationService()
	read := seedNotification(env.notes, strPtr("m-1"), "payment_received")
	read.MarkRead(time.Now())
	seedNotification(env.notes, strPtr("m-1"), "payment_received")
	seedNotification(env.notes, strPtr("m-1"), "subscription_expiring")
	viewer := Viewer{UserID: "m-1", Role: model.RoleMember}

	result, _ := env.svc.List(context.Background(), viewer, &dto.NotificationListRequest{UnreadOnly: true})
	if result.Total != 2 {
		t.Errorf("unread_only 期望 2，实际 %d", result.Total)
	}
	result, _ = env.svc.List(context.Background(), viewer, &dto.NotificationListRequest{Type: "subscription_expiring"})
	if result.Total != 1 {
		t.Errorf("type 过滤期望 1，实际 %d", result.Total)
	}
	if result.UnreadCount != 2 {
		t.Errorf("未读数不受筛选影响，期望 2，实际 %d", result.UnreadCount)
	}
}

func TestList_Pagination(t *testing.T) {
	env := setupTestNotificationService()
	for i := 0; i < 5; i++ {
		seedNotification(env.notes, strPtr("m-1"), "payment_received")
	}
	req := &dto.NotificationListRequest{PaginationRequest: dto.PaginationRequest{Page: 2, PageSize: 2}}

	result, err := env.svc.List(context.Background(), Viewer{UserID: "m-1", Role: model.RoleMember}, req)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 5 || len(result.List) != 2 {
		t.Errorf("期望 total=5 本页 2 条，实际 total=%d 本页 %d 条", result.Total, len(result.List))
	}
}

// ────────────────────── MarkAsRead ──────────────────────

func TestMarkAsRead_Monotonic(t *testing.T) {
	env := setupTestNotificationService()
	n := seedNotification(env.notes, strPtr("m-1"), "payment_received")
	viewer := Viewer{UserID: "m-1", Role: model.RoleMember}

	first, err := env.svc.MarkAsRead(context.Background(), viewer, n.NotificationID)
	if err != nil {
		t.Fatalf("MarkAsRead 应成功: %v", err)
	}
	if !first.IsRead || first.ReadAt == nil {
		t.Fatal("应标记为已读")
	}
	firstAt := *first.ReadAt

	second, err := env.svc.MarkAsRead(context.Background(), viewer, n.NotificationID)
	if err != nil {
		t.Fatalf("重复 MarkAsRead 应成功: %v", err)
	}
	if !second.ReadAt.Equal(firstAt) {
		t.Errorf("read_at 不应被覆盖，期望 %v，实际 %v", firstAt, *second.ReadAt)
	}
}

func TestMarkAsRead_OtherUsersNotification(t *testing.T) {
	env := setupTestNotificationService()
	n := seedNotification(env.notes, strPtr("m-2"), "payment_received")

	_, err := env.svc.MarkAsRead(context.Background(), Viewer{UserID: "m-1", Role: model.RoleMember}, n.NotificationID)
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("期望 ErrNotificationNotFound，实际: %v", err)
	}
	if n.IsRead() {
		t.Error("他人的通知不应被标记")
	}
}

func TestMarkAsRead_MemberCannotReadBroadcast(t *testing.T) {
	env := setupTestNotificationService()
	n := seedNotification(env.notes, nil, string(notification.TypeStaffBroadcast))

	_, err := env.svc.MarkAsRead(context.Background(), Viewer{UserID: "m-1", Role: model.RoleMember}, n.NotificationID)
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("期望 ErrNotificationNotFound，实际: %v", err)
	}
}

func TestMarkAllAsRead_Scope(t *testing.T) {
	env := setupTestNotificationService()
	own := seedNotification(env.notes, strPtr("m-1"), "payment_received")
	other := seedNotification(env.notes, strPtr("m-2"), "payment_received")
	broadcast := seedNotification(env.notes, nil, string(notification.TypeStaffBroadcast))

	updated, err := env.svc.MarkAllAsRead(context.Background(), Viewer{UserID: "m-1", Role: model.RoleMember})
	if err != nil {
		t.Fatal(err)
	}
	if updated != 1 || !own.IsRead() {
		t.Errorf("期望只更新本人 1 条，实际 %d", updated)
	}
	if other.IsRead() || broadcast.IsRead() {
		t.Error("会员批量已读不应影响他人通知与广播")
	}
}

func TestMarkAllAsRead_StaffIncludesBroadcast(t *testing.T) {
	env := setupTestNotificationService()
	seedNotification(env.notes, strPtr("s-1"), "payment_received")
	broadcast := seedNotification(env.notes, nil, string(notification.TypeStaffBroadcast))

	updated, _ := env.svc.MarkAllAsRead(context.Background(), Viewer{UserID: "s-1", Role: model.RoleAdmin})
	if updated != 2 || !broadcast.IsRead() {
		t.Errorf("员工批量已读应包含广播，实际更新 %d", updated)
	}
}

func TestMarkAllAsRead_StaffLeavesOtherStaffUntouched(t *testing.T) {
	env := setupTestNotificationService()
	mine := seedNotification(env.notes, strPtr("s-2"), "payment_received")
	broadcast := seedNotification(env.notes, nil, string(notification.TypeStaffBroadcast))
	other := seedNotification(env.notes, strPtr("s-3"), "payment_received")

	updated, err := env.svc.MarkAllAsRead(context.Background(), Viewer{UserID: "s-2", Role: model.RoleTrainer})
	if err != nil {
		t.Fatalf("MarkAllAsRead 应成功: %v", err)
	}
	if updated != 2 {
		t.Errorf("期望更新 2 条（本人 + 广播），实际 %d", updated)
	}
	if !mine.IsRead() || !broadcast.IsRead() {
		t.Error("本人通知与广播都应标记已读")
	}
	if other.IsRead() {
		t.Error("其他员工的通知不应被标记已读")
	}

	count, _ := env.svc.UnreadCount(context.Background(), Viewer{UserID: "s-3", Role: model.RoleReceptionist})
	if count != 1 {
		t.Errorf("s-3 期望仍有 1 条未读，实际 %d", count)
	}
}

// ────────────────────── Delete ──────────────────────

func TestDelete(t *testing.T) {
	env := setupTestNotificationService()
	n := seedNotification(env.notes, strPtr("m-1"), "payment_received")
	viewer := Viewer{UserID: "m-1", Role: model.RoleMember}

	if err := env.svc.Delete(context.Background(), Viewer{UserID: "m-2", Role: model.RoleMember}, n.NotificationID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("删除他人通知期望 ErrNotificationNotFound，实际: %v", err)
	}
	if err := env.svc.Delete(context.Background(), viewer, n.NotificationID); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	count, _ := env.svc.UnreadCount(context.Background(), viewer)
	if count != 0 {
		t.Errorf("删除后未读应为 0，实际 %d", count)
	}
	if err := env.svc.Delete(context.Background(), viewer, n.NotificationID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("重复删除期望 ErrNotificationNotFound，实际: %v", err)
	}
}

// ────────────────────── Settings ──────────────────────

func TestSettings_ProvisionAndUpdate(t *testing.T) {
	env := setupTestNotificationService()
	ctx := context.Background()

	if err := env.svc.ProvisionUser(ctx, "m-1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("未知用户期望 ErrUserNotFound，实际: %v", err)
	}
	createTestUser(env.users, "m-1", model.RoleMember, true)
	if err := env.svc.ProvisionUser(ctx, "m-1"); err != nil {
		t.Fatalf("ProvisionUser 应成功: %v", err)
	}
	enabled := true
	resp, err := env.svc.UpdateSettings(ctx, "m-1", &dto.UpdateSettingsRequest{
		Preferences: []dto.PreferenceItem{{EventType: "subscription_expiring", Channel: "whatsapp", Enabled: &enabled}},
	})
	if err != nil {
		t.Fatalf("UpdateSettings 应成功: %v", err)
	}
	if len(resp.Preferences) != len(notification.AllEventTypes)*len(notification.AllChannels) {
		t.Errorf("应返回完整矩阵，实际 %d 项", len(resp.Preferences))
	}
	for _, p := range resp.Preferences {
		if p.EventType == "subscription_expiring" && p.Channel == "whatsapp" && !p.Enabled {
			t.Error("whatsapp 应已开启")
		}
		if p.EventType == "payment_received" && p.Channel == "sms" && p.Enabled {
			t.Error("sms 应保持默认关闭")
		}
	}
	if !resp.Defaults["email"] || resp.Defaults["sms"] {
		t.Errorf("defaults 不符: %v", resp.Defaults)
	}
}

func TestUpdateSettings_InvalidChannel(t *testing.T) {
	env := setupTestNotificationService()
	enabled := true
	_, err := env.svc.UpdateSettings(context.Background(), "m-1", &dto.UpdateSettingsRequest{
		Preferences: []dto.PreferenceItem{{EventType: "payment_received", Channel: "telegram", Enabled: &enabled}},
	})
	if !errors.Is(err, notification.ErrInvalidPreference) {
		t.Errorf("期望 ErrInvalidPreference，实际: %v", err)
	}
}

func TestAvailableChannels(t *testing.T) {
	env := setupTestNotificationService()
	createTestUser(env.users, "m-1", model.RoleMember, false)

	resp, err := env.svc.AvailableChannels(context.Background(), "m-1", "payment_received")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Channels) != 1 || resp.Channels[0] != "push" {
		t.Errorf("未验证邮箱期望只有 push，实际 %v", resp.Channels)
	}

	if _, err := env.svc.AvailableChannels(context.Background(), "m-1", "bogus"); !errors.Is(err, notification.ErrUnknownEventType) {
		t.Errorf("期望 ErrUnknownEventType，实际: %v", err)
	}
}

// ────────────────────── Emit / Notify ──────────────────────

func TestEmit_PaymentReceived(t *testing.T) {
	env := setupTestNotificationService()
	createTestUser(env.users, "m-1", model.RoleMember, true)

	result, err := env.svc.Emit(context.Background(), &dto.EmitEventRequest{
		Type:    "payment_received",
		UserID:  "m-1",
		Payload: map[string]interface{}{"amount": float64(500), "payment_id": float64(42)},
	})
	if err != nil {
		t.Fatalf("Emit 应成功: %v", err)
	}
	if !result["push"] || !result["email"] {
		t.Errorf("期望 push/email 均成功，实际 %v", result)
	}
	if len(env.notes.records) != 1 || env.notes.records[0].Message != "Payment of ₹500 received successfully" {
		t.Errorf("站内记录不符: %+v", env.notes.records)
	}
	if len(env.mailer.sent) != 1 || env.mailer.sent[0] != "m-1@example.com" {
		t.Errorf("邮件收件人不符: %v", env.mailer.sent)
	}
	if len(env.publisher.published) != 1 {
		t.Errorf("期望实时推送 1 次，实际 %d", len(env.publisher.published))
	}
}

func TestEmit_UnverifiedEmail(t *testing.T) {
	env := setupTestNotificationService()
	createTestUser(env.users, "m-1", model.RoleMember, false)

	result, err := env.svc.Emit(context.Background(), &dto.EmitEventRequest{
		Type:    "subscription_expiring",
		UserID:  "m-1",
		Payload: map[string]interface{}{"plan_name": "Gold", "end_date": "2026-10-17", "days_left": float64(3)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result["push"] || result["email"] {
		t.Errorf("期望 {push:true, email:false}，实际 %v", result)
	}
	if len(result) != 2 {
		t.Errorf("只应尝试 push / email，实际 %v", result)
	}
}

func TestEmit_Errors(t *testing.T) {
	env := setupTestNotificationService()
	createTestUser(env.users, "m-1", model.RoleMember, true)
	ctx := context.Background()

	if _, err := env.svc.Emit(ctx, &dto.EmitEventRequest{Type: "bogus", UserID: "m-1"}); !errors.Is(err, notification.ErrUnknownEventType) {
		t.Errorf("期望 ErrUnknownEventType，实际: %v", err)
	}
	if _, err := env.svc.Emit(ctx, &dto.EmitEventRequest{Type: "payment_received", UserID: "nobody"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
	if _, err := env.svc.Emit(ctx, &dto.EmitEventRequest{Type: "payment_received", UserID: "m-1"}); !errors.Is(err, notification.ErrInvalidEventPayload) {
		t.Errorf("期望 ErrInvalidEventPayload，实际: %v", err)
	}
	if len(env.notes.records) != 0 {
		t.Error("失败的接入不应产生通知")
	}
}

// ────────────────────── Broadcast ──────────────────────

func TestBroadcast(t *testing.T) {
	env := setupTestNotificationService()

	resp, err := env.svc.Broadcast(context.Background(), &dto.BroadcastRequest{
		Title:   "3 subscriptions expired",
		Message: "Follow up with members for renewal",
	})
	if err != nil {
		t.Fatalf("Broadcast 应成功: %v", err)
	}
	if !resp.Broadcast || resp.Priority != "normal" {
		t.Errorf("广播字段不符: %+v", resp)
	}
	if len(env.publisher.published) != 1 || !env.publisher.published[0].IsBroadcast() {
		t.Error("广播应推送给员工")
	}

	staff, _ := env.svc.UnreadCount(context.Background(), Viewer{UserID: "s-1", Role: model.RoleReceptionist})
	member, _ := env.svc.UnreadCount(context.Background(), Viewer{UserID: "m-1", Role: model.RoleMember})
	if staff != 1 || member != 0 {
		t.Errorf("期望员工未读 1 会员未读 0，实际 %d / %d", staff, member)
	}
}
