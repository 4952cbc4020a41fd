//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gymdesk/backend/internal/model"
	"gymdesk/backend/internal/repository"
	"gymdesk/backend/pkg/database"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=gymdesk password=gymdesk_password dbname=gymdesk_test sslmode=disable TimeZone=UTC"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	// 使用正式迁移脚本建表
	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "数据库迁移失败: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Exit(code)
}

// createUser 创建测试用户，测试结束时级联清理
func createUser(t *testing.T, role string) *model.User {
	t.Helper()
	u := &model.User{
		Name:  "测试用户",
		Email: fmt.Sprintf("u%d@example.com", time.Now().UnixNano()),
		Phone: "+919800000001",
		Role:  role,
	}
	if err := testDB.Create(u).Error; err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
	t.Cleanup(func() {
		testDB.Unscoped().Where("user_id = ?", u.UserID).Delete(&model.Notification{})
		testDB.Where("user_id = ?", u.UserID).Delete(&model.NotificationSetting{})
		testDB.Unscoped().Delete(u)
	})
	return u
}

func createNotification(t *testing.T, repo repository.NotificationRepository, userID *string, typ string) *model.Notification {
	t.Helper()
	n := &model.Notification{
		UserID:   userID,
		Type:     typ,
		Title:    "标题",
		Message:  "内容",
		Data:     datatypes.JSONMap{"k": "v"},
		Priority: "normal",
	}
	if err := repo.Create(context.Background(), n); err != nil {
		t.Fatalf("创建通知失败: %v", err)
	}
	if userID == nil {
		t.Cleanup(func() { testDB.Unscoped().Delete(n) })
	}
	return n
}

// ═══════════════════════════════════════════════════════════
// NotificationRepository
// ═══════════════════════════════════════════════════════════

func TestNotificationRepo_ScopeAndReadState(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewNotificationRepo(testDB)

	member := createUser(t, model.RoleMember)
	staff := createUser(t, model.RoleTrainer)

	own := createNotification(t, repo, &member.UserID, "payment_received")
	broadcast := createNotification(t, repo, nil, "staff_broadcast")

	memberScope := repository.ScopeFor(member.UserID, member.Role)
	staffScope := repository.ScopeFor(staff.UserID, staff.Role)

	if _, err := repo.GetVisible(ctx, broadcast.NotificationID, memberScope); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("会员不应看到广播，实际: %v", err)
	}
	if _, err := repo.GetVisible(ctx, broadcast.NotificationID, staffScope); err != nil {
		t.Errorf("员工应看到广播: %v", err)
	}
	if _, err := repo.GetVisible(ctx, own.NotificationID, staffScope); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("员工不应看到他人的通知，实际: %v", err)
	}

	first := time.Now().UTC().Truncate(time.Second)
	affected, err := repo.MarkAsRead(ctx, own.NotificationID, memberScope, first)
	if err != nil || affected != 1 {
		t.Fatalf("首次已读期望影响 1 行，实际 %d, err=%v", affected, err)
	}
	affected, _ = repo.MarkAsRead(ctx, own.NotificationID, memberScope, first.Add(time.Hour))
	if affected != 0 {
		t.Errorf("重复已读不应更新，实际影响 %d 行", affected)
	}
	got, _ := repo.GetVisible(ctx, own.NotificationID, memberScope)
	if got.ReadAt == nil || !got.ReadAt.Equal(first) {
		t.Errorf("read_at 应保持首次时间 %v，实际 %v", first, got.ReadAt)
	}

	unread, _ := repo.CountUnread(ctx, memberScope)
	if unread != 0 {
		t.Errorf("期望未读 0，实际 %d", unread)
	}
}

func TestNotificationRepo_ListFilterAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewNotificationRepo(testDB)
	member := createUser(t, model.RoleMember)
	scope := repository.ScopeFor(member.UserID, member.Role)

	createNotification(t, repo, &member.UserID, "payment_received")
	createNotification(t, repo, &member.UserID, "subscription_expiring")
	last := createNotification(t, repo, &member.UserID, "payment_received")

	list, total, err := repo.ListVisible(ctx, scope, repository.NotificationFilter{Type: "payment_received"}, 0, 10)
	if err != nil {
		t.Fatalf("ListVisible 失败: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Errorf("期望 2 条 payment_received，实际 total=%d len=%d", total, len(list))
	}
	if list[0].NotificationID != last.NotificationID {
		t.Error("列表应按 created_at 倒序")
	}

	affected, err := repo.Delete(ctx, last.NotificationID, scope)
	if err != nil || affected != 1 {
		t.Fatalf("删除期望影响 1 行，实际 %d, err=%v", affected, err)
	}
	if _, err := repo.GetVisible(ctx, last.NotificationID, scope); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Error("软删除后不应再可见")
	}

	updated, _ := repo.MarkAllAsRead(ctx, scope, time.Now())
	if updated != 2 {
		t.Errorf("期望批量已读 2 条，实际 %d", updated)
	}
}

// ═══════════════════════════════════════════════════════════
// NotificationSettingRepository
// ═══════════════════════════════════════════════════════════

func TestNotificationSettingRepo_UpsertAndInsertMissing(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewNotificationSettingRepo(testDB)
	member := createUser(t, model.RoleMember)

	err := repo.Upsert(ctx, []model.NotificationSetting{
		{UserID: member.UserID, EventType: "payment_received", Channel: "sms", Enabled: true},
	})
	if err != nil {
		t.Fatalf("Upsert 失败: %v", err)
	}

	// 补齐默认值时不覆盖已有选择
	err = repo.InsertMissing(ctx, []model.NotificationSetting{
		{UserID: member.UserID, EventType: "payment_received", Channel: "sms", Enabled: false},
		{UserID: member.UserID, EventType: "payment_received", Channel: "email", Enabled: true},
	})
	if err != nil {
		t.Fatalf("InsertMissing 失败: %v", err)
	}

	s, err := repo.Get(ctx, member.UserID, "payment_received", "sms")
	if err != nil {
		t.Fatalf("Get 失败: %v", err)
	}
	if !s.Enabled {
		t.Error("InsertMissing 不应覆盖用户已开启的 sms")
	}

	err = repo.Upsert(ctx, []model.NotificationSetting{
		{UserID: member.UserID, EventType: "payment_received", Channel: "sms", Enabled: false},
	})
	if err != nil {
		t.Fatalf("Upsert 失败: %v", err)
	}
	all, _ := repo.ListByUser(ctx, member.UserID)
	if len(all) != 2 {
		t.Errorf("期望 2 条偏好，实际 %d", len(all))
	}
	for _, s := range all {
		if s.Channel == "sms" && s.Enabled {
			t.Error("Upsert 应覆盖为关闭")
		}
	}

	if _, err := repo.Get(ctx, member.UserID, "payment_received", "whatsapp"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("未设置的组合期望 ErrRecordNotFound，实际: %v", err)
	}
}

// ═══════════════════════════════════════════════════════════
// SubscriptionRepository
// ═══════════════════════════════════════════════════════════

func TestSubscriptionRepo_ExpiryQueries(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSubscriptionRepo(testDB)
	member := createUser(t, model.RoleMember)

	plan := &model.Plan{Name: fmt.Sprintf("Gold-%d", time.Now().UnixNano()), DurationDays: 30, Price: decimal.NewFromInt(1500)}
	if err := testDB.Create(plan).Error; err != nil {
		t.Fatalf("创建套餐失败: %v", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	expiring := &model.Subscription{UserID: member.UserID, PlanID: plan.PlanID, StartDate: today.AddDate(0, -1, 0), EndDate: today.AddDate(0, 0, 3), Status: model.SubscriptionActive}
	lapsed := &model.Subscription{UserID: member.UserID, PlanID: plan.PlanID, StartDate: today.AddDate(0, -2, 0), EndDate: today.AddDate(0, 0, -1), Status: model.SubscriptionActive}
	for _, s := range []*model.Subscription{expiring, lapsed} {
		if err := testDB.Create(s).Error; err != nil {
			t.Fatalf("创建订阅失败: %v", err)
		}
	}
	t.Cleanup(func() {
		testDB.Where("plan_id = ?", plan.PlanID).Delete(&model.Subscription{})
		testDB.Delete(plan)
	})

	list, err := repo.ListExpiring(ctx, today, today.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("ListExpiring 失败: %v", err)
	}
	found := false
	for _, s := range list {
		if s.SubscriptionID == expiring.SubscriptionID {
			found = true
			if s.User == nil || s.PlanName() != plan.Name {
				t.Error("应预加载 User 与 Plan")
			}
		}
	}
	if !found {
		t.Fatal("ListExpiring 应包含 3 天后到期的订阅")
	}

	if err := repo.MarkExpiryNotified(ctx, expiring.SubscriptionID, time.Now()); err != nil {
		t.Fatalf("MarkExpiryNotified 失败: %v", err)
	}
	list, _ = repo.ListExpiring(ctx, today, today.AddDate(0, 0, 7))
	for _, s := range list {
		if s.SubscriptionID == expiring.SubscriptionID {
			t.Error("已提醒的订阅不应再次出现")
		}
	}

	changed, err := repo.MarkExpired(ctx, lapsed.SubscriptionID)
	if err != nil || !changed {
		t.Fatalf("首次 MarkExpired 应变更状态，changed=%v err=%v", changed, err)
	}
	changed, _ = repo.MarkExpired(ctx, lapsed.SubscriptionID)
	if changed {
		t.Error("重复 MarkExpired 不应再次变更")
	}
}
