package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── 订阅状态 ──

const (
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionCancelled = "cancelled"
)

// Plan 会员套餐表 — 对应 plans
type Plan struct {
	PlanID       string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"plan_id"`
	Name         string          `gorm:"type:varchar(100);not null"                     json:"name"`
	DurationDays int             `gorm:"not null"                                       json:"duration_days"`
	Price        decimal.Decimal `gorm:"type:numeric(10,2);not null"                    json:"price"`
	BaseModel
}

// TableName 指定表名
func (Plan) TableName() string { return "plans" }

// Subscription 会员订阅表 — 对应 subscriptions
type Subscription struct {
	SubscriptionID   string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"subscription_id"`
	UserID           string          `gorm:"type:uuid;not null"                             json:"user_id"`
	PlanID           string          `gorm:"type:uuid;not null"                             json:"plan_id"`
	StartDate        time.Time       `gorm:"type:date;not null"                             json:"start_date"`
	EndDate          time.Time       `gorm:"type:date;not null"                             json:"end_date"`
	Amount           decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"          json:"amount"`
	Status           string          `gorm:"type:varchar(20);not null;default:'active'"     json:"status"`
	ExpiryNotifiedAt *time.Time      `                                                      json:"expiry_notified_at,omitempty"`
	BaseModel

	// 关联
	User *User `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
	Plan *Plan `gorm:"foreignKey:PlanID;references:PlanID" json:"plan,omitempty"`
}

// TableName 指定表名
func (Subscription) TableName() string { return "subscriptions" }

// PlanName 套餐名称（未预加载时返回空串）
func (s *Subscription) PlanName() string {
	if s.Plan == nil {
		return ""
	}
	return s.Plan.Name
}
