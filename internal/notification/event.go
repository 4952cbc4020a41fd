// Package notification 通知分发核心：业务事件 → 渲染 → 按用户偏好扇出到各投递通道
package notification

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gymdesk/backend/internal/model"
)

// EventType 事件类型（封闭枚举，新增类型只需新增事件结构体）
type EventType string

const (
	EventSubscriptionCreated   EventType = "subscription_created"
	EventSubscriptionExpiring  EventType = "subscription_expiring"
	EventSubscriptionExpired   EventType = "subscription_expired"
	EventSubscriptionPurchased EventType = "subscription_purchased"
	EventPaymentReceived       EventType = "payment_received"
)

// TypeStaffBroadcast 员工广播记录的类型，不属于业务事件，不参与偏好设置
const TypeStaffBroadcast EventType = "staff_broadcast"

// AllEventTypes 全部已知事件类型，顺序即设置页展示顺序
var AllEventTypes = []EventType{
	EventSubscriptionCreated,
	EventSubscriptionPurchased,
	EventSubscriptionExpiring,
	EventSubscriptionExpired,
	EventPaymentReceived,
}

// IsKnownEventType 是否为已知事件类型
func IsKnownEventType(t EventType) bool {
	for _, known := range AllEventTypes {
		if known == t {
			return true
		}
	}
	return false
}

// Priority 通知优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// 展示色
const (
	ColorGreen = "#10b981"
	ColorBlue  = "#3b82f6"
	ColorAmber = "#f59e0b"
	ColorRed   = "#ef4444"
)

const dateLayout = "2006-01-02"

// Message 渲染后的通知内容，各通道共用
type Message struct {
	Type     EventType              `json:"type"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Data     map[string]interface{} `json:"data"`
	Priority Priority               `json:"priority"`
	Color    string                 `json:"color"`
	Icon     string                 `json:"icon"`
}

// Event 业务事件
// Render 只依赖事件自身字段，不读时钟、不访问外部状态
type Event interface {
	Type() EventType
	User() *model.User
	// Data 原始载荷
	Data() map[string]interface{}
	Render() Message
	// PreferredChannels 建议通道，空切片表示尝试全部已注册通道
	PreferredChannels() []string
	sealed()
}

// defaultPreferred 内置事件统一优先站内推送与邮件
func defaultPreferred() []string {
	return []string{ChannelPush, ChannelEmail}
}

func rupees(d decimal.Decimal) string {
	return "₹" + d.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// ────────────────────── PaymentReceived ──────────────────────

// PaymentReceived 收款完成
type PaymentReceived struct {
	Recipient *model.User
	PaymentID string
	Amount    decimal.Decimal
	Method    string
	PaidAt    time.Time
}

func (e PaymentReceived) Type() EventType   { return EventPaymentReceived }
func (e PaymentReceived) User() *model.User { return e.Recipient }
func (e PaymentReceived) sealed()           {}

func (e PaymentReceived) Data() map[string]interface{} {
	return map[string]interface{}{
		"payment_id": e.PaymentID,
		"amount":     e.Amount.String(),
		"method":     e.Method,
		"paid_at":    formatDate(e.PaidAt),
	}
}

func (e PaymentReceived) Render() Message {
	return Message{
		Type:    EventPaymentReceived,
		Title:   "Payment Received",
		Message: fmt.Sprintf("Payment of %s received successfully", rupees(e.Amount)),
		Data: map[string]interface{}{
			"payment_id": e.PaymentID,
			"amount":     e.Amount.String(),
		},
		Priority: PriorityNormal,
		Color:    ColorGreen,
		Icon:     "credit-card",
	}
}

func (e PaymentReceived) PreferredChannels() []string { return defaultPreferred() }

// ────────────────────── SubscriptionCreated ──────────────────────

// SubscriptionCreated 后台为会员开通订阅
type SubscriptionCreated struct {
	Recipient      *model.User
	SubscriptionID string
	PlanName       string
	StartDate      time.Time
	EndDate        time.Time
}

func (e SubscriptionCreated) Type() EventType   { return EventSubscriptionCreated }
func (e SubscriptionCreated) User() *model.User { return e.Recipient }
func (e SubscriptionCreated) sealed()           {}

func (e SubscriptionCreated) Data() map[string]interface{} {
	return map[string]interface{}{
		"subscription_id": e.SubscriptionID,
		"plan_name":       e.PlanName,
		"start_date":      formatDate(e.StartDate),
		"end_date":        formatDate(e.EndDate),
	}
}

func (e SubscriptionCreated) Render() Message {
	return Message{
		Type:  EventSubscriptionCreated,
		Title: "Subscription Created",
		Message: fmt.Sprintf("Your %s subscription has been created and is valid until %s",
			e.PlanName, formatDate(e.EndDate)),
		Data: map[string]interface{}{
			"subscription_id": e.SubscriptionID,
			"plan_name":       e.PlanName,
			"end_date":        formatDate(e.EndDate),
		},
		Priority: PriorityNormal,
		Color:    ColorBlue,
		Icon:     "user-plus",
	}
}

func (e SubscriptionCreated) PreferredChannels() []string { return defaultPreferred() }

// ────────────────────── SubscriptionPurchased ──────────────────────

// SubscriptionPurchased 会员自助购买套餐
type SubscriptionPurchased struct {
	Recipient      *model.User
	SubscriptionID string
	PlanName       string
	Amount         decimal.Decimal
	EndDate        time.Time
}

func (e SubscriptionPurchased) Type() EventType   { return EventSubscriptionPurchased }
func (e SubscriptionPurchased) User() *model.User { return e.Recipient }
func (e SubscriptionPurchased) sealed()           {}

func (e SubscriptionPurchased) Data() map[string]interface{} {
	return map[string]interface{}{
		"subscription_id": e.SubscriptionID,
		"plan_name":       e.PlanName,
		"amount":          e.Amount.String(),
		"end_date":        formatDate(e.EndDate),
	}
}

func (e SubscriptionPurchased) Render() Message {
	return Message{
		Type:    EventSubscriptionPurchased,
		Title:   "Subscription Purchased",
		Message: fmt.Sprintf("You have purchased the %s plan for %s", e.PlanName, rupees(e.Amount)),
		Data: map[string]interface{}{
			"subscription_id": e.SubscriptionID,
			"plan_name":       e.PlanName,
			"amount":          e.Amount.String(),
		},
		Priority: PriorityNormal,
		Color:    ColorGreen,
		Icon:     "shopping-cart",
	}
}

func (e SubscriptionPurchased) PreferredChannels() []string { return defaultPreferred() }

// ────────────────────── SubscriptionExpiring ──────────────────────

// SubscriptionExpiring 订阅即将到期；DaysLeft 由触发方在构造时计算
type SubscriptionExpiring struct {
	Recipient      *model.User
	SubscriptionID string
	PlanName       string
	EndDate        time.Time
	DaysLeft       int
}

func (e SubscriptionExpiring) Type() EventType   { return EventSubscriptionExpiring }
func (e SubscriptionExpiring) User() *model.User { return e.Recipient }
func (e SubscriptionExpiring) sealed()           {}

func (e SubscriptionExpiring) Data() map[string]interface{} {
	return map[string]interface{}{
		"subscription_id": e.SubscriptionID,
		"plan_name":       e.PlanName,
		"end_date":        formatDate(e.EndDate),
		"days_left":       e.DaysLeft,
	}
}

func (e SubscriptionExpiring) Render() Message {
	return Message{
		Type:  EventSubscriptionExpiring,
		Title: "Subscription Expiring Soon",
		Message: fmt.Sprintf("Your %s subscription expires %s on %s",
			e.PlanName, daysPhrase(e.DaysLeft), formatDate(e.EndDate)),
		Data: map[string]interface{}{
			"subscription_id": e.SubscriptionID,
			"plan_name":       e.PlanName,
			"end_date":        formatDate(e.EndDate),
			"days_left":       e.DaysLeft,
		},
		Priority: PriorityHigh,
		Color:    ColorAmber,
		Icon:     "clock",
	}
}

func (e SubscriptionExpiring) PreferredChannels() []string { return defaultPreferred() }

func daysPhrase(days int) string {
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "in 1 day"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

// ────────────────────── SubscriptionExpired ──────────────────────

// SubscriptionExpired 订阅已过期
type SubscriptionExpired struct {
	Recipient      *model.User
	SubscriptionID string
	PlanName       string
	EndDate        time.Time
}

func (e SubscriptionExpired) Type() EventType   { return EventSubscriptionExpired }
func (e SubscriptionExpired) User() *model.User { return e.Recipient }
func (e SubscriptionExpired) sealed()           {}

func (e SubscriptionExpired) Data() map[string]interface{} {
	return map[string]interface{}{
		"subscription_id": e.SubscriptionID,
		"plan_name":       e.PlanName,
		"end_date":        formatDate(e.EndDate),
	}
}

func (e SubscriptionExpired) Render() Message {
	return Message{
		Type:  EventSubscriptionExpired,
		Title: "Subscription Expired",
		Message: fmt.Sprintf("Your %s subscription expired on %s. Renew to keep access",
			e.PlanName, formatDate(e.EndDate)),
		Data: map[string]interface{}{
			"subscription_id": e.SubscriptionID,
			"plan_name":       e.PlanName,
			"end_date":        formatDate(e.EndDate),
		},
		Priority: PriorityUrgent,
		Color:    ColorRed,
		Icon:     "alert-circle",
	}
}

func (e SubscriptionExpired) PreferredChannels() []string { return defaultPreferred() }
