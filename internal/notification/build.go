package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gymdesk/backend/internal/model"
)

var (
	ErrUnknownEventType    = errors.New("未知的事件类型")
	ErrInvalidEventPayload = errors.New("事件载荷无效")
)

// BuildEvent 由事件接入接口的原始载荷构造事件
// 金额接受数字或字符串，日期接受 2006-01-02 或 RFC3339
func BuildEvent(eventType EventType, user *model.User, payload map[string]interface{}) (Event, error) {
	if !IsKnownEventType(eventType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	p := fields(payload)

	switch eventType {
	case EventPaymentReceived:
		amount, err := p.decimal("amount", true)
		if err != nil {
			return nil, err
		}
		paidAt, err := p.date("paid_at", false)
		if err != nil {
			return nil, err
		}
		return PaymentReceived{
			Recipient: user,
			PaymentID: p.str("payment_id"),
			Amount:    amount,
			Method:    p.str("method"),
			PaidAt:    paidAt,
		}, nil

	case EventSubscriptionCreated:
		plan, err := p.required("plan_name")
		if err != nil {
			return nil, err
		}
		start, err := p.date("start_date", false)
		if err != nil {
			return nil, err
		}
		end, err := p.date("end_date", true)
		if err != nil {
			return nil, err
		}
		return SubscriptionCreated{
			Recipient:      user,
			SubscriptionID: p.str("subscription_id"),
			PlanName:       plan,
			StartDate:      start,
			EndDate:        end,
		}, nil

	case EventSubscriptionPurchased:
		plan, err := p.required("plan_name")
		if err != nil {
			return nil, err
		}
		amount, err := p.decimal("amount", true)
		if err != nil {
			return nil, err
		}
		end, err := p.date("end_date", false)
		if err != nil {
			return nil, err
		}
		return SubscriptionPurchased{
			Recipient:      user,
			SubscriptionID: p.str("subscription_id"),
			PlanName:       plan,
			Amount:         amount,
			EndDate:        end,
		}, nil

	case EventSubscriptionExpiring:
		plan, err := p.required("plan_name")
		if err != nil {
			return nil, err
		}
		end, err := p.date("end_date", true)
		if err != nil {
			return nil, err
		}
		days, ok, err := p.integer("days_left")
		if err != nil {
			return nil, err
		}
		if !ok {
			days = DaysUntil(time.Now(), end)
		}
		return SubscriptionExpiring{
			Recipient:      user,
			SubscriptionID: p.str("subscription_id"),
			PlanName:       plan,
			EndDate:        end,
			DaysLeft:       days,
		}, nil

	case EventSubscriptionExpired:
		plan, err := p.required("plan_name")
		if err != nil {
			return nil, err
		}
		end, err := p.date("end_date", true)
		if err != nil {
			return nil, err
		}
		return SubscriptionExpired{
			Recipient:      user,
			SubscriptionID: p.str("subscription_id"),
			PlanName:       plan,
			EndDate:        end,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
}

// DaysUntil 按自然日计算 now 到 end 的剩余天数，已过期返回 0
func DaysUntil(now, end time.Time) int {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = end.Date()
	last := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := int(last.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ── 载荷字段解析 ──

type fields map[string]interface{}

func invalid(key, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidEventPayload, key, reason)
}

// str 读取可选的标识类字段，数字按整数格式化
func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func (f fields) required(key string) (string, error) {
	v := f.str(key)
	if v == "" {
		return "", invalid(key, "不能为空")
	}
	return v, nil
}

func (f fields) decimal(key string, required bool) (decimal.Decimal, error) {
	raw, ok := f[key]
	if !ok || raw == nil {
		if required {
			return decimal.Zero, invalid(key, "不能为空")
		}
		return decimal.Zero, nil
	}

	var (
		d   decimal.Decimal
		err error
	)
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, invalid(key, "不是有效金额")
		}
		d = decimal.NewFromFloat(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(v))
	case decimal.Decimal:
		d = v
	default:
		err = fmt.Errorf("unsupported type %T", raw)
	}
	if err != nil {
		return decimal.Zero, invalid(key, "不是有效金额")
	}
	if d.IsNegative() {
		return decimal.Zero, invalid(key, "不能为负数")
	}
	return d, nil
}

func (f fields) date(key string, required bool) (time.Time, error) {
	switch v := f[key].(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			break
		}
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t, nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
		return time.Time{}, invalid(key, "日期格式应为 YYYY-MM-DD")
	case nil:
	default:
		return time.Time{}, invalid(key, "日期格式应为 YYYY-MM-DD")
	}
	if required {
		return time.Time{}, invalid(key, "不能为空")
	}
	return time.Time{}, nil
}

// integer 返回值、是否存在、错误
func (f fields) integer(key string) (int, bool, error) {
	switch v := f[key].(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, false, invalid(key, "必须为整数")
		}
		return int(v), true, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false, invalid(key, "必须为整数")
		}
		return int(n), true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false, invalid(key, "必须为整数")
		}
		return n, true, nil
	default:
		return 0, false, invalid(key, "必须为整数")
	}
}
