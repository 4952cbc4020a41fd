package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gymdesk/backend/internal/model"
)

// DefaultChannelTimeout 单个通道发送的默认超时
const DefaultChannelTimeout = 10 * time.Second

// Result 通道名 → 是否投递成功，只包含实际尝试过的通道
// 超时记为 false，但通道可能在超时后仍完成投递（如 push 已落库），调用方不应据此重试
type Result map[string]bool

// Sent 是否至少一个通道成功
func (r Result) Sent() bool {
	for _, ok := range r {
		if ok {
			return true
		}
	}
	return false
}

// Dispatcher 按用户偏好把通知扇出到各通道，各通道结果互不影响
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]Channel
	order    []string

	timeout time.Duration
	metrics *Metrics
	logger  *zap.Logger
}

// Option Dispatcher 可选配置
type Option func(*Dispatcher)

// WithTimeout 设置单通道超时，非正数忽略
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithMetrics 启用投递指标
func WithMetrics(m *Metrics) Option {
	return func(disp *Dispatcher) { disp.metrics = m }
}

// NewDispatcher 创建分发器，channels 按给定顺序注册
func NewDispatcher(logger *zap.Logger, channels []Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channels: make(map[string]Channel, len(channels)),
		timeout:  DefaultChannelTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, ch := range channels {
		d.Register(ch)
	}
	return d
}

// Register 注册通道，同名通道替换原有实现且保留原顺序
func (d *Dispatcher) Register(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name := ch.Name()
	if _, exists := d.channels[name]; !exists {
		d.order = append(d.order, name)
	}
	d.channels[name] = ch
}

// Channel 按名称查找通道
func (d *Dispatcher) Channel(name string) (Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[name]
	return ch, ok
}

// Names 已注册通道名（注册顺序）
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.order))
	copy(names, d.order)
	return names
}

// Dispatch 向候选通道逐个投递
// preferred 为空时尝试全部已注册通道；未注册的名称跳过，重复名称只发送一次
func (d *Dispatcher) Dispatch(ctx context.Context, user *model.User, msg *Message, preferred []string) Result {
	if msg == nil {
		return Result{}
	}
	candidates := preferred
	if len(candidates) == 0 {
		candidates = d.Names()
	}

	result := make(Result, len(candidates))
	for _, name := range candidates {
		if _, done := result[name]; done {
			continue
		}
		ch, ok := d.Channel(name)
		if !ok {
			continue
		}
		result[name] = d.send(ctx, ch, user, msg)
	}
	return result
}

// DispatchEvent 渲染事件并按事件建议的通道投递
func (d *Dispatcher) DispatchEvent(ctx context.Context, ev Event) Result {
	msg := ev.Render()
	return d.Dispatch(ctx, ev.User(), &msg, ev.PreferredChannels())
}

// AvailableChannels 当前可向该用户投递此类事件的通道
func (d *Dispatcher) AvailableChannels(ctx context.Context, user *model.User, eventType EventType) []string {
	var names []string
	for _, name := range d.Names() {
		ch, ok := d.Channel(name)
		if ok && ch.CanSend(ctx, user, eventType) {
			names = append(names, name)
		}
	}
	return names
}

// send 在独立 goroutine 中执行，超时或 panic 记为失败
func (d *Dispatcher) send(ctx context.Context, ch Channel, user *model.User, msg *Message) bool {
	start := time.Now()
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("通知通道异常",
					zap.String("channel", ch.Name()),
					zap.String("event_type", string(msg.Type)),
					zap.Error(fmt.Errorf("panic: %v", r)),
				)
				done <- false
			}
		}()
		done <- ch.Send(sendCtx, user, msg)
	}()

	var ok bool
	select {
	case ok = <-done:
	case <-sendCtx.Done():
		d.logger.Warn("通知通道发送超时",
			zap.String("channel", ch.Name()),
			zap.String("event_type", string(msg.Type)),
			zap.Duration("timeout", d.timeout),
		)
		go d.awaitLate(ch.Name(), msg.Type, done)
	}
	d.metrics.observe(ch.Name(), ok, time.Since(start))
	return ok
}

// awaitLate 记录超时后才完成的投递，结果本身已按 false 返回
func (d *Dispatcher) awaitLate(channel string, eventType EventType, done <-chan bool) {
	if ok := <-done; ok {
		d.logger.Info("通知通道超时后仍完成投递",
			zap.String("channel", channel),
			zap.String("event_type", string(eventType)),
		)
	}
}
