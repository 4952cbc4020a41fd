// Package scheduler 后台定时任务
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gymdesk/backend/config"
	"gymdesk/backend/internal/dto"
	"gymdesk/backend/internal/notification"
	"gymdesk/backend/internal/repository"
)

// Notifier 任务所需的通知能力，由 service.NotificationService 实现
type Notifier interface {
	Notify(ctx context.Context, ev notification.Event) notification.Result
	Broadcast(ctx context.Context, req *dto.BroadcastRequest) (*dto.NotificationResponse, error)
}

// RunSummary 单次执行统计
type RunSummary struct {
	Reminded int
	Expired  int
	Failed   int
}

// ExpiryJob 订阅到期检查：提前提醒即将到期的订阅，并将已过期订阅置为 expired
type ExpiryJob struct {
	subs     repository.SubscriptionRepository
	notifier Notifier
	interval time.Duration
	window   int
	logger   *zap.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExpiryJob 创建到期检查任务
func NewExpiryJob(cfg *config.SchedulerConfig, subs repository.SubscriptionRepository, notifier Notifier, logger *zap.Logger) *ExpiryJob {
	return &ExpiryJob{
		subs:     subs,
		notifier: notifier,
		interval: cfg.ExpiryInterval,
		window:   cfg.ExpiringDays,
		logger:   logger,
		now:      time.Now,
	}
}

// Start 立即执行一次，之后按 interval 周期执行
func (j *ExpiryJob) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(j.interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer ticker.Stop()

		j.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.tick(ctx)
			}
		}
	}()

	j.logger.Info("订阅到期检查任务已启动",
		zap.Duration("interval", j.interval),
		zap.Int("expiring_days", j.window),
	)
}

// Stop 停止任务并等待当前一轮结束
func (j *ExpiryJob) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
	j.logger.Info("订阅到期检查任务已停止")
}

func (j *ExpiryJob) tick(ctx context.Context) {
	summary, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error("订阅到期检查失败", zap.Error(err))
		return
	}
	if summary.Reminded > 0 || summary.Expired > 0 || summary.Failed > 0 {
		j.logger.Info("订阅到期检查完成",
			zap.Int("reminded", summary.Reminded),
			zap.Int("expired", summary.Expired),
			zap.Int("failed", summary.Failed),
		)
	}
}

// RunOnce 执行一轮检查；单条订阅处理失败只计数，不中断本轮
func (j *ExpiryJob) RunOnce(ctx context.Context) (RunSummary, error) {
	var summary RunSummary
	now := j.now()
	today := startOfDay(now)

	expiring, err := j.subs.ListExpiring(ctx, today, today.AddDate(0, 0, j.window))
	if err != nil {
		return summary, fmt.Errorf("查询即将到期订阅失败: %w", err)
	}
	for i := range expiring {
		sub := &expiring[i]
		if sub.User == nil {
			summary.Failed++
			j.logger.Warn("订阅缺少会员信息，跳过提醒", zap.String("subscription_id", sub.SubscriptionID))
			continue
		}
		j.notifier.Notify(ctx, notification.SubscriptionExpiring{
			Recipient:      sub.User,
			SubscriptionID: sub.SubscriptionID,
			PlanName:       sub.PlanName(),
			EndDate:        sub.EndDate,
			DaysLeft:       notification.DaysUntil(now, sub.EndDate),
		})
		// 无论投递结果如何都只提醒一次
		if err := j.subs.MarkExpiryNotified(ctx, sub.SubscriptionID, now); err != nil {
			summary.Failed++
			j.logger.Error("记录到期提醒时间失败", zap.String("subscription_id", sub.SubscriptionID), zap.Error(err))
			continue
		}
		summary.Reminded++
	}

	lapsed, err := j.subs.ListLapsed(ctx, today)
	if err != nil {
		return summary, fmt.Errorf("查询已过期订阅失败: %w", err)
	}
	var members []string
	for i := range lapsed {
		sub := &lapsed[i]
		changed, err := j.subs.MarkExpired(ctx, sub.SubscriptionID)
		if err != nil {
			summary.Failed++
			j.logger.Error("更新订阅状态失败", zap.String("subscription_id", sub.SubscriptionID), zap.Error(err))
			continue
		}
		if !changed {
			continue
		}
		summary.Expired++
		if sub.User == nil {
			continue
		}
		members = append(members, sub.User.Name)
		j.notifier.Notify(ctx, notification.SubscriptionExpired{
			Recipient:      sub.User,
			SubscriptionID: sub.SubscriptionID,
			PlanName:       sub.PlanName(),
			EndDate:        sub.EndDate,
		})
	}

	if summary.Expired > 0 {
		j.broadcastSummary(ctx, summary.Expired, members)
	}
	return summary, nil
}

func (j *ExpiryJob) broadcastSummary(ctx context.Context, expired int, members []string) {
	_, err := j.notifier.Broadcast(ctx, &dto.BroadcastRequest{
		Title:    "Subscriptions Expired",
		Message:  fmt.Sprintf("%d subscription(s) expired and were marked inactive", expired),
		Priority: string(notification.PriorityHigh),
		Data:     map[string]interface{}{"count": expired, "members": members},
	})
	if err != nil {
		j.logger.Error("发送到期汇总广播失败", zap.Error(err))
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
