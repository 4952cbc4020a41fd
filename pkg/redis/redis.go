package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gymdesk/backend/config"
	pkgerrors "gymdesk/backend/pkg/errors"
)

// Client Redis 客户端封装
// 当前用于通知偏好缓存；Redis 不可用时调用方降级直连数据库
type Client struct {
	rdb    goredis.UniversalClient
	logger *zap.Logger
	ttl    time.Duration
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return NewWithClient(rdb, ttl, logger), nil
}

// NewWithClient 基于已有连接构造（测试或共享连接时使用）
func NewWithClient(rdb goredis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, logger: logger, ttl: ttl}
}

// ── 通知偏好缓存 ──
// 每个用户一个 Hash：field = "<event_type>:<channel>"，value = "1" / "0"
// 另有一个版本号，每次失效时自增；回填只在版本未变时生效，避免旧数据覆盖新写入

const (
	preferencePrefix        = "notify:pref:"
	preferenceVersionPrefix = "notify:prefver:"
	// preferenceVersionTTL 版本号比缓存本身多保留的时间
	preferenceVersionTTL = 24 * time.Hour
)

func preferenceKey(userID string) string { return preferencePrefix + userID }

func preferenceVersionKey(userID string) string { return preferenceVersionPrefix + userID }

func preferenceField(eventType, channel string) string { return eventType + ":" + channel }

// GetPreference 读取单个偏好，key 或 field 不存在时返回 ErrCacheMiss
func (c *Client) GetPreference(ctx context.Context, userID, eventType, channel string) (bool, error) {
	v, err := c.rdb.HGet(ctx, preferenceKey(userID), preferenceField(eventType, channel)).Result()
	if errors.Is(err, goredis.Nil) {
		return false, pkgerrors.ErrCacheMiss
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// PreferenceVersion 读取用户偏好版本号，不存在时为 0
// 调用方应在查询数据库之前读取，并在回填时原样传回
func (c *Client) PreferenceVersion(ctx context.Context, userID string) (int64, error) {
	v, err := c.rdb.Get(ctx, preferenceVersionKey(userID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return v, err
}

// FillPreferences 版本号仍为 version 时写入完整偏好矩阵并设置过期时间
// 版本已变更时返回 ErrCacheStale，不写入任何内容
func (c *Client) FillPreferences(ctx context.Context, userID string, version int64, values map[string]map[string]bool) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{})
	for eventType, channels := range values {
		for channel, enabled := range channels {
			v := "0"
			if enabled {
				v = "1"
			}
			fields[preferenceField(eventType, channel)] = v
		}
	}

	key := preferenceKey(userID)
	verKey := preferenceVersionKey(userID)
	err := c.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if current != version {
			return pkgerrors.ErrCacheStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, fields)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, verKey)
	if errors.Is(err, goredis.TxFailedErr) {
		return pkgerrors.ErrCacheStale
	}
	return err
}

// InvalidatePreferences 删除用户偏好缓存并推进版本号
func (c *Client) InvalidatePreferences(ctx context.Context, userID string) error {
	verKey := preferenceVersionKey(userID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Incr(ctx, verKey)
		pipe.Expire(ctx, verKey, c.ttl+preferenceVersionTTL)
		pipe.Del(ctx, preferenceKey(userID))
		return nil
	})
	return err
}

// ── Token 黑名单 ──
// 由认证服务写入，本服务只读

const blacklistPrefix = "token:blacklist:"

// IsBlacklisted 检查 JWT ID 是否已被注销
func (c *Client) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ── 限流 ──

// CheckRateLimit 滑动窗口限流：窗口内请求数未超过 limit 时放行
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10)
	floor := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	var count *goredis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", floor)
		pipe.ZAdd(ctx, key, goredis.Z{Score: float64(now.UnixNano()), Member: member})
		count = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return count.Val() <= int64(limit), nil
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
