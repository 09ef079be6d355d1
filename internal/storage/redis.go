package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"job-portal-go/internal/config"
	"job-portal-go/internal/constants"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// rateLimitScript 固定窗口限流: 首次INCR时设置窗口过期
// 返回窗口内的当前计数
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		// 连接生命周期
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetAppliedSetExpireDuration 返回去重集合的过期时间
func (r *Redis) GetAppliedSetExpireDuration() time.Duration {
	days := r.config.AppliedSetExpireDays
	if days <= 0 {
		days = 365
	}
	return time.Duration(days) * 24 * time.Hour
}

// appliedPairMember 去重集合成员的编码形式
func appliedPairMember(jobID int, candidateID string) string {
	return fmt.Sprintf("%d:%s", jobID, candidateID)
}

// CheckAppliedPair 检查 (岗位,候选人) 是否已在去重集合中
// 集合只是快速通道，未命中仍需回查数据库
func (r *Redis) CheckAppliedPair(ctx context.Context, databaseName string, jobID int, candidateID string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyAppliedPairSet, databaseName)
	return r.Client.SIsMember(ctx, key, appliedPairMember(jobID, candidateID)).Result()
}

// AddAppliedPair 将 (岗位,候选人) 加入去重集合并按需设置过期
func (r *Redis) AddAppliedPair(ctx context.Context, databaseName string, jobID int, candidateID string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyAppliedPairSet, databaseName)
	pipe := r.Client.Pipeline()
	pipe.SAdd(ctx, key, appliedPairMember(jobID, candidateID))
	pipe.ExpireNX(ctx, key, r.GetAppliedSetExpireDuration())
	_, err := pipe.Exec(ctx)
	return err
}

// GetCachedStatus 读取组织默认投递状态的缓存
func (r *Redis) GetCachedStatus(ctx context.Context, databaseName string, orgID int) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyStatusDefault, databaseName, orgID)
	return r.Client.Get(ctx, key).Result()
}

// SetCachedStatus 缓存组织默认投递状态
func (r *Redis) SetCachedStatus(ctx context.Context, databaseName string, orgID int, status string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyStatusDefault, databaseName, orgID)
	return r.Client.Set(ctx, key, status, constants.StatusCacheDuration).Err()
}

// AllowApply 固定窗口限流，返回窗口内剩余配额是否允许本次请求
func (r *Redis) AllowApply(ctx context.Context, candidateID string, limit int, window time.Duration) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyApplyRateLimit, candidateID)
	current, err := rateLimitScript.Run(ctx, r.Client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return current <= int64(limit), nil
}
