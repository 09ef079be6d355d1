package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"job-portal-go/internal/logger"
)

const (
	applyRateLimit  = 3           // 单候选人窗口内的最大投递请求数
	applyRateWindow = time.Minute // 固定窗口长度
)

// RateLimiter 限流判定，实现通常是Redis固定窗口计数
type RateLimiter interface {
	AllowApply(ctx context.Context, candidateID string, limit int, window time.Duration) (bool, error)
}

// ApplyRateLimit 按候选人限制投递频率
// Redis不可用时放行（fail-open），限流是保护手段而非正确性保证
func ApplyRateLimit(limiter RateLimiter) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if limiter == nil {
			c.Next(ctx)
			return
		}

		candidateID := CandidateID(c)
		if candidateID == "" {
			c.Next(ctx)
			return
		}

		allowed, err := limiter.AllowApply(ctx, candidateID, applyRateLimit, applyRateWindow)
		if err != nil {
			logger.Warn().Err(err).Str("candidate_id", candidateID).Msg("限流判定失败，放行请求")
			c.Next(ctx)
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, utils.H{"error": "Too many requests, please try again later"})
			return
		}
		c.Next(ctx)
	}
}
