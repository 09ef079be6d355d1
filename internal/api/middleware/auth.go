package middleware

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"job-portal-go/internal/auth"
	"job-portal-go/internal/logger"
)

// candidateIDKey 认证中间件写入请求上下文的键
const candidateIDKey = "candidate_id"

// CookieAuth 从Cookie中提取并校验投递令牌
// 校验通过后把候选人标识写入请求上下文供后续处理器读取
func CookieAuth(verifier *auth.Verifier, cookieName string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		token := string(c.Cookie(cookieName))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.H{"error": "Unauthorized: Missing token"})
			return
		}

		candidateID, err := verifier.Verify(token)
		if err != nil {
			logger.Debug().Err(err).Msg("投递令牌校验失败")
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.H{"error": "Unauthorized: Invalid token"})
			return
		}

		c.Set(candidateIDKey, candidateID)
		c.Next(ctx)
	}
}

// CandidateID 读取认证中间件写入的候选人标识
func CandidateID(c *app.RequestContext) string {
	v, ok := c.Get(candidateIDKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}
