package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// RateLimiter 滑动窗口计数，由 pkg/redis.Client 实现
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 按路由限流：已登录按用户计数，匿名按客户端 IP 计数
// limiter 为 nil、limit<=0 或 Redis 出错时放行
func RateLimit(limiter RateLimiter, limit int, window time.Duration) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), rateLimitKey(c), limit, window)
		if err != nil {
			_ = c.Error(err)
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", retryAfter)
			response.TooManyRequests(c, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	subject := "ip:" + c.ClientIP()
	if uid := c.GetString(CtxUserID); uid != "" {
		subject = "user:" + uid
	}
	return subject + ":" + c.FullPath()
}
