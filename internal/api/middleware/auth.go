package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/pkg/jwt"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// 上下文键
const (
	CtxUserID   = "user_id"
	CtxRole     = "role"
	CtxTokenJTI = "token_jti"
	CtxTokenExp = "token_exp"
)

// ErrTokenRevoked access token 已登出
var ErrTokenRevoked = errors.New("token 已失效")

// TokenChecker Token 黑名单查询
type TokenChecker interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// AccessVerifier 校验 access token 并查询黑名单
// JWTAuth 与 WebSocket 握手共用；tokens 为 nil 或 Redis 出错时跳过黑名单
type AccessVerifier struct {
	jwt    *jwt.Manager
	tokens TokenChecker
	logger *zap.Logger
}

// NewAccessVerifier 创建校验器
func NewAccessVerifier(jwtMgr *jwt.Manager, tokens TokenChecker, logger *zap.Logger) *AccessVerifier {
	return &AccessVerifier{jwt: jwtMgr, tokens: tokens, logger: logger}
}

// Verify 返回 jwt.ErrTokenExpired、jwt.ErrTokenInvalid、jwt.ErrTokenType 或 ErrTokenRevoked
func (v *AccessVerifier) Verify(ctx context.Context, raw string) (*jwt.Claims, error) {
	claims, err := v.jwt.ParseAccessToken(raw)
	if err != nil {
		return nil, err
	}
	if v.tokens == nil {
		return claims, nil
	}
	revoked, err := v.tokens.IsBlacklisted(ctx, claims.ID)
	switch {
	case err != nil:
		v.logger.Warn("查询 Token 黑名单失败，降级放行", zap.String("jti", claims.ID), zap.Error(err))
	case revoked:
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// VerifyMessage 校验失败时返回给客户端的提示
func VerifyMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenType):
		return "Token 类型无效"
	case errors.Is(err, ErrTokenRevoked):
		return "Token 已失效"
	default:
		return "Token 无效或已过期"
	}
}

// JWTAuth 读取 Authorization: Bearer <access token>，通过后注入用户上下文
func JWTAuth(jwtMgr *jwt.Manager, tokens TokenChecker, logger *zap.Logger) gin.HandlerFunc {
	verifier := NewAccessVerifier(jwtMgr, tokens, logger)

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, 10002, "缺少或无效的认证头")
			c.Abort()
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), raw)
		if err != nil {
			response.Unauthorized(c, 10002, VerifyMessage(err))
			c.Abort()
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRole, claims.Role)
		c.Set(CtxTokenJTI, claims.ID)
		if claims.ExpiresAt != nil {
			c.Set(CtxTokenExp, claims.ExpiresAt.Time)
		}
		c.Next()
	}
}

// bearerToken 方案名大小写不敏感
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RoleAuth 仅放行 allowedRoles 中的角色，需挂在 JWTAuth 之后
func RoleAuth(allowedRoles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(CtxRole)
		if role == "" {
			response.Unauthorized(c, 10002, "未认证")
			c.Abort()
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, 10003, "无权限访问")
			c.Abort()
			return
		}
		c.Next()
	}
}
