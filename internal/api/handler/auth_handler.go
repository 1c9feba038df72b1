package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/config"
	"github.com/mohamed66886/sehaty-sub000/internal/api/middleware"
	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
)

// AuthHandler 认证模块 HTTP 处理器
type AuthHandler struct {
	authSvc service.AuthService
	cfg     *config.AuthConfig
}

// NewAuthHandler 创建 AuthHandler；cfg 为 nil 时使用默认 Cookie 设置
func NewAuthHandler(authSvc service.AuthService, cfg *config.AuthConfig) *AuthHandler {
	if cfg == nil {
		cfg = &config.AuthConfig{
			RefreshTokenTTLDefault:  24 * time.Hour,
			RefreshTokenTTLRemember: 7 * 24 * time.Hour,
			Cookie:                  config.CookieConfig{SameSite: "Lax"},
		}
	}
	return &AuthHandler{authSvc: authSvc, cfg: cfg}
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.authSvc.Login(c.Request.Context(), &req)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken, req.RememberMe)
	response.OK(c, result)
}

// Register 学生与家长自助注册
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	user, err := h.authSvc.Register(c.Request.Context(), &req)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	response.Created(c, user)
}

// RefreshToken 刷新 Token：优先读取 Cookie，其次读取请求体
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token := h.refreshTokenFrom(c)
	if token == "" {
		response.BadRequest(c, 10001, "缺少 Refresh Token")
		return
	}

	result, err := h.authSvc.RefreshToken(c.Request.Context(), token)
	if err != nil {
		h.clearRefreshCookie(c)
		h.handleAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken, false)
	response.OK(c, result)
}

// Logout 用户登出
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	jti := c.GetString(middleware.CtxTokenJTI)
	if err := h.authSvc.Logout(c.Request.Context(), jti, tokenExpiry(c), h.refreshTokenFrom(c)); err != nil {
		response.InternalError(c)
		return
	}

	h.clearRefreshCookie(c)
	response.OK(c, nil)
}

// GetCurrentUser 当前登录用户
// GET /api/v1/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	user, err := h.authSvc.GetCurrentUser(c.Request.Context(), userID)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	response.OK(c, user)
}

// ChangePassword 修改密码
// PUT /api/v1/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	if err := h.authSvc.ChangePassword(c.Request.Context(), userID, &req); err != nil {
		h.handleAuthError(c, err)
		return
	}

	response.OK(c, nil)
}

// ── Cookie ──

func (h *AuthHandler) refreshTokenFrom(c *gin.Context) string {
	if v, err := c.Cookie(refreshCookieName); err == nil && v != "" {
		return v
	}
	var req dto.RefreshTokenRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	return strings.TrimSpace(req.RefreshToken)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string, rememberMe bool) {
	if token == "" {
		return
	}
	ttl := h.cfg.RefreshTokenTTLDefault
	if rememberMe {
		ttl = h.cfg.RefreshTokenTTLRemember
	}
	c.SetSameSite(sameSiteMode(h.cfg.Cookie.SameSite))
	c.SetCookie(refreshCookieName, token, int(ttl.Seconds()), refreshCookiePath, h.cfg.Cookie.Domain, h.cfg.Cookie.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(sameSiteMode(h.cfg.Cookie.SameSite))
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, h.cfg.Cookie.Domain, h.cfg.Cookie.Secure, true)
}

func sameSiteMode(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// handleAuthError 统一处理认证模块业务错误
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, 11001, "邮箱或密码错误")
	case errors.Is(err, service.ErrAccountDisabled):
		response.Forbidden(c, 11002, "账号已被停用")
	case errors.Is(err, service.ErrTokenInvalid):
		response.Unauthorized(c, 11003, "登录状态已失效，请重新登录")
	case errors.Is(err, service.ErrEmailExists):
		response.Conflict(c, 11004, "邮箱已被注册")
	case errors.Is(err, service.ErrOldPasswordWrong):
		response.BadRequest(c, 11005, "原密码错误")
	case errors.Is(err, service.ErrSamePassword):
		response.BadRequest(c, 11006, "新密码不能与原密码相同")
	case errors.Is(err, service.ErrRegistrationClosed):
		response.Forbidden(c, 11007, "暂未开放自助注册")
	case errors.Is(err, service.ErrClassCodeInvalid):
		response.BadRequest(c, 13003, "班级码无效或已过期")
	default:
		handleCommonError(c, err)
	}
}
