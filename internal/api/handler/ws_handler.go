package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/internal/api/middleware"
	"github.com/mohamed66886/sehaty-sub000/pkg/jwt"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// ConnRegistrar 接管升级后的连接（realtime.Hub 实现）
type ConnRegistrar interface {
	Register(userID string, conn *websocket.Conn)
}

// WSHandler WebSocket 接入
type WSHandler struct {
	verifier *middleware.AccessVerifier
	hub      ConnRegistrar
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler 创建 WSHandler；allowOrigins 为空时只接受同源
func NewWSHandler(jwtMgr *jwt.Manager, tokens middleware.TokenChecker, hub ConnRegistrar, allowOrigins []string, logger *zap.Logger) *WSHandler {
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	h := &WSHandler{
		verifier: middleware.NewAccessVerifier(jwtMgr, tokens, logger),
		hub:      hub,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
	return h
}

// Connect 升级为 WebSocket 并订阅当前用户的推送
// GET /ws?token=
func (h *WSHandler) Connect(c *gin.Context) {
	if h.hub == nil {
		response.ServiceUnavailable(c, "实时推送未启用")
		return
	}

	// 浏览器 WebSocket 无法设置 Authorization 头，Token 走查询参数
	claims, err := h.verifier.Verify(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Unauthorized(c, 10002, middleware.VerifyMessage(err))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已写入 HTTP 错误响应
		h.logger.Debug("WebSocket 升级失败", zap.Error(err))
		return
	}

	h.hub.Register(claims.UserID, conn)
}
