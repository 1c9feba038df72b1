package handler

import (
	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/config"
	"github.com/mohamed66886/sehaty-sub000/internal/api/middleware"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/jwt"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth       *AuthHandler
	User       *UserHandler
	Class      *ClassHandler
	Attendance *AttendanceHandler
	Homework   *HomeworkHandler
	Exam       *ExamHandler
	Schedule   *ScheduleHandler
	Message    *MessageHandler
	Dashboard  *DashboardHandler
	Export     *ExportHandler
	WS         *WSHandler
	Health     *HealthHandler
}

// Deps 非 Service 层依赖；Tokens 为 nil 时不查黑名单
type Deps struct {
	JWT    *jwt.Manager
	Tokens middleware.TokenChecker
	Hub    ConnRegistrar
	DB     Pinger
	Logger *zap.Logger
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, cfg *config.Config, deps Deps) *Handler {
	return &Handler{
		Auth:       NewAuthHandler(svc.Auth, &cfg.Auth),
		User:       NewUserHandler(svc.User),
		Class:      NewClassHandler(svc.Class),
		Attendance: NewAttendanceHandler(svc.Attendance),
		Homework:   NewHomeworkHandler(svc.Homework),
		Exam:       NewExamHandler(svc.Exam),
		Schedule:   NewScheduleHandler(svc.Schedule),
		Message:    NewMessageHandler(svc.Message),
		Dashboard:  NewDashboardHandler(svc.Dashboard),
		Export:     NewExportHandler(svc.Export),
		WS:         NewWSHandler(deps.JWT, deps.Tokens, deps.Hub, cfg.Server.CORS.AllowOrigins, deps.Logger),
		Health:     NewHealthHandler(deps.DB),
	}
}
