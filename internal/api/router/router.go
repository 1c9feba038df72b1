package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/config"
	"github.com/mohamed66886/sehaty-sub000/internal/api/handler"
	"github.com/mohamed66886/sehaty-sub000/internal/api/middleware"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/pkg/jwt"
	"github.com/mohamed66886/sehaty-sub000/pkg/metrics"
)

// classCodeRateLimit 班级码校验每 IP 每分钟次数
const classCodeRateLimit = 30

// Deps 路由依赖；Tokens、Limiter 为 nil 时对应功能降级放行
type Deps struct {
	JWT     *jwt.Manager
	Tokens  middleware.TokenChecker
	Limiter middleware.RateLimiter
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.MaxMultipartMemory = handler.MultipartMemory

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	// 上传请求可包含多个附件
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes, cfg.Storage.MaxUploadBytes*11))

	// ── 平台 ──
	r.GET("/health", h.Health.Check)
	if deps.Metrics != nil {
		r.GET("/metrics", deps.Metrics.Handler())
	}
	r.GET("/ws", h.WS.Connect)
	if cfg.Storage.Driver == "local" {
		r.Static("/uploads", cfg.Storage.LocalDir)
	}

	admin := middleware.RoleAuth(model.RoleSuperAdmin)
	teacher := middleware.RoleAuth(model.RoleTeacher)
	student := middleware.RoleAuth(model.RoleStudent)
	parent := middleware.RoleAuth(model.RoleParent)
	staff := middleware.RoleAuth(model.RoleSuperAdmin, model.RoleTeacher)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		loginLimit := middleware.RateLimit(deps.Limiter, cfg.Auth.LoginRateLimit, time.Minute)

		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", loginLimit, h.Auth.Login)
			auth.POST("/register", loginLimit, h.Auth.Register)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}
		v1.GET("/class-codes/:code", middleware.RateLimit(deps.Limiter, classCodeRateLimit, time.Minute), h.Class.ValidateCode)

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(deps.JWT, deps.Tokens, deps.Logger))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)
			authorized.PUT("/auth/password", h.Auth.ChangePassword)

			// 用户模块
			users := authorized.Group("/users")
			{
				users.GET("/me", h.User.GetProfile)
				users.PUT("/me", h.User.UpdateProfile)
				users.PUT("/me/avatar", h.User.UploadAvatar)
				users.GET("/me/children", parent, h.User.ListChildren)
				users.GET("", admin, h.User.ListUsers)
				users.POST("", admin, h.User.CreateUser)
				users.GET("/:id", admin, h.User.GetUser)
				users.PUT("/:id", admin, h.User.UpdateUser)
				users.PUT("/:id/status", admin, h.User.SetActive)
				users.DELETE("/:id", admin, h.User.DeleteUser)
				users.POST("/:id/reset-password", admin, h.User.ResetPassword)
				// 管理员或家长本人（Service 层鉴权）
				users.POST("/:id/children", middleware.RoleAuth(model.RoleSuperAdmin, model.RoleParent), h.User.LinkChild)
			}

			// 班级与班级码
			classes := authorized.Group("/classes")
			{
				classes.GET("", staff, h.Class.ListClasses)
				classes.POST("", teacher, h.Class.CreateClass)
				classes.POST("/join", student, h.Class.Join)
				classes.GET("/:id", staff, h.Class.GetClass)
				classes.PUT("/:id", staff, h.Class.UpdateClass)
				classes.DELETE("/:id", staff, h.Class.DeleteClass)
				classes.GET("/:id/students", staff, h.Class.ListStudents)
				classes.DELETE("/:id/students/:sid", staff, h.Class.RemoveStudent)
				classes.POST("/:id/code", staff, h.Class.GenerateCode)
				classes.GET("/:id/code", staff, h.Class.GetActiveCode)
				classes.GET("/:id/code/qr", staff, h.Class.CodeQR)
			}

			// 考勤
			attendance := authorized.Group("/attendance")
			{
				attendance.POST("", teacher, h.Attendance.Mark)
				attendance.GET("", staff, h.Attendance.List)
				attendance.GET("/daily", staff, h.Attendance.Daily)
				attendance.GET("/summary", staff, h.Attendance.Summary)
				attendance.GET("/export", staff, h.Export.ExportAttendance)
				attendance.DELETE("/by-date", staff, h.Attendance.DeleteByDate)
				attendance.PUT("/:id", staff, h.Attendance.Update)
				attendance.DELETE("/:id", staff, h.Attendance.Delete)
				// 本人、家长、班主任、管理员（Service 层鉴权）
				attendance.GET("/students/:id", h.Attendance.StudentHistory)
			}

			// 作业
			homework := authorized.Group("/homework")
			{
				homework.POST("", teacher, h.Homework.CreateHomework)
				homework.GET("", middleware.RoleAuth(model.RoleSuperAdmin, model.RoleTeacher, model.RoleStudent), h.Homework.ListHomework)
				homework.GET("/children", parent, h.Homework.ListForChildren)
				homework.GET("/:id", h.Homework.GetHomework)
				homework.PUT("/:id", teacher, h.Homework.UpdateHomework)
				homework.DELETE("/:id", staff, h.Homework.DeleteHomework)
				homework.POST("/:id/attachments", teacher, h.Homework.AddAttachments)
				homework.DELETE("/:id/attachments/:index", teacher, h.Homework.RemoveAttachment)
				homework.POST("/:id/submit", student, h.Homework.Submit)
				homework.GET("/:id/submissions", staff, h.Homework.ListSubmissions)
				homework.GET("/:id/progress", staff, h.Homework.Progress)
			}
			authorized.PUT("/submissions/:id/grade", teacher, h.Homework.Grade)

			// 考试
			exams := authorized.Group("/exams")
			{
				exams.GET("", middleware.RoleAuth(model.RoleSuperAdmin, model.RoleTeacher, model.RoleStudent), h.Exam.ListExams)
				exams.POST("", teacher, h.Exam.CreateExam)
				exams.GET("/results/me", student, h.Exam.MyResults)
				exams.GET("/:id", h.Exam.GetExam)
				exams.PUT("/:id", teacher, h.Exam.UpdateExam)
				exams.DELETE("/:id", staff, h.Exam.DeleteExam)
				exams.PUT("/:id/publish", teacher, h.Exam.Publish)
				exams.POST("/:id/questions", teacher, h.Exam.AddQuestions)
				exams.PUT("/:id/questions", teacher, h.Exam.ReplaceQuestions)
				exams.POST("/:id/questions/import", teacher, h.Exam.ImportQuestions)
				exams.POST("/:id/start", student, h.Exam.Start)
				exams.POST("/:id/submit", student, h.Exam.Submit)
				exams.GET("/:id/results", staff, h.Exam.Results)
				exams.GET("/:id/results/export", staff, h.Export.ExportExamResults)
				exams.GET("/:id/stats", staff, h.Exam.Stats)
			}
			// 学生本人、家长、任课教师、管理员（Service 层鉴权）
			authorized.GET("/results/:id/report.pdf", h.Export.ResultReport)

			// 周课表
			schedules := authorized.Group("/schedules")
			{
				schedules.GET("/me", middleware.RoleAuth(model.RoleTeacher, model.RoleStudent), h.Schedule.MyWeek)
				schedules.GET("/me/ics", middleware.RoleAuth(model.RoleTeacher, model.RoleStudent), h.Schedule.MyWeekICS)
				schedules.GET("/teachers/:id", admin, h.Schedule.TeacherWeek)
				schedules.POST("/days/:day/slots", teacher, h.Schedule.AddSlot)
				schedules.PUT("/days/:day/slots/:slot_id", teacher, h.Schedule.EditSlot)
				schedules.DELETE("/days/:day/slots/:slot_id", teacher, h.Schedule.DeleteSlot)
			}

			// 站内消息
			messages := authorized.Group("/messages")
			{
				messages.POST("", h.Message.Send)
				messages.GET("/inbox", h.Message.Inbox)
				messages.GET("/sent", h.Message.Sent)
				messages.GET("/unread-count", h.Message.UnreadCount)
				messages.PUT("/:id/read", h.Message.MarkRead)
				messages.DELETE("/:id", h.Message.Delete)
			}

			// 概览
			dashboard := authorized.Group("/dashboard")
			{
				dashboard.GET("/admin", admin, h.Dashboard.Admin)
				dashboard.GET("/teacher", teacher, h.Dashboard.Teacher)
				dashboard.GET("/parent", parent, h.Dashboard.Parent)
			}
		}
	}

	return r
}
