package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/config"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
	"github.com/mohamed66886/sehaty-sub000/pkg/jwt"
	"github.com/mohamed66886/sehaty-sub000/pkg/mailer"
	"github.com/mohamed66886/sehaty-sub000/pkg/realtime"
	"github.com/mohamed66886/sehaty-sub000/pkg/redis"
	"github.com/mohamed66886/sehaty-sub000/pkg/storage"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth       AuthService
	User       UserService
	Class      ClassService
	Attendance AttendanceService
	Homework   HomeworkService
	Exam       ExamService
	Schedule   ScheduleService
	Message    MessageService
	Dashboard  DashboardService
	Export     ExportService
}

// TokenStore Token 黑名单（Redis 实现）
type TokenStore interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// Locker 短时互斥锁（Redis 实现）
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (func(), error)
}

// Publisher 实时事件推送（WebSocket Hub 实现）
type Publisher interface {
	Publish(userID string, event realtime.Event)
}

// NewService 创建 Service 聚合
// rdb、hub 可为 nil：Redis 不可用时降级为无黑名单、无提交锁
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	store storage.Storage,
	mail mailer.Mailer,
	hub *realtime.Hub,
	logger *zap.Logger,
) *Service {
	var tokens TokenStore
	var locker Locker
	if rdb != nil {
		tokens = rdb
		locker = rdb
	}
	var pub Publisher
	if hub != nil {
		pub = hub
	}
	loc := SchoolLocation(cfg.Job.Timezone)

	return &Service{
		Auth:       NewAuthService(cfg, repo, jwtMgr, tokens, logger),
		User:       NewUserService(repo, store, mail, logger),
		Class:      NewClassService(cfg, repo, logger),
		Attendance: NewAttendanceService(cfg, repo, mail, logger),
		Homework:   NewHomeworkService(repo, store, cfg.Storage.MaxUploadBytes, logger),
		Exam:       NewExamService(repo, locker, logger),
		Schedule:   NewScheduleService(repo, loc, logger),
		Message:    NewMessageService(repo, pub, logger),
		Dashboard:  NewDashboardService(repo, loc, logger),
		Export:     NewExportService(repo, loc, logger),
	}
}

// SchoolLocation 加载学校所在时区，失败时退回 UTC
func SchoolLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ── 公共辅助 ──

// schoolToday 学校时区的当天日期，以 UTC 零点表示，与 date 列一致
func schoolToday(now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

const (
	timeLayout = "2006-01-02T15:04:05Z"
	dateLayout = "2006-01-02"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// round2 保留两位小数
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// percentage part/total*100，保留两位小数；total 为 0 时返回 0
func percentage(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(part / total * 100)
}
