// Package job 定时任务：作业缺交扫描与缺勤日报
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/config"
	pkgerrors "github.com/mohamed66886/sehaty-sub000/pkg/errors"
)

const (
	NameHomeworkSweep = "homework_sweep"
	NameAbsenceDigest = "absence_digest"

	runTimeout = 5 * time.Minute
	lockTTL    = 10 * time.Minute
)

// HomeworkSweeper 作业缺交扫描
type HomeworkSweeper interface {
	SweepMissing(ctx context.Context, now time.Time) (int64, error)
}

// AbsenceNotifier 缺勤日报
type AbsenceNotifier interface {
	SendAbsenceDigest(ctx context.Context, date time.Time) (int, error)
}

// Locker 多实例部署时保证同一任务只在一个实例上执行；可为 nil
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (func(), error)
}

// Observer 任务执行结果上报；可为 nil
type Observer interface {
	ObserveJob(name string, err error)
}

// Scheduler 基于 cron 的任务调度器
type Scheduler struct {
	cron     *cron.Cron
	loc      *time.Location
	homework HomeworkSweeper
	absence  AbsenceNotifier
	locker   Locker
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler 按配置注册任务；表达式为空的任务不注册
func NewScheduler(
	cfg *config.JobConfig,
	loc *time.Location,
	homework HomeworkSweeper,
	absence AbsenceNotifier,
	locker Locker,
	observer Observer,
	logger *zap.Logger,
) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{logger}))),
		loc:      loc,
		homework: homework,
		absence:  absence,
		locker:   locker,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}

	if cfg.HomeworkSweep != "" && homework != nil {
		if _, err := s.cron.AddFunc(cfg.HomeworkSweep, func() { s.Run(NameHomeworkSweep) }); err != nil {
			return nil, fmt.Errorf("注册任务 %s 失败: %w", NameHomeworkSweep, err)
		}
	}
	if cfg.AbsenceDigest != "" && absence != nil {
		if _, err := s.cron.AddFunc(cfg.AbsenceDigest, func() { s.Run(NameAbsenceDigest) }); err != nil {
			return nil, fmt.Errorf("注册任务 %s 失败: %w", NameAbsenceDigest, err)
		}
	}
	return s, nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.logger.Info("定时任务已启动", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("等待定时任务结束超时")
	}
}

// Run 立即执行一次任务，cron 回调与管理命令共用
func (s *Scheduler) Run(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if s.locker != nil {
		release, err := s.locker.AcquireLock(ctx, "job:"+name, lockTTL)
		if err != nil {
			if errors.Is(err, pkgerrors.ErrLockHeld) {
				s.logger.Info("任务正在其他实例执行，跳过", zap.String("job", name))
				return nil
			}
			s.logger.Warn("获取任务锁失败", zap.String("job", name), zap.Error(err))
			return err
		}
		defer release()
	}

	start := time.Now()
	var err error
	switch name {
	case NameHomeworkSweep:
		err = s.sweepHomework(ctx)
	case NameAbsenceDigest:
		err = s.sendAbsenceDigest(ctx)
	default:
		err = fmt.Errorf("未知任务: %s", name)
	}

	if s.observer != nil {
		s.observer.ObserveJob(name, err)
	}
	if err != nil {
		s.logger.Error("定时任务执行失败", zap.String("job", name), zap.Error(err))
		return err
	}
	s.logger.Debug("定时任务完成", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Scheduler) sweepHomework(ctx context.Context) error {
	if s.homework == nil {
		return nil
	}
	n, err := s.homework.SweepMissing(ctx, s.now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("已补记缺交作业", zap.Int64("count", n))
	}
	return nil
}

// sendAbsenceDigest 汇总学校时区当天的缺勤
func (s *Scheduler) sendAbsenceDigest(ctx context.Context) error {
	if s.absence == nil {
		return nil
	}
	n, err := s.absence.SendAbsenceDigest(ctx, s.now().In(s.loc))
	if err != nil {
		return err
	}
	s.logger.Info("缺勤日报已发送", zap.Int("mails", n))
	return nil
}

// cronLogger 把 cron 内部日志接到 zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().With(zap.Error(err)).Errorw(msg, keysAndValues...)
}
