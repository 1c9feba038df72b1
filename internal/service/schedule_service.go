package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
)

// ── 课表模块业务错误 ──

var (
	ErrInvalidDay      = errors.New("星期取值应为 0-6（0=周日）")
	ErrSlotTimeInvalid = errors.New("结束时间必须晚于开始时间")
	ErrSlotOverlap     = errors.New("与当天已有课程时间重叠")
	ErrSlotNotFound    = errors.New("课程时段不存在")
)

const daysPerWeek = 7

// ScheduleService 周课表业务接口
type ScheduleService interface {
	// GetWeek 教师返回自己的课表；学生返回班主任课表中本班的时段
	GetWeek(ctx context.Context, callerID, callerRole string) (*dto.WeekScheduleResponse, error)
	GetTeacherWeek(ctx context.Context, teacherID string) (*dto.WeekScheduleResponse, error)

	AddSlot(ctx context.Context, teacherID string, day int, req *dto.SlotRequest) (*dto.ScheduleDayResponse, error)
	EditSlot(ctx context.Context, teacherID string, day int, slotID string, req *dto.SlotRequest) (*dto.ScheduleDayResponse, error)
	DeleteSlot(ctx context.Context, teacherID string, day int, slotID string) (*dto.ScheduleDayResponse, error)

	// ExportICS 导出为每周重复的 iCalendar
	ExportICS(ctx context.Context, callerID, callerRole string) ([]byte, error)
}

type scheduleService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewScheduleService 创建 ScheduleService 实例；loc 为课表时间所在时区
func NewScheduleService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) ScheduleService {
	if loc == nil {
		loc = time.UTC
	}
	return &scheduleService{repo: repo, loc: loc, logger: logger, now: time.Now}
}

// ────────────────────── Query ──────────────────────

func (s *scheduleService) GetWeek(ctx context.Context, callerID, callerRole string) (*dto.WeekScheduleResponse, error) {
	teacherID, classFilter, err := s.resolveViewer(ctx, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if teacherID == "" {
		return emptyWeek(""), nil
	}
	days, err := s.loadWeek(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	return buildWeek(teacherID, days, classFilter), nil
}

func (s *scheduleService) GetTeacherWeek(ctx context.Context, teacherID string) (*dto.WeekScheduleResponse, error) {
	teacher, err := s.repo.User.GetByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if teacher.Role != model.RoleTeacher {
		return nil, ErrNoPermission
	}
	days, err := s.loadWeek(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	return buildWeek(teacherID, days, ""), nil
}

// resolveViewer 返回要展示的教师与班级过滤条件；学生未加入班级时教师为空
func (s *scheduleService) resolveViewer(ctx context.Context, callerID, callerRole string) (string, string, error) {
	switch callerRole {
	case model.RoleTeacher:
		return callerID, "", nil
	case model.RoleStudent:
		student, err := s.repo.User.GetByID(ctx, callerID)
		if err != nil {
			return "", "", err
		}
		if student.ClassID == nil {
			return "", "", nil
		}
		class, err := s.repo.Class.GetByID(ctx, *student.ClassID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", "", nil
			}
			return "", "", err
		}
		return class.TeacherID, class.ClassID, nil
	default:
		return "", "", ErrNoPermission
	}
}

func (s *scheduleService) loadWeek(ctx context.Context, teacherID string) ([]model.ScheduleDay, error) {
	days, err := s.repo.Schedule.ListByTeacher(ctx, teacherID)
	if err != nil {
		s.logger.Error("查询课表失败", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, err
	}
	return days, nil
}

// ────────────────────── Slots ──────────────────────

func (s *scheduleService) AddSlot(ctx context.Context, teacherID string, day int, req *dto.SlotRequest) (*dto.ScheduleDayResponse, error) {
	slot, err := s.buildSlot(ctx, teacherID, req)
	if err != nil {
		return nil, err
	}
	slot.ID = uuid.NewString()

	return s.rewriteDay(ctx, teacherID, day, func(slots []model.ClassSlot) ([]model.ClassSlot, error) {
		return append(slots, slot), nil
	})
}

func (s *scheduleService) EditSlot(ctx context.Context, teacherID string, day int, slotID string, req *dto.SlotRequest) (*dto.ScheduleDayResponse, error) {
	slot, err := s.buildSlot(ctx, teacherID, req)
	if err != nil {
		return nil, err
	}
	slot.ID = slotID

	return s.rewriteDay(ctx, teacherID, day, func(slots []model.ClassSlot) ([]model.ClassSlot, error) {
		for i := range slots {
			if slots[i].ID == slotID {
				slots[i] = slot
				return slots, nil
			}
		}
		return nil, ErrSlotNotFound
	})
}

func (s *scheduleService) DeleteSlot(ctx context.Context, teacherID string, day int, slotID string) (*dto.ScheduleDayResponse, error) {
	return s.rewriteDay(ctx, teacherID, day, func(slots []model.ClassSlot) ([]model.ClassSlot, error) {
		for i := range slots {
			if slots[i].ID == slotID {
				return append(slots[:i:i], slots[i+1:]...), nil
			}
		}
		return nil, ErrSlotNotFound
	})
}

// rewriteDay 读取当天时段、应用修改、排序校验后整体写回
func (s *scheduleService) rewriteDay(ctx context.Context, teacherID string, day int, mutate func([]model.ClassSlot) ([]model.ClassSlot, error)) (*dto.ScheduleDayResponse, error) {
	if day < 0 || day >= daysPerWeek {
		return nil, ErrInvalidDay
	}

	existing, err := s.repo.Schedule.GetByTeacherAndDay(ctx, teacherID, day)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询课表失败", zap.String("teacher_id", teacherID), zap.Int("day", day), zap.Error(err))
		return nil, err
	}

	var current []model.ClassSlot
	if existing != nil {
		current = append(current, existing.Slots...)
	}
	slots, err := mutate(current)
	if err != nil {
		return nil, err
	}
	sortSlots(slots)
	if err := checkOverlap(slots); err != nil {
		return nil, err
	}

	if existing == nil {
		existing = &model.ScheduleDay{TeacherID: teacherID, DayOfWeek: day, Slots: slots}
		existing.StampCreate(teacherID)
		if err := s.repo.Schedule.Create(ctx, existing); err != nil {
			s.logger.Error("创建课表失败", zap.String("teacher_id", teacherID), zap.Int("day", day), zap.Error(err))
			return nil, err
		}
	} else {
		existing.Slots = slots
		existing.StampUpdate(teacherID)
		if err := s.repo.Schedule.Update(ctx, existing); err != nil {
			s.logger.Error("更新课表失败", zap.String("teacher_id", teacherID), zap.Int("day", day), zap.Error(err))
			return nil, err
		}
	}

	resp := toScheduleDayResponse(day, slots, "")
	return &resp, nil
}

func (s *scheduleService) buildSlot(ctx context.Context, teacherID string, req *dto.SlotRequest) (model.ClassSlot, error) {
	slot := model.ClassSlot{
		ClassName: strings.TrimSpace(req.ClassName),
		Subject:   strings.TrimSpace(req.Subject),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Room:      strings.TrimSpace(req.Room),
	}
	if slot.EndTime <= slot.StartTime {
		return slot, ErrSlotTimeInvalid
	}
	if req.ClassID != nil && *req.ClassID != "" {
		class, err := loadManagedClass(ctx, s.repo, s.logger, *req.ClassID, teacherID, model.RoleTeacher)
		if err != nil {
			return slot, err
		}
		slot.ClassID = &class.ClassID
		if slot.ClassName == "" {
			slot.ClassName = class.Name
		}
	}
	return slot, nil
}

// ── 纯函数 ──

func sortSlots(slots []model.ClassSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].StartTime < slots[j].StartTime
	})
}

// checkOverlap 要求 slots 已按开始时间排序；首尾相接不算重叠
func checkOverlap(slots []model.ClassSlot) error {
	for i := range slots {
		if slots[i].EndTime <= slots[i].StartTime {
			return ErrSlotTimeInvalid
		}
		if i > 0 && slots[i].StartTime < slots[i-1].EndTime {
			return ErrSlotOverlap
		}
	}
	return nil
}

func emptyWeek(teacherID string) *dto.WeekScheduleResponse {
	return buildWeek(teacherID, nil, "")
}

// buildWeek 固定返回 7 天；classFilter 非空时只保留该班的时段
func buildWeek(teacherID string, days []model.ScheduleDay, classFilter string) *dto.WeekScheduleResponse {
	byDay := make(map[int][]model.ClassSlot, len(days))
	for _, d := range days {
		byDay[d.DayOfWeek] = d.Slots
	}
	week := &dto.WeekScheduleResponse{TeacherID: teacherID, Days: make([]dto.ScheduleDayResponse, 0, daysPerWeek)}
	for d := 0; d < daysPerWeek; d++ {
		week.Days = append(week.Days, toScheduleDayResponse(d, byDay[d], classFilter))
	}
	return week
}

func toScheduleDayResponse(day int, slots []model.ClassSlot, classFilter string) dto.ScheduleDayResponse {
	resp := dto.ScheduleDayResponse{
		DayOfWeek: day,
		DayName:   time.Weekday(day).String(),
		Slots:     []dto.SlotResponse{},
	}
	for _, sl := range slots {
		if classFilter != "" && (sl.ClassID == nil || *sl.ClassID != classFilter) {
			continue
		}
		resp.Slots = append(resp.Slots, dto.SlotResponse{
			ID:        sl.ID,
			ClassID:   sl.ClassID,
			ClassName: sl.ClassName,
			Subject:   sl.Subject,
			StartTime: sl.StartTime,
			EndTime:   sl.EndTime,
			Room:      sl.Room,
		})
	}
	return resp
}
