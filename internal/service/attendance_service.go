package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/config"
	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
	"github.com/mohamed66886/sehaty-sub000/pkg/mailer"
)

// ── 考勤模块业务错误 ──

var (
	ErrAttendanceNotFound = errors.New("考勤记录不存在")
	ErrInvalidDate        = errors.New("日期格式应为 YYYY-MM-DD")
	ErrInvalidDateRange   = errors.New("开始日期不能晚于结束日期")
	ErrDateRangeTooLarge  = errors.New("查询范围不能超过 366 天")
)

const maxAttendanceRangeDays = 366

// AttendanceService 考勤业务接口
type AttendanceService interface {
	Mark(ctx context.Context, req *dto.MarkAttendanceRequest, callerID, callerRole string) (*dto.MarkAttendanceResponse, error)
	List(ctx context.Context, q *dto.AttendanceQuery, callerID, callerRole string) ([]dto.AttendanceRecordResponse, error)
	Daily(ctx context.Context, q *dto.AttendanceQuery, callerID, callerRole string) ([]dto.AttendanceDayResponse, error)
	Summary(ctx context.Context, q *dto.AttendanceQuery, callerID, callerRole string) (*dto.AttendanceSummaryResponse, error)
	DeleteByDate(ctx context.Context, q *dto.DeleteAttendanceByDateQuery, callerID, callerRole string) (*dto.DeletedCountResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateAttendanceRequest, callerID, callerRole string) (*dto.AttendanceRecordResponse, error)
	Delete(ctx context.Context, id, callerID, callerRole string) error
	StudentHistory(ctx context.Context, studentID, from, to, callerID, callerRole string) (*dto.StudentAttendanceResponse, error)
	// SendAbsenceDigest 按家长汇总某日缺勤并发送邮件，返回发送数量
	SendAbsenceDigest(ctx context.Context, date time.Time) (int, error)
}

type attendanceService struct {
	cfg    *config.Config
	repo   *repository.Repository
	mail   mailer.Mailer
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewAttendanceService 创建 AttendanceService 实例
func NewAttendanceService(cfg *config.Config, repo *repository.Repository, mail mailer.Mailer, logger *zap.Logger) AttendanceService {
	return &attendanceService{
		cfg:    cfg,
		repo:   repo,
		mail:   mail,
		loc:    SchoolLocation(cfg.Job.Timezone),
		now:    time.Now,
		logger: logger,
	}
}

// ────────────────────── Mark ──────────────────────

func (s *attendanceService) Mark(ctx context.Context, req *dto.MarkAttendanceRequest, callerID, callerRole string) (*dto.MarkAttendanceResponse, error) {
	class, err := loadManagedClass(ctx, s.repo, s.logger, req.ClassID, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	roster, err := s.repo.User.ListStudentsByClass(ctx, class.ClassID)
	if err != nil {
		s.logger.Error("查询花名册失败", zap.String("class_id", class.ClassID), zap.Error(err))
		return nil, err
	}
	onRoster := make(map[string]*model.User, len(roster))
	for i := range roster {
		onRoster[roster[i].UserID] = &roster[i]
	}

	existing, err := s.repo.Attendance.List(ctx, repository.AttendanceFilter{ClassID: class.ClassID, From: &date, To: &date})
	if err != nil {
		s.logger.Error("查询当日考勤失败", zap.String("class_id", class.ClassID), zap.Error(err))
		return nil, err
	}
	marked := make(map[string]bool, len(existing))
	for _, r := range existing {
		marked[r.StudentID] = true
	}

	// 同一学生多次出现时以最后一条为准
	byStudent := make(map[string]dto.AttendanceEntry, len(req.Entries))
	order := make([]string, 0, len(req.Entries))
	for _, e := range req.Entries {
		if _, ok := onRoster[e.StudentID]; !ok {
			return nil, ErrStudentNotInClass
		}
		if _, seen := byStudent[e.StudentID]; !seen {
			order = append(order, e.StudentID)
		}
		byStudent[e.StudentID] = e
	}

	resp := &dto.MarkAttendanceResponse{Date: req.Date}
	records := make([]model.AttendanceRecord, 0, len(order))
	var absent []*model.User
	for _, sid := range order {
		e := byStudent[sid]
		rec := model.AttendanceRecord{
			TeacherID: class.TeacherID,
			ClassID:   class.ClassID,
			StudentID: sid,
			Date:      date,
			Status:    e.Status,
			Notes:     strings.TrimSpace(e.Notes),
		}
		rec.StampCreate(callerID)
		records = append(records, rec)

		if marked[sid] {
			resp.Updated++
		} else {
			resp.Created++
		}
		if e.Status == model.AttendanceAbsent {
			resp.Absent++
			absent = append(absent, onRoster[sid])
		}
	}

	if err := s.repo.Attendance.Upsert(ctx, records); err != nil {
		s.logger.Error("写入考勤失败", zap.String("class_id", class.ClassID), zap.String("date", req.Date), zap.Error(err))
		return nil, err
	}

	// 未启用每日汇总时即时通知家长
	if s.cfg.Feature.AbsenceMail && s.cfg.Job.AbsenceDigest == "" {
		s.notifyAbsent(ctx, class, req.Date, absent)
	}

	return resp, nil
}

// ────────────────────── Query ──────────────────────

func (s *attendanceService) List(ctx context.Context, q *dto.AttendanceQuery, callerID, callerRole string) ([]dto.AttendanceRecordResponse, error) {
	records, err := s.query(ctx, q, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	return toAttendanceResponses(records), nil
}

func (s *attendanceService) Daily(ctx context.Context, q *dto.AttendanceQuery, callerID, callerRole string) ([]dto.AttendanceDayResponse, error) {
	records, err := s.query(ctx, q, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	return groupAttendanceByDay(records), nil
}

func (s *attendanceService) Summary(ctx context.Context, q *dto.AttendanceQuery, callerID, callerRole string) (*dto.AttendanceSummaryResponse, error) {
	records, err := s.query(ctx, q, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	summary := summarizeAttendance(records)
	return &summary, nil
}

func (s *attendanceService) query(ctx context.Context, q *dto.AttendanceQuery, callerID, callerRole string) ([]model.AttendanceRecord, error) {
	if _, err := loadManagedClass(ctx, s.repo, s.logger, q.ClassID, callerID, callerRole); err != nil {
		return nil, err
	}
	from, to, err := parseDateRange(q.From, q.To, schoolToday(s.now(), s.loc))
	if err != nil {
		return nil, err
	}
	records, err := s.repo.Attendance.List(ctx, repository.AttendanceFilter{
		ClassID: q.ClassID,
		Status:  q.Status,
		From:    from,
		To:      to,
	})
	if err != nil {
		s.logger.Error("查询考勤失败", zap.String("class_id", q.ClassID), zap.Error(err))
		return nil, err
	}
	return records, nil
}

// ────────────────────── Delete by date ──────────────────────

func (s *attendanceService) DeleteByDate(ctx context.Context, q *dto.DeleteAttendanceByDateQuery, callerID, callerRole string) (*dto.DeletedCountResponse, error) {
	if _, err := loadManagedClass(ctx, s.repo, s.logger, q.ClassID, callerID, callerRole); err != nil {
		return nil, err
	}
	date, err := parseDate(q.Date)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.Attendance.DeleteByClassAndDate(ctx, q.ClassID, date)
	if err != nil {
		s.logger.Error("按日期删除考勤失败", zap.String("class_id", q.ClassID), zap.String("date", q.Date), zap.Error(err))
		return nil, err
	}
	s.logger.Info("按日期删除考勤", zap.String("class_id", q.ClassID), zap.String("date", q.Date), zap.Int64("deleted", n))
	return &dto.DeletedCountResponse{Deleted: n}, nil
}

// ────────────────────── Update / Delete ──────────────────────

func (s *attendanceService) Update(ctx context.Context, id string, req *dto.UpdateAttendanceRequest, callerID, callerRole string) (*dto.AttendanceRecordResponse, error) {
	rec, err := s.loadRecord(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if req.Status != nil {
		rec.Status = *req.Status
	}
	if req.Notes != nil {
		rec.Notes = strings.TrimSpace(*req.Notes)
	}
	rec.StampUpdate(callerID)

	if err := s.repo.Attendance.Update(ctx, rec); err != nil {
		s.logger.Error("更新考勤失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	resp := toAttendanceResponse(rec)
	return &resp, nil
}

func (s *attendanceService) Delete(ctx context.Context, id, callerID, callerRole string) error {
	if _, err := s.loadRecord(ctx, id, callerID, callerRole); err != nil {
		return err
	}
	if err := s.repo.Attendance.Delete(ctx, id); err != nil {
		s.logger.Error("删除考勤失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *attendanceService) loadRecord(ctx context.Context, id, callerID, callerRole string) (*model.AttendanceRecord, error) {
	rec, err := s.repo.Attendance.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttendanceNotFound
		}
		s.logger.Error("查询考勤失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if _, err := loadManagedClass(ctx, s.repo, s.logger, rec.ClassID, callerID, callerRole); err != nil {
		return nil, err
	}
	return rec, nil
}

// ────────────────────── Student history ──────────────────────

func (s *attendanceService) StudentHistory(ctx context.Context, studentID, from, to, callerID, callerRole string) (*dto.StudentAttendanceResponse, error) {
	student, err := loadViewableStudent(ctx, s.repo, s.logger, studentID, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	fromT, toT, err := parseDateRange(from, to, schoolToday(s.now(), s.loc))
	if err != nil {
		return nil, err
	}

	records, err := s.repo.Attendance.List(ctx, repository.AttendanceFilter{StudentID: studentID, From: fromT, To: toT})
	if err != nil {
		s.logger.Error("查询学生考勤失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	return &dto.StudentAttendanceResponse{
		Student: dto.StudentBrief{ID: student.UserID, Name: student.Name},
		Summary: summarizeAttendance(records),
		Records: toAttendanceResponses(records),
	}, nil
}

// ────────────────────── Absence mail ──────────────────────

func (s *attendanceService) SendAbsenceDigest(ctx context.Context, date time.Time) (int, error) {
	if !s.cfg.Feature.AbsenceMail || s.mail == nil {
		return 0, nil
	}
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	records, err := s.repo.Attendance.List(ctx, repository.AttendanceFilter{Status: model.AttendanceAbsent, From: &d, To: &d})
	if err != nil {
		s.logger.Error("查询缺勤记录失败", zap.Time("date", d), zap.Error(err))
		return 0, err
	}

	byParent := make(map[string][]string)
	for _, r := range records {
		if r.Student == nil || r.Student.ParentID == nil {
			continue
		}
		byParent[*r.Student.ParentID] = append(byParent[*r.Student.ParentID], r.Student.Name)
	}

	sent := 0
	for parentID, names := range byParent {
		parent, err := s.repo.User.GetByID(ctx, parentID)
		if err != nil || !parent.NotifyEmail || !parent.IsActive {
			continue
		}
		msg := mailer.Message{
			ToName:  parent.Name,
			ToEmail: parent.Email,
			Subject: "缺勤通知 " + d.Format(dateLayout),
			Text:    fmt.Sprintf("%s，您好：%s 于 %s 缺勤。", parent.Name, strings.Join(names, "、"), d.Format(dateLayout)),
		}
		if err := s.mail.Send(ctx, msg); err != nil {
			s.logger.Warn("发送缺勤汇总失败", zap.String("parent_id", parentID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *attendanceService) notifyAbsent(ctx context.Context, class *model.Class, date string, students []*model.User) {
	if s.mail == nil {
		return
	}
	for _, st := range students {
		if st == nil || st.ParentID == nil {
			continue
		}
		parent, err := s.repo.User.GetByID(ctx, *st.ParentID)
		if err != nil || !parent.NotifyEmail || !parent.IsActive {
			continue
		}
		msg := mailer.Message{
			ToName:  parent.Name,
			ToEmail: parent.Email,
			Subject: "缺勤通知 " + date,
			Text:    fmt.Sprintf("%s，您好：%s 于 %s 在 %s 缺勤。", parent.Name, st.Name, date, class.Name),
		}
		if err := s.mail.Send(ctx, msg); err != nil {
			s.logger.Warn("发送缺勤通知失败", zap.String("student_id", st.UserID), zap.Error(err))
		}
	}
}

// ── 纯函数：分组与统计 ──

// countAttendance 按状态计数
func countAttendance(records []model.AttendanceRecord) dto.AttendanceCounts {
	var c dto.AttendanceCounts
	for _, r := range records {
		c.Total++
		switch r.Status {
		case model.AttendancePresent:
			c.Present++
		case model.AttendanceAbsent:
			c.Absent++
		case model.AttendanceLate:
			c.Late++
		case model.AttendanceExcused:
			c.Excused++
		}
	}
	return c
}

// attendanceRate (present+late)/total*100，保留两位小数
func attendanceRate(c dto.AttendanceCounts) float64 {
	return percentage(float64(c.Present+c.Late), float64(c.Total))
}

func summarizeAttendance(records []model.AttendanceRecord) dto.AttendanceSummaryResponse {
	c := countAttendance(records)
	return dto.AttendanceSummaryResponse{AttendanceCounts: c, Rate: attendanceRate(c)}
}

// groupAttendanceByDay 按日期分组，最新的日期在前
func groupAttendanceByDay(records []model.AttendanceRecord) []dto.AttendanceDayResponse {
	byDay := make(map[string][]model.AttendanceRecord)
	for _, r := range records {
		key := r.Date.Format(dateLayout)
		byDay[key] = append(byDay[key], r)
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	out := make([]dto.AttendanceDayResponse, 0, len(days))
	for _, d := range days {
		recs := byDay[d]
		out = append(out, dto.AttendanceDayResponse{
			Date:    d,
			Counts:  countAttendance(recs),
			Records: toAttendanceResponses(recs),
		})
	}
	return out
}

func toAttendanceResponse(r *model.AttendanceRecord) dto.AttendanceRecordResponse {
	resp := dto.AttendanceRecordResponse{
		ID:        r.RecordID,
		ClassID:   r.ClassID,
		StudentID: r.StudentID,
		Date:      r.Date.Format(dateLayout),
		Status:    r.Status,
		Notes:     r.Notes,
	}
	if r.Student != nil {
		resp.StudentName = r.Student.Name
	}
	return resp
}

func toAttendanceResponses(records []model.AttendanceRecord) []dto.AttendanceRecordResponse {
	out := make([]dto.AttendanceRecordResponse, 0, len(records))
	for i := range records {
		out = append(out, toAttendanceResponse(&records[i]))
	}
	return out
}

// ── 日期解析 ──

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// parseDateRange 解析 [from, to]，两端均含
// 缺 to 时取 today（from 晚于 today 时取 from 起一年内），缺 from 时取 to 往前 365 天，
// 最终跨度不超过 maxAttendanceRangeDays 个自然日
func parseDateRange(from, to string, today time.Time) (*time.Time, *time.Time, error) {
	const day = 24 * time.Hour
	const span = (maxAttendanceRangeDays - 1) * day

	var fromT, toT time.Time
	var err error
	if from != "" {
		if fromT, err = parseDate(from); err != nil {
			return nil, nil, err
		}
	}
	if to != "" {
		if toT, err = parseDate(to); err != nil {
			return nil, nil, err
		}
	}

	switch {
	case from == "" && to == "":
		toT = today
		fromT = toT.Add(-span)
	case to == "":
		toT = today
		if fromT.After(today) {
			toT = fromT.Add(span)
		}
	case from == "":
		fromT = toT.Add(-span)
	}

	if fromT.After(toT) {
		return nil, nil, ErrInvalidDateRange
	}
	if toT.Sub(fromT) >= maxAttendanceRangeDays*day {
		return nil, nil, ErrDateRangeTooLarge
	}
	return &fromT, &toT, nil
}

// loadViewableStudent 学生本人、关联家长、班主任与超级管理员可查看
func loadViewableStudent(ctx context.Context, repo *repository.Repository, logger *zap.Logger, studentID, callerID, callerRole string) (*model.User, error) {
	student, err := repo.User.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		logger.Error("查询学生失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	if student.Role != model.RoleStudent {
		return nil, ErrNotStudent
	}

	switch {
	case callerRole == model.RoleSuperAdmin:
	case callerID == student.UserID:
	case callerRole == model.RoleParent && student.ParentID != nil && *student.ParentID == callerID:
	case callerRole == model.RoleTeacher && student.ClassID != nil:
		class, err := repo.Class.GetByID(ctx, *student.ClassID)
		if err != nil || class.TeacherID != callerID {
			return nil, ErrNoPermission
		}
	default:
		return nil, ErrNoPermission
	}
	return student, nil
}
