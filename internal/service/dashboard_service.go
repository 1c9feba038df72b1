package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
)

const (
	upcomingExamLimit    = 5
	parentAttendanceDays = 30
)

// DashboardService 各角色首页概览
type DashboardService interface {
	Admin(ctx context.Context) (*dto.AdminDashboardResponse, error)
	Teacher(ctx context.Context, teacherID string) (*dto.TeacherDashboardResponse, error)
	Parent(ctx context.Context, parentID string) (*dto.ParentDashboardResponse, error)
}

type dashboardService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewDashboardService 创建 DashboardService 实例；“今天”按 loc 计算
func NewDashboardService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &dashboardService{repo: repo, loc: loc, logger: logger, now: time.Now}
}

func (s *dashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, error) {
	byRole, err := s.repo.User.CountByRole(ctx)
	if err != nil {
		s.logger.Error("统计用户失败", zap.Error(err))
		return nil, err
	}
	classes, err := s.repo.Class.Count(ctx)
	if err != nil {
		s.logger.Error("统计班级失败", zap.Error(err))
		return nil, err
	}
	homework, err := s.repo.Homework.Count(ctx)
	if err != nil {
		s.logger.Error("统计作业失败", zap.Error(err))
		return nil, err
	}
	exams, err := s.repo.Exam.Count(ctx)
	if err != nil {
		s.logger.Error("统计考试失败", zap.Error(err))
		return nil, err
	}

	for _, role := range []string{model.RoleSuperAdmin, model.RoleTeacher, model.RoleParent, model.RoleStudent} {
		if _, ok := byRole[role]; !ok {
			byRole[role] = 0
		}
	}
	return &dto.AdminDashboardResponse{UsersByRole: byRole, Classes: classes, Homework: homework, Exams: exams}, nil
}

func (s *dashboardService) Teacher(ctx context.Context, teacherID string) (*dto.TeacherDashboardResponse, error) {
	classes, err := s.repo.Class.ListByTeacher(ctx, teacherID)
	if err != nil {
		s.logger.Error("查询教师班级失败", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, err
	}
	ids := make([]string, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ClassID)
	}
	counts, err := s.repo.User.CountStudentsByClasses(ctx, ids)
	if err != nil {
		s.logger.Error("统计学生人数失败", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, err
	}

	resp := &dto.TeacherDashboardResponse{Classes: len(classes), UpcomingExams: []dto.ExamResponse{}}
	for _, n := range counts {
		resp.Students += n
	}

	today := s.today()
	var todays []model.AttendanceRecord
	for _, id := range ids {
		recs, err := s.repo.Attendance.List(ctx, repository.AttendanceFilter{ClassID: id, From: &today, To: &today})
		if err != nil {
			s.logger.Error("查询今日考勤失败", zap.String("class_id", id), zap.Error(err))
			return nil, err
		}
		todays = append(todays, recs...)
	}
	resp.TodayMarked = len(todays)
	resp.TodayAttendanceRate = attendanceRate(countAttendance(todays))

	resp.PendingGrading, err = s.repo.Submission.CountUngradedByTeacher(ctx, teacherID)
	if err != nil {
		s.logger.Error("统计待批改作业失败", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, err
	}

	exams, err := s.repo.Exam.ListUpcoming(ctx, teacherID, s.now().UTC(), upcomingExamLimit)
	if err != nil {
		s.logger.Error("查询近期考试失败", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, err
	}
	for i := range exams {
		resp.UpcomingExams = append(resp.UpcomingExams, *toExamResponse(&exams[i], false))
	}
	return resp, nil
}

func (s *dashboardService) Parent(ctx context.Context, parentID string) (*dto.ParentDashboardResponse, error) {
	children, err := s.repo.User.ListChildren(ctx, parentID)
	if err != nil {
		s.logger.Error("查询子女失败", zap.String("parent_id", parentID), zap.Error(err))
		return nil, err
	}

	resp := &dto.ParentDashboardResponse{Children: make([]dto.ChildOverview, 0, len(children))}
	for i := range children {
		overview, err := s.childOverview(ctx, &children[i])
		if err != nil {
			return nil, err
		}
		resp.Children = append(resp.Children, *overview)
	}
	return resp, nil
}

func (s *dashboardService) childOverview(ctx context.Context, child *model.User) (*dto.ChildOverview, error) {
	ov := &dto.ChildOverview{Student: dto.StudentBrief{ID: child.UserID, Name: child.Name}}
	if child.Class != nil {
		ov.ClassName = child.Class.Name
	}

	to := s.today()
	from := to.AddDate(0, 0, -parentAttendanceDays)
	recs, err := s.repo.Attendance.List(ctx, repository.AttendanceFilter{StudentID: child.UserID, From: &from, To: &to})
	if err != nil {
		s.logger.Error("查询子女考勤失败", zap.String("student_id", child.UserID), zap.Error(err))
		return nil, err
	}
	ov.AttendanceRate = attendanceRate(countAttendance(recs))

	if child.ClassID != nil {
		list, _, err := s.repo.Homework.List(ctx, repository.HomeworkFilter{ClassIDs: []string{*child.ClassID}}, 0, childHomeworkLimit)
		if err != nil {
			s.logger.Error("查询子女作业失败", zap.String("student_id", child.UserID), zap.Error(err))
			return nil, err
		}
		hwIDs := make([]string, 0, len(list))
		for _, hw := range list {
			hwIDs = append(hwIDs, hw.HomeworkID)
		}
		subs, err := s.repo.Submission.ListByStudent(ctx, child.UserID, hwIDs)
		if err != nil {
			s.logger.Error("查询子女提交失败", zap.String("student_id", child.UserID), zap.Error(err))
			return nil, err
		}
		ov.PendingHomework = countPendingHomework(hwIDs, subs)
	}

	latest, err := s.repo.ExamResult.LatestSubmittedByStudent(ctx, child.UserID)
	switch {
	case err == nil:
		pct := latest.Percentage
		ov.LatestExamPercentage = &pct
		if latest.Exam != nil {
			ov.LatestExamTitle = latest.Exam.Title
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		s.logger.Error("查询最近考试失败", zap.String("student_id", child.UserID), zap.Error(err))
		return nil, err
	}
	return ov, nil
}

func (s *dashboardService) today() time.Time {
	return schoolToday(s.now(), s.loc)
}

// countPendingHomework 没有提交或被记为 missing 的作业数
func countPendingHomework(homeworkIDs []string, subs []model.HomeworkSubmission) int {
	done := make(map[string]bool, len(subs))
	for _, sub := range subs {
		if sub.Status != model.SubmissionMissing {
			done[sub.HomeworkID] = true
		}
	}
	n := 0
	for _, id := range homeworkIDs {
		if !done[id] {
			n++
		}
	}
	return n
}
