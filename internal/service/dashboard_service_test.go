package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
)

var dashNow = time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)

func setupTestDashboardService() (*dashboardService, *mockRepos) {
	mocks, repo := newMockRepos()
	svc := NewDashboardService(repo, time.UTC, zap.NewNop()).(*dashboardService)
	svc.now = func() time.Time { return dashNow }

	mocks.addUser("admin", "管理员", model.RoleSuperAdmin)
	mocks.addUser("t1", "王老师", model.RoleTeacher)
	mocks.addUser("p1", "家长", model.RoleParent)
	mocks.addClass("c1", "一班", "t1")
	mocks.addClass("c2", "二班", "t1")
	for _, id := range []string{"s1", "s2", "s3"} {
		mocks.addUser(id, "学生"+id, model.RoleStudent)
	}
	mocks.enroll("s1", "c1")
	mocks.enroll("s2", "c1")
	mocks.enroll("s3", "c2")
	mocks.linkParent("s1", "p1")
	return svc, mocks
}

func seedAttendance(mocks *mockRepos, classID, studentID string, date time.Time, status string) {
	_ = mocks.attendance.Upsert(context.Background(), []model.AttendanceRecord{{
		TeacherID: "t1", ClassID: classID, StudentID: studentID, Date: date, Status: status,
	}})
}

func TestDashboard_Admin(t *testing.T) {
	svc, mocks := setupTestDashboardService()
	_ = mocks.homework.Create(context.Background(), &model.Homework{TeacherID: "t1", ClassID: "c1", Title: "作业"})

	resp, err := svc.Admin(context.Background())
	if err != nil {
		t.Fatalf("Admin 应成功: %v", err)
	}
	if resp.UsersByRole[model.RoleStudent] != 3 || resp.UsersByRole[model.RoleTeacher] != 1 {
		t.Errorf("按角色统计不正确: %+v", resp.UsersByRole)
	}
	if resp.Classes != 2 || resp.Homework != 1 || resp.Exams != 0 {
		t.Errorf("计数不正确: %+v", resp)
	}
	if len(resp.UsersByRole) != 4 {
		t.Errorf("应补齐全部 4 个角色，实际=%d", len(resp.UsersByRole))
	}
}

func TestDashboard_Teacher(t *testing.T) {
	svc, mocks := setupTestDashboardService()
	ctx := context.Background()
	today := time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC)
	seedAttendance(mocks, "c1", "s1", today, model.AttendancePresent)
	seedAttendance(mocks, "c1", "s2", today, model.AttendanceAbsent)
	seedAttendance(mocks, "c2", "s3", today, model.AttendanceLate)
	seedAttendance(mocks, "c1", "s1", today.AddDate(0, 0, -1), model.AttendanceAbsent)

	_ = mocks.submissions.Create(ctx, &model.HomeworkSubmission{HomeworkID: "hw-x", StudentID: "s1", Status: model.SubmissionSubmitted})
	_ = mocks.submissions.Create(ctx, &model.HomeworkSubmission{HomeworkID: "hw-x", StudentID: "s2", Status: model.SubmissionGraded})

	_ = mocks.exams.Create(ctx, &model.Exam{TeacherID: "t1", ClassID: "c1", Title: "期中", StartAt: dashNow.Add(24 * time.Hour), EndAt: dashNow.Add(26 * time.Hour)})
	_ = mocks.exams.Create(ctx, &model.Exam{TeacherID: "t1", ClassID: "c1", Title: "已结束", StartAt: dashNow.Add(-48 * time.Hour), EndAt: dashNow.Add(-47 * time.Hour)})

	resp, err := svc.Teacher(ctx, "t1")
	if err != nil {
		t.Fatalf("Teacher 应成功: %v", err)
	}
	if resp.Classes != 2 || resp.Students != 3 {
		t.Errorf("班级/学生数不正确: %+v", resp)
	}
	if resp.TodayMarked != 3 || resp.TodayAttendanceRate != 66.67 {
		t.Errorf("今日考勤不正确: marked=%d rate=%v", resp.TodayMarked, resp.TodayAttendanceRate)
	}
	if resp.PendingGrading != 1 {
		t.Errorf("期望待批改 1，实际=%d", resp.PendingGrading)
	}
	if len(resp.UpcomingExams) != 1 || resp.UpcomingExams[0].Title != "期中" {
		t.Errorf("近期考试不正确: %+v", resp.UpcomingExams)
	}
}

func TestDashboard_Teacher_Empty(t *testing.T) {
	svc, mocks := setupTestDashboardService()
	mocks.addUser("t9", "新老师", model.RoleTeacher)

	resp, err := svc.Teacher(context.Background(), "t9")
	if err != nil {
		t.Fatalf("Teacher 应成功: %v", err)
	}
	if resp.Classes != 0 || resp.TodayAttendanceRate != 0 || resp.UpcomingExams == nil {
		t.Errorf("无班级教师应得到零值概览且考试列表非 nil: %+v", resp)
	}
}

func TestDashboard_Parent(t *testing.T) {
	svc, mocks := setupTestDashboardService()
	ctx := context.Background()
	today := time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC)
	seedAttendance(mocks, "c1", "s1", today, model.AttendancePresent)
	seedAttendance(mocks, "c1", "s1", today.AddDate(0, 0, -2), model.AttendanceAbsent)
	// 超出 30 天窗口
	seedAttendance(mocks, "c1", "s1", today.AddDate(0, 0, -40), model.AttendanceAbsent)

	hw1 := &model.Homework{TeacherID: "t1", ClassID: "c1", Title: "一", Deadline: dashNow.Add(time.Hour)}
	hw2 := &model.Homework{TeacherID: "t1", ClassID: "c1", Title: "二", Deadline: dashNow.Add(-time.Hour)}
	hw3 := &model.Homework{TeacherID: "t1", ClassID: "c1", Title: "三", Deadline: dashNow.Add(2 * time.Hour)}
	for _, hw := range []*model.Homework{hw1, hw2, hw3} {
		_ = mocks.homework.Create(ctx, hw)
	}
	_ = mocks.submissions.Create(ctx, &model.HomeworkSubmission{HomeworkID: hw1.HomeworkID, StudentID: "s1", Status: model.SubmissionSubmitted})
	_ = mocks.submissions.Create(ctx, &model.HomeworkSubmission{HomeworkID: hw2.HomeworkID, StudentID: "s1", Status: model.SubmissionMissing})

	exam := &model.Exam{TeacherID: "t1", ClassID: "c1", Title: "月考"}
	_ = mocks.exams.Create(ctx, exam)
	submitted := dashNow.Add(-time.Hour)
	_ = mocks.results.Create(ctx, &model.ExamResult{ExamID: exam.ExamID, StudentID: "s1", Status: model.ResultSubmitted, Percentage: 92.5, SubmittedAt: &submitted})

	resp, err := svc.Parent(ctx, "p1")
	if err != nil {
		t.Fatalf("Parent 应成功: %v", err)
	}
	if len(resp.Children) != 1 {
		t.Fatalf("期望 1 个孩子，实际=%d", len(resp.Children))
	}
	child := resp.Children[0]
	if child.Student.ID != "s1" || child.ClassName != "一班" {
		t.Errorf("孩子信息不正确: %+v", child)
	}
	if child.AttendanceRate != 50 {
		t.Errorf("期望近 30 天出勤率 50，实际=%v", child.AttendanceRate)
	}
	if child.PendingHomework != 2 {
		t.Errorf("期望待完成作业 2（缺交计入），实际=%d", child.PendingHomework)
	}
	if child.LatestExamPercentage == nil || *child.LatestExamPercentage != 92.5 || child.LatestExamTitle != "月考" {
		t.Errorf("最近考试不正确: %+v", child)
	}
}

func TestCountPendingHomework(t *testing.T) {
	subs := []model.HomeworkSubmission{
		{HomeworkID: "a", Status: model.SubmissionGraded},
		{HomeworkID: "b", Status: model.SubmissionMissing},
		{HomeworkID: "c", Status: model.SubmissionLate},
	}
	if got := countPendingHomework([]string{"a", "b", "c", "d"}, subs); got != 2 {
		t.Errorf("期望 2，实际=%d", got)
	}
	if got := countPendingHomework(nil, subs); got != 0 {
		t.Errorf("无作业时应为 0，实际=%d", got)
	}
}
