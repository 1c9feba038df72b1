package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
)

var examNow = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func setupTestExamService() (*examService, *mockRepos, *fakeLocker) {
	mocks, repo := newMockRepos()
	locker := newFakeLocker()
	svc := NewExamService(repo, locker, zap.NewNop()).(*examService)
	svc.now = func() time.Time { return examNow }

	mocks.addUser("t1", "王老师", model.RoleTeacher)
	mocks.addUser("t2", "李老师", model.RoleTeacher)
	mocks.addClass("c1", "一班", "t1")
	for _, id := range []string{"s1", "s2"} {
		mocks.addUser(id, "学生"+id, model.RoleStudent)
		mocks.enroll(id, "c1")
	}
	mocks.addUser("s9", "外班学生", model.RoleStudent)
	return svc, mocks, locker
}

func sampleQuestions() []dto.QuestionInput {
	return []dto.QuestionInput{
		{Text: "2+2=?", Type: model.QuestionMCQ, Options: []string{"3", "4", "5"}, Answer: "B", Points: 2},
		{Text: "地球是圆的", Type: model.QuestionTrueFalse, Answer: "True"},
		{Text: "首都", Type: model.QuestionShort, Answer: "Cairo", Points: 3},
	}
}

func createPublishedExam(t *testing.T, svc *examService) *dto.ExamResponse {
	t.Helper()
	ctx := context.Background()
	exam, err := svc.Create(ctx, &dto.CreateExamRequest{
		ClassID:         "c1",
		Title:           "期中考试",
		DurationMinutes: 30,
		StartAt:         examNow.Add(-time.Hour).Format(time.RFC3339),
		EndAt:           examNow.Add(time.Hour).Format(time.RFC3339),
		Questions:       sampleQuestions(),
	}, "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if _, err := svc.Publish(ctx, exam.ID, true, "t1", model.RoleTeacher); err != nil {
		t.Fatalf("Publish 应成功: %v", err)
	}
	return exam
}

func TestExam_Create(t *testing.T) {
	svc, _, _ := setupTestExamService()
	exam := createPublishedExam(t, svc)

	if exam.QuestionCount != 3 || exam.TotalPoints != 6 {
		t.Errorf("期望 3 题共 6 分，实际 %d 题 %v 分", exam.QuestionCount, exam.TotalPoints)
	}
	if exam.PassPercentage != 50 {
		t.Errorf("默认及格线应为 50，实际=%v", exam.PassPercentage)
	}
	if exam.Questions[0].Answer != "4" {
		t.Errorf("字母答案应转换为选项文本，实际=%q", exam.Questions[0].Answer)
	}
	if exam.Questions[1].Answer != "true" {
		t.Errorf("判断题答案应为小写，实际=%q", exam.Questions[1].Answer)
	}
}

func TestExam_Create_Invalid(t *testing.T) {
	svc, _, _ := setupTestExamService()
	ctx := context.Background()
	start := examNow.Format(time.RFC3339)

	_, err := svc.Create(ctx, &dto.CreateExamRequest{ClassID: "c1", Title: "x", DurationMinutes: 10, StartAt: start, EndAt: start}, "t1", model.RoleTeacher)
	if !errors.Is(err, ErrExamWindowInvalid) {
		t.Errorf("期望 ErrExamWindowInvalid，实际: %v", err)
	}
	_, err = svc.Create(ctx, &dto.CreateExamRequest{ClassID: "c1", Title: "x", DurationMinutes: 10, StartAt: "明天", EndAt: start}, "t1", model.RoleTeacher)
	if !errors.Is(err, ErrExamTimeFormat) {
		t.Errorf("期望 ErrExamTimeFormat，实际: %v", err)
	}
	_, err = svc.Create(ctx, &dto.CreateExamRequest{
		ClassID: "c1", Title: "x", DurationMinutes: 10, StartAt: start, EndAt: examNow.Add(time.Hour).Format(time.RFC3339),
		Questions: []dto.QuestionInput{{Text: "q", Type: model.QuestionMCQ, Options: []string{"only"}, Answer: "only"}},
	}, "t1", model.RoleTeacher)
	if !errors.Is(err, ErrInvalidQuestion) || !strings.Contains(err.Error(), "第 1 题") {
		t.Errorf("期望带题号的 ErrInvalidQuestion，实际: %v", err)
	}
}

func TestExam_PublishedQuestionsLocked(t *testing.T) {
	svc, _, _ := setupTestExamService()
	exam := createPublishedExam(t, svc)
	ctx := context.Background()

	if _, err := svc.AddQuestions(ctx, exam.ID, sampleQuestions(), "t1", model.RoleTeacher); !errors.Is(err, ErrExamPublished) {
		t.Errorf("期望 ErrExamPublished，实际: %v", err)
	}
	if _, err := svc.Publish(ctx, exam.ID, false, "t1", model.RoleTeacher); err != nil {
		t.Fatalf("取消发布应成功: %v", err)
	}
	resp, err := svc.ReplaceQuestions(ctx, exam.ID, sampleQuestions()[:1], "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("取消发布后 ReplaceQuestions 应成功: %v", err)
	}
	if resp.QuestionCount != 1 {
		t.Errorf("期望 1 题，实际=%d", resp.QuestionCount)
	}
}

func TestExam_Publish_NoQuestions(t *testing.T) {
	svc, _, _ := setupTestExamService()
	exam, _ := svc.Create(context.Background(), &dto.CreateExamRequest{
		ClassID: "c1", Title: "空考试", DurationMinutes: 10,
		StartAt: examNow.Format(time.RFC3339), EndAt: examNow.Add(time.Hour).Format(time.RFC3339),
	}, "t1", model.RoleTeacher)

	if _, err := svc.Publish(context.Background(), exam.ID, true, "t1", model.RoleTeacher); !errors.Is(err, ErrExamNoQuestions) {
		t.Errorf("期望 ErrExamNoQuestions，实际: %v", err)
	}
}

func TestExam_ImportQuestions_CSV(t *testing.T) {
	svc, mocks, _ := setupTestExamService()
	exam, _ := svc.Create(context.Background(), &dto.CreateExamRequest{
		ClassID: "c1", Title: "导入", DurationMinutes: 10,
		StartAt: examNow.Format(time.RFC3339), EndAt: examNow.Add(time.Hour).Format(time.RFC3339),
	}, "t1", model.RoleTeacher)

	csvData := "question,a,b,c,answer,points\n1+1,1,2,3,B,2\n,x,y,,A,\n"
	report, err := svc.ImportQuestions(context.Background(), exam.ID, strings.NewReader(csvData), "q.csv", "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("ImportQuestions 应成功: %v", err)
	}
	if report.Total != 2 || report.Success != 1 || report.Failed != 1 {
		t.Errorf("导入报告不正确: %+v", report)
	}
	if got := len(mocks.exams.items[exam.ID].Questions); got != 1 {
		t.Errorf("期望追加 1 题，实际=%d", got)
	}
}

// ── 作答 ──

func TestExam_StartAndSubmit(t *testing.T) {
	svc, mocks, _ := setupTestExamService()
	exam := createPublishedExam(t, svc)
	ctx := context.Background()

	start, err := svc.Start(ctx, exam.ID, "s1")
	if err != nil {
		t.Fatalf("Start 应成功: %v", err)
	}
	for _, q := range start.Questions {
		if q.Answer != "" {
			t.Fatal("作答时不应返回答案")
		}
	}
	again, err := svc.Start(ctx, exam.ID, "s1")
	if err != nil || again.ResultID != start.ResultID {
		t.Errorf("重复开始应返回同一记录，err=%v", err)
	}

	svc.now = func() time.Time { return examNow.Add(10 * time.Minute) }
	stored := mocks.exams.items[exam.ID].Questions
	answers := map[string]string{
		stored[0].ID: " 4 ",
		stored[1].ID: "FALSE",
		stored[2].ID: "cairo",
	}
	result, err := svc.Submit(ctx, exam.ID, &dto.SubmitExamRequest{Answers: answers}, "s1")
	if err != nil {
		t.Fatalf("Submit 应成功: %v", err)
	}
	if result.Score != 5 || result.TotalPoints != 6 || result.Percentage != 83.33 || !result.Passed {
		t.Errorf("成绩不正确: %+v", result)
	}
	if result.TimeTakenSeconds != 600 {
		t.Errorf("期望用时 600 秒，实际=%d", result.TimeTakenSeconds)
	}

	if _, err := svc.Submit(ctx, exam.ID, &dto.SubmitExamRequest{Answers: answers}, "s1"); !errors.Is(err, ErrExamAlreadySubmitted) {
		t.Errorf("期望 ErrExamAlreadySubmitted，实际: %v", err)
	}
	if _, err := svc.Start(ctx, exam.ID, "s1"); !errors.Is(err, ErrExamAlreadySubmitted) {
		t.Errorf("交卷后再开始应返回 ErrExamAlreadySubmitted，实际: %v", err)
	}
}

func TestExam_Start_Rejections(t *testing.T) {
	svc, _, _ := setupTestExamService()
	exam := createPublishedExam(t, svc)
	ctx := context.Background()

	if _, err := svc.Start(ctx, exam.ID, "s9"); !errors.Is(err, ErrNotInExamClass) {
		t.Errorf("期望 ErrNotInExamClass，实际: %v", err)
	}
	svc.now = func() time.Time { return examNow.Add(2 * time.Hour) }
	if _, err := svc.Start(ctx, exam.ID, "s1"); !errors.Is(err, ErrExamNotOpen) {
		t.Errorf("期望 ErrExamNotOpen，实际: %v", err)
	}
	if _, err := svc.Submit(ctx, exam.ID, &dto.SubmitExamRequest{Answers: map[string]string{}}, "s2"); !errors.Is(err, ErrExamNotStarted) {
		t.Errorf("期望 ErrExamNotStarted，实际: %v", err)
	}
}

func TestExam_Submit_LockHeld(t *testing.T) {
	svc, _, locker := setupTestExamService()
	exam := createPublishedExam(t, svc)
	ctx := context.Background()
	if _, err := svc.Start(ctx, exam.ID, "s1"); err != nil {
		t.Fatalf("Start 应成功: %v", err)
	}

	release, _ := locker.AcquireLock(ctx, "exam-submit:"+exam.ID+":s1", time.Minute)
	defer release()

	_, err := svc.Submit(ctx, exam.ID, &dto.SubmitExamRequest{Answers: map[string]string{}}, "s1")
	if !errors.Is(err, ErrExamSubmitting) {
		t.Errorf("期望 ErrExamSubmitting，实际: %v", err)
	}
}

func TestExam_ResultsAndStats(t *testing.T) {
	svc, mocks, _ := setupTestExamService()
	exam := createPublishedExam(t, svc)
	ctx := context.Background()
	stored := mocks.exams.items[exam.ID].Questions

	_, _ = svc.Start(ctx, exam.ID, "s1")
	_, _ = svc.Start(ctx, exam.ID, "s2")
	_, _ = svc.Submit(ctx, exam.ID, &dto.SubmitExamRequest{Answers: map[string]string{stored[0].ID: "4", stored[1].ID: "true", stored[2].ID: "Cairo"}}, "s1")
	_, _ = svc.Submit(ctx, exam.ID, &dto.SubmitExamRequest{Answers: map[string]string{stored[1].ID: "true"}}, "s2")

	results, err := svc.Results(ctx, exam.ID, "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("Results 应成功: %v", err)
	}
	if len(results) != 2 || results[0].ExamTitle != "期中考试" {
		t.Errorf("成绩列表不正确: %+v", results)
	}

	stats, err := svc.Stats(ctx, exam.ID, "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("Stats 应成功: %v", err)
	}
	if stats.Count != 2 || stats.Max != 100 || stats.Min != 16.67 || stats.PassRate != 50 {
		t.Errorf("统计不正确: %+v", stats)
	}
	if _, err := svc.Stats(ctx, exam.ID, "t2", model.RoleTeacher); !errors.Is(err, ErrNotClassOwner) {
		t.Errorf("期望 ErrNotClassOwner，实际: %v", err)
	}

	mine, total, err := svc.MyResults(ctx, "s1", &dto.PaginationRequest{})
	if err != nil || total != 1 || len(mine) != 1 {
		t.Errorf("MyResults 应返回 1 条，err=%v total=%d", err, total)
	}
}

// ── 纯函数 ──

func TestScoreExam(t *testing.T) {
	questions := []model.Question{
		{ID: "q1", Answer: "Paris", Points: 2},
		{ID: "q2", Answer: "true", Points: 1},
		{ID: "q3", Answer: "42", Points: 1.5},
	}
	tests := []struct {
		name    string
		answers map[string]string
		want    float64
	}{
		{"全对", map[string]string{"q1": "paris", "q2": "TRUE", "q3": " 42 "}, 4.5},
		{"空答案不得分", map[string]string{"q1": "", "q2": "true"}, 1},
		{"未作答", nil, 0},
	}
	for _, tt := range tests {
		score, total := scoreExam(questions, tt.answers)
		if score != tt.want || total != 4.5 {
			t.Errorf("%s: 期望 %v/4.5，实际 %v/%v", tt.name, tt.want, score, total)
		}
	}
}

func TestExamTimeTaken(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		submitted time.Time
		want      int
	}{
		{start.Add(90 * time.Second), 90},
		{start.Add(45 * time.Minute), 1800},
		{start.Add(-time.Minute), 0},
	}
	for _, tt := range tests {
		if got := examTimeTaken(start, tt.submitted, 30); got != tt.want {
			t.Errorf("examTimeTaken(%v) = %d，期望 %d", tt.submitted.Sub(start), got, tt.want)
		}
	}
}

func TestComputeExamStats(t *testing.T) {
	results := []model.ExamResult{
		{Status: model.ResultSubmitted, Percentage: 80, Passed: true},
		{Status: model.ResultSubmitted, Percentage: 40, Passed: false},
		{Status: model.ResultSubmitted, Percentage: 75, Passed: true},
		{Status: model.ResultInProgress, Percentage: 0},
	}
	stats := computeExamStats(results)
	if stats.Count != 3 || stats.Average != 65 || stats.Max != 80 || stats.Min != 40 || stats.PassRate != 66.67 {
		t.Errorf("统计不正确: %+v", stats)
	}

	empty := computeExamStats(nil)
	if empty.Count != 0 || empty.Min != 0 || empty.Average != 0 {
		t.Errorf("空结果统计应全为 0: %+v", empty)
	}
}
