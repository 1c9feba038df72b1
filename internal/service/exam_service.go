package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
	pkgerrors "github.com/mohamed66886/sehaty-sub000/pkg/errors"
)

// ── 考试模块业务错误 ──

var (
	ErrExamNotFound         = errors.New("考试不存在")
	ErrExamResultNotFound   = errors.New("考试成绩不存在")
	ErrExamWindowInvalid    = errors.New("考试结束时间必须晚于开始时间")
	ErrExamTimeFormat       = errors.New("时间格式应为 RFC3339")
	ErrInvalidQuestion      = errors.New("题目无效")
	ErrExamNoQuestions      = errors.New("考试至少需要一道题目")
	ErrExamPublished        = errors.New("考试已发布，无法修改题目")
	ErrExamNotPublished     = errors.New("考试尚未发布")
	ErrExamNotOpen          = errors.New("不在考试时间范围内")
	ErrExamNotStarted       = errors.New("尚未开始作答")
	ErrExamAlreadySubmitted = errors.New("已交卷，不能重复提交")
	ErrExamSubmitting       = errors.New("交卷处理中，请勿重复提交")
	ErrNotInExamClass       = errors.New("不属于该考试所在班级")
)

const (
	examSubmitGrace   = 2 * time.Minute
	examSubmitLockTTL = 30 * time.Second
)

// ExamService 考试业务接口
type ExamService interface {
	Create(ctx context.Context, req *dto.CreateExamRequest, callerID, callerRole string) (*dto.ExamResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateExamRequest, callerID, callerRole string) (*dto.ExamResponse, error)
	Delete(ctx context.Context, id, callerID, callerRole string) error
	GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.ExamResponse, error)
	List(ctx context.Context, req *dto.ExamListRequest, callerID, callerRole string) ([]dto.ExamResponse, int64, error)
	Publish(ctx context.Context, id string, published bool, callerID, callerRole string) (*dto.ExamResponse, error)

	AddQuestions(ctx context.Context, id string, questions []dto.QuestionInput, callerID, callerRole string) (*dto.ExamResponse, error)
	ReplaceQuestions(ctx context.Context, id string, questions []dto.QuestionInput, callerID, callerRole string) (*dto.ExamResponse, error)
	// ImportQuestions 从 xlsx/csv 导入题目并追加到考试
	ImportQuestions(ctx context.Context, id string, r io.Reader, filename, callerID, callerRole string) (*dto.ImportResponse, error)

	Start(ctx context.Context, id, studentID string) (*dto.StartExamResponse, error)
	Submit(ctx context.Context, id string, req *dto.SubmitExamRequest, studentID string) (*dto.ExamResultResponse, error)

	Results(ctx context.Context, id, callerID, callerRole string) ([]dto.ExamResultResponse, error)
	MyResults(ctx context.Context, studentID string, page *dto.PaginationRequest) ([]dto.ExamResultResponse, int64, error)
	Stats(ctx context.Context, id, callerID, callerRole string) (*dto.ExamStatsResponse, error)
}

type examService struct {
	repo   *repository.Repository
	locker Locker
	logger *zap.Logger
	now    func() time.Time
}

// NewExamService 创建 ExamService 实例；locker 为 nil 时仅依赖状态条件更新防重
func NewExamService(repo *repository.Repository, locker Locker, logger *zap.Logger) ExamService {
	return &examService{repo: repo, locker: locker, logger: logger, now: time.Now}
}

// ────────────────────── Teacher CRUD ──────────────────────

func (s *examService) Create(ctx context.Context, req *dto.CreateExamRequest, callerID, callerRole string) (*dto.ExamResponse, error) {
	class, err := loadManagedClass(ctx, s.repo, s.logger, req.ClassID, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	startAt, endAt, err := parseExamWindow(req.StartAt, req.EndAt)
	if err != nil {
		return nil, err
	}
	questions, err := buildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	pass := req.PassPercentage
	if pass == 0 {
		pass = 50
	}
	exam := &model.Exam{
		TeacherID:       class.TeacherID,
		ClassID:         class.ClassID,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Questions:       questions,
		DurationMinutes: req.DurationMinutes,
		StartAt:         startAt,
		EndAt:           endAt,
		PassPercentage:  pass,
	}
	exam.StampCreate(callerID)

	if err := s.repo.Exam.Create(ctx, exam); err != nil {
		s.logger.Error("创建考试失败", zap.String("class_id", class.ClassID), zap.Error(err))
		return nil, err
	}
	exam.Class = class
	return toExamResponse(exam, true), nil
}

func (s *examService) Update(ctx context.Context, id string, req *dto.UpdateExamRequest, callerID, callerRole string) (*dto.ExamResponse, error) {
	exam, err := s.loadManagedExam(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		exam.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		exam.Description = *req.Description
	}
	if req.DurationMinutes != nil {
		exam.DurationMinutes = *req.DurationMinutes
	}
	if req.PassPercentage != nil {
		exam.PassPercentage = *req.PassPercentage
	}
	if req.StartAt != nil {
		t, err := time.Parse(time.RFC3339, *req.StartAt)
		if err != nil {
			return nil, ErrExamTimeFormat
		}
		exam.StartAt = t.UTC()
	}
	if req.EndAt != nil {
		t, err := time.Parse(time.RFC3339, *req.EndAt)
		if err != nil {
			return nil, ErrExamTimeFormat
		}
		exam.EndAt = t.UTC()
	}
	if !exam.EndAt.After(exam.StartAt) {
		return nil, ErrExamWindowInvalid
	}

	return s.save(ctx, exam, callerID)
}

func (s *examService) Delete(ctx context.Context, id, callerID, callerRole string) error {
	if _, err := s.loadManagedExam(ctx, id, callerID, callerRole); err != nil {
		return err
	}
	if err := s.repo.Exam.Delete(ctx, id, callerID); err != nil {
		s.logger.Error("删除考试失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *examService) GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.ExamResponse, error) {
	exam, err := s.getExam(ctx, id)
	if err != nil {
		return nil, err
	}
	switch callerRole {
	case model.RoleSuperAdmin:
		return toExamResponse(exam, true), nil
	case model.RoleTeacher:
		if exam.TeacherID != callerID {
			return nil, ErrNotClassOwner
		}
		return toExamResponse(exam, true), nil
	case model.RoleStudent:
		if err := s.ensureStudentOfExam(ctx, exam, callerID); err != nil {
			return nil, err
		}
		if !exam.IsPublished {
			return nil, ErrExamNotFound
		}
		// 题目只在开始作答后下发
		return toExamResponse(exam, false), nil
	default:
		return nil, ErrNoPermission
	}
}

func (s *examService) List(ctx context.Context, req *dto.ExamListRequest, callerID, callerRole string) ([]dto.ExamResponse, int64, error) {
	var filter repository.ExamFilter
	switch callerRole {
	case model.RoleSuperAdmin:
	case model.RoleTeacher:
		filter.TeacherID = callerID
	case model.RoleStudent:
		student, err := s.repo.User.GetByID(ctx, callerID)
		if err != nil {
			return nil, 0, err
		}
		filter.ClassIDs = []string{}
		if student.ClassID != nil {
			filter.ClassIDs = []string{*student.ClassID}
		}
		filter.PublishedOnly = true
	default:
		return nil, 0, ErrNoPermission
	}
	if req.ClassID != "" && filter.ClassIDs == nil {
		filter.ClassIDs = []string{req.ClassID}
	}

	list, total, err := s.repo.Exam.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询考试列表失败", zap.String("caller_id", callerID), zap.Error(err))
		return nil, 0, err
	}
	out := make([]dto.ExamResponse, 0, len(list))
	for i := range list {
		out = append(out, *toExamResponse(&list[i], false))
	}
	return out, total, nil
}

func (s *examService) Publish(ctx context.Context, id string, published bool, callerID, callerRole string) (*dto.ExamResponse, error) {
	exam, err := s.loadManagedExam(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if published {
		if len(exam.Questions) == 0 {
			return nil, ErrExamNoQuestions
		}
		if !exam.EndAt.After(exam.StartAt) {
			return nil, ErrExamWindowInvalid
		}
	}
	exam.IsPublished = published
	return s.save(ctx, exam, callerID)
}

// ────────────────────── Questions ──────────────────────

func (s *examService) AddQuestions(ctx context.Context, id string, questions []dto.QuestionInput, callerID, callerRole string) (*dto.ExamResponse, error) {
	exam, err := s.loadEditableExam(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	added, err := buildQuestions(questions)
	if err != nil {
		return nil, err
	}
	exam.Questions = append(exam.Questions, added...)
	return s.save(ctx, exam, callerID)
}

func (s *examService) ReplaceQuestions(ctx context.Context, id string, questions []dto.QuestionInput, callerID, callerRole string) (*dto.ExamResponse, error) {
	exam, err := s.loadEditableExam(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	replaced, err := buildQuestions(questions)
	if err != nil {
		return nil, err
	}
	exam.Questions = replaced
	return s.save(ctx, exam, callerID)
}

func (s *examService) ImportQuestions(ctx context.Context, id string, r io.Reader, filename, callerID, callerRole string) (*dto.ImportResponse, error) {
	exam, err := s.loadEditableExam(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	rows, err := readImportRows(r, filename)
	if err != nil {
		return nil, err
	}
	questions, report, err := parseQuestionRows(rows)
	if err != nil {
		return nil, err
	}

	if len(questions) > 0 {
		exam.Questions = append(exam.Questions, questions...)
		if _, err := s.save(ctx, exam, callerID); err != nil {
			return nil, err
		}
	}
	s.logger.Info("导入题目",
		zap.String("exam_id", id),
		zap.Int("total", report.Total),
		zap.Int("success", report.Success),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// ────────────────────── Student ──────────────────────

func (s *examService) Start(ctx context.Context, id, studentID string) (*dto.StartExamResponse, error) {
	exam, err := s.getExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureStudentOfExam(ctx, exam, studentID); err != nil {
		return nil, err
	}
	if !exam.IsPublished {
		return nil, ErrExamNotPublished
	}

	existing, err := s.repo.ExamResult.GetByExamAndStudent(ctx, id, studentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询作答记录失败", zap.String("exam_id", id), zap.Error(err))
		return nil, err
	}
	if existing != nil {
		if existing.Status == model.ResultSubmitted {
			return nil, ErrExamAlreadySubmitted
		}
		return toStartExamResponse(exam, existing), nil
	}

	now := s.now().UTC()
	if now.Before(exam.StartAt) || !now.Before(exam.EndAt) {
		return nil, ErrExamNotOpen
	}

	result := &model.ExamResult{
		ExamID:      id,
		StudentID:   studentID,
		Answers:     datatypes.NewJSONType(map[string]string{}),
		TotalPoints: exam.TotalPoints(),
		StartedAt:   now,
		Status:      model.ResultInProgress,
	}
	result.StampCreate(studentID)
	if err := s.repo.ExamResult.Create(ctx, result); err != nil {
		// 并发开始时唯一约束冲突，回读已有记录
		if again, gerr := s.repo.ExamResult.GetByExamAndStudent(ctx, id, studentID); gerr == nil && again.Status == model.ResultInProgress {
			return toStartExamResponse(exam, again), nil
		}
		s.logger.Error("创建作答记录失败", zap.String("exam_id", id), zap.Error(err))
		return nil, err
	}
	return toStartExamResponse(exam, result), nil
}

func (s *examService) Submit(ctx context.Context, id string, req *dto.SubmitExamRequest, studentID string) (*dto.ExamResultResponse, error) {
	if s.locker != nil {
		release, err := s.locker.AcquireLock(ctx, "exam-submit:"+id+":"+studentID, examSubmitLockTTL)
		if err != nil {
			if errors.Is(err, pkgerrors.ErrLockHeld) {
				return nil, ErrExamSubmitting
			}
			// Redis 故障时退化为仅靠状态条件更新
			s.logger.Warn("获取交卷锁失败", zap.String("exam_id", id), zap.Error(err))
		} else {
			defer release()
		}
	}

	exam, err := s.getExam(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.repo.ExamResult.GetByExamAndStudent(ctx, id, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExamNotStarted
		}
		s.logger.Error("查询作答记录失败", zap.String("exam_id", id), zap.Error(err))
		return nil, err
	}
	if result.Status == model.ResultSubmitted {
		return nil, ErrExamAlreadySubmitted
	}

	now := s.now().UTC()
	duration := time.Duration(exam.DurationMinutes) * time.Minute
	if now.After(result.StartedAt.Add(duration + examSubmitGrace)) {
		s.logger.Warn("超时交卷，用时按时长上限计", zap.String("exam_id", id), zap.String("student_id", studentID))
	}

	score, total := scoreExam(exam.Questions, req.Answers)
	result.Answers = datatypes.NewJSONType(req.Answers)
	result.Score = round2(score)
	result.TotalPoints = round2(total)
	result.Percentage = percentage(score, total)
	result.Passed = result.Percentage >= exam.PassPercentage
	result.TimeTakenSeconds = examTimeTaken(result.StartedAt, now, exam.DurationMinutes)
	result.SubmittedAt = &now
	result.StampUpdate(studentID)

	if err := s.repo.ExamResult.Submit(ctx, result); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrExamAlreadySubmitted
		}
		s.logger.Error("交卷失败", zap.String("exam_id", id), zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	result.Exam = exam
	return toExamResultResponse(result), nil
}

// ────────────────────── Results ──────────────────────

func (s *examService) Results(ctx context.Context, id, callerID, callerRole string) ([]dto.ExamResultResponse, error) {
	exam, err := s.loadManagedExam(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	results, err := s.repo.ExamResult.ListByExam(ctx, id)
	if err != nil {
		s.logger.Error("查询考试成绩失败", zap.String("exam_id", id), zap.Error(err))
		return nil, err
	}
	out := make([]dto.ExamResultResponse, 0, len(results))
	for i := range results {
		results[i].Exam = exam
		out = append(out, *toExamResultResponse(&results[i]))
	}
	return out, nil
}

func (s *examService) MyResults(ctx context.Context, studentID string, page *dto.PaginationRequest) ([]dto.ExamResultResponse, int64, error) {
	results, total, err := s.repo.ExamResult.ListByStudent(ctx, studentID, page.GetOffset(), page.GetPageSize())
	if err != nil {
		s.logger.Error("查询个人成绩失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, 0, err
	}
	out := make([]dto.ExamResultResponse, 0, len(results))
	for i := range results {
		out = append(out, *toExamResultResponse(&results[i]))
	}
	return out, total, nil
}

func (s *examService) Stats(ctx context.Context, id, callerID, callerRole string) (*dto.ExamStatsResponse, error) {
	if _, err := s.loadManagedExam(ctx, id, callerID, callerRole); err != nil {
		return nil, err
	}
	results, err := s.repo.ExamResult.ListByExam(ctx, id)
	if err != nil {
		s.logger.Error("查询考试成绩失败", zap.String("exam_id", id), zap.Error(err))
		return nil, err
	}
	stats := computeExamStats(results)
	return &stats, nil
}

// ── 内部辅助 ──

func (s *examService) getExam(ctx context.Context, id string) (*model.Exam, error) {
	exam, err := s.repo.Exam.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExamNotFound
		}
		s.logger.Error("查询考试失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return exam, nil
}

func (s *examService) loadManagedExam(ctx context.Context, id, callerID, callerRole string) (*model.Exam, error) {
	exam, err := s.getExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerRole != model.RoleSuperAdmin && exam.TeacherID != callerID {
		return nil, ErrNotClassOwner
	}
	return exam, nil
}

// loadEditableExam 已发布的考试不允许改题
func (s *examService) loadEditableExam(ctx context.Context, id, callerID, callerRole string) (*model.Exam, error) {
	exam, err := s.loadManagedExam(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if exam.IsPublished {
		return nil, ErrExamPublished
	}
	return exam, nil
}

func (s *examService) ensureStudentOfExam(ctx context.Context, exam *model.Exam, studentID string) error {
	student, err := s.repo.User.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if student.ClassID == nil || *student.ClassID != exam.ClassID {
		return ErrNotInExamClass
	}
	return nil
}

func (s *examService) save(ctx context.Context, exam *model.Exam, callerID string) (*dto.ExamResponse, error) {
	exam.StampUpdate(callerID)
	if err := s.repo.Exam.Update(ctx, exam); err != nil {
		s.logger.Error("更新考试失败", zap.String("id", exam.ExamID), zap.Error(err))
		return nil, err
	}
	return toExamResponse(exam, true), nil
}

func parseExamWindow(start, end string) (time.Time, time.Time, error) {
	startAt, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return time.Time{}, time.Time{}, ErrExamTimeFormat
	}
	endAt, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return time.Time{}, time.Time{}, ErrExamTimeFormat
	}
	if !endAt.After(startAt) {
		return time.Time{}, time.Time{}, ErrExamWindowInvalid
	}
	return startAt.UTC(), endAt.UTC(), nil
}

// buildQuestions 校验输入题目，错误信息带题号
func buildQuestions(inputs []dto.QuestionInput) ([]model.Question, error) {
	out := make([]model.Question, 0, len(inputs))
	for i, in := range inputs {
		q := model.Question{
			Text:    in.Text,
			Type:    in.Type,
			Options: in.Options,
			Answer:  in.Answer,
			Points:  in.Points,
		}
		if q.Points == 0 {
			q.Points = defaultImportPoints
		}
		q, reason := normalizeQuestion(q)
		if reason != "" {
			return nil, fmt.Errorf("%w: 第 %d 题%s", ErrInvalidQuestion, i+1, reason)
		}
		out = append(out, q)
	}
	return out, nil
}

// ── 纯函数：评分与统计 ──

// answerMatches 去首尾空白后忽略大小写比较
func answerMatches(q model.Question, given string) bool {
	given = strings.TrimSpace(given)
	if given == "" {
		return false
	}
	return strings.EqualFold(given, strings.TrimSpace(q.Answer))
}

// scoreExam 返回得分与总分
func scoreExam(questions []model.Question, answers map[string]string) (score, total float64) {
	for _, q := range questions {
		total += q.Points
		if answerMatches(q, answers[q.ID]) {
			score += q.Points
		}
	}
	return score, total
}

// examTimeTaken 作答用时（秒），不超过考试时长
func examTimeTaken(startedAt, submittedAt time.Time, durationMinutes int) int {
	elapsed := submittedAt.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	limit := time.Duration(durationMinutes) * time.Minute
	if elapsed > limit {
		elapsed = limit
	}
	return int(elapsed / time.Second)
}

// computeExamStats 只统计已交卷的成绩
func computeExamStats(results []model.ExamResult) dto.ExamStatsResponse {
	var stats dto.ExamStatsResponse
	var sum float64
	var passed int
	stats.Min = math.MaxFloat64
	for _, r := range results {
		if r.Status != model.ResultSubmitted {
			continue
		}
		stats.Count++
		sum += r.Percentage
		stats.Max = math.Max(stats.Max, r.Percentage)
		stats.Min = math.Min(stats.Min, r.Percentage)
		if r.Passed {
			passed++
		}
	}
	if stats.Count == 0 {
		stats.Min = 0
		return stats
	}
	stats.Average = round2(sum / float64(stats.Count))
	stats.PassRate = percentage(float64(passed), float64(stats.Count))
	return stats
}

func toQuestionResponses(questions []model.Question, withAnswers bool) []dto.QuestionResponse {
	out := make([]dto.QuestionResponse, 0, len(questions))
	for _, q := range questions {
		r := dto.QuestionResponse{ID: q.ID, Text: q.Text, Type: q.Type, Options: q.Options, Points: q.Points}
		if withAnswers {
			r.Answer = q.Answer
		}
		out = append(out, r)
	}
	return out
}

func toExamResponse(exam *model.Exam, withQuestions bool) *dto.ExamResponse {
	resp := &dto.ExamResponse{
		ID:              exam.ExamID,
		ClassID:         exam.ClassID,
		TeacherID:       exam.TeacherID,
		Title:           exam.Title,
		Description:     exam.Description,
		DurationMinutes: exam.DurationMinutes,
		StartAt:         formatTime(exam.StartAt),
		EndAt:           formatTime(exam.EndAt),
		PassPercentage:  exam.PassPercentage,
		IsPublished:     exam.IsPublished,
		QuestionCount:   len(exam.Questions),
		TotalPoints:     round2(exam.TotalPoints()),
		CreatedAt:       formatTime(exam.CreatedAt),
	}
	if exam.Class != nil {
		resp.ClassName = exam.Class.Name
	}
	if withQuestions {
		resp.Questions = toQuestionResponses(exam.Questions, true)
	}
	return resp
}

func toStartExamResponse(exam *model.Exam, result *model.ExamResult) *dto.StartExamResponse {
	return &dto.StartExamResponse{
		ResultID:        result.ResultID,
		ExamID:          exam.ExamID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		StartedAt:       formatTime(result.StartedAt),
		Deadline:        formatTime(result.StartedAt.Add(time.Duration(exam.DurationMinutes) * time.Minute)),
		Questions:       toQuestionResponses(exam.Questions, false),
	}
}

func toExamResultResponse(r *model.ExamResult) *dto.ExamResultResponse {
	resp := &dto.ExamResultResponse{
		ID:               r.ResultID,
		ExamID:           r.ExamID,
		StudentID:        r.StudentID,
		Score:            r.Score,
		TotalPoints:      r.TotalPoints,
		Percentage:       r.Percentage,
		Passed:           r.Passed,
		TimeTakenSeconds: r.TimeTakenSeconds,
		Status:           r.Status,
		StartedAt:        formatTime(r.StartedAt),
		SubmittedAt:      formatTimePtr(r.SubmittedAt),
	}
	if r.Exam != nil {
		resp.ExamTitle = r.Exam.Title
	}
	if r.Student != nil {
		resp.StudentName = r.Student.Name
	}
	return resp
}
