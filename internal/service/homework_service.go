package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
	"github.com/mohamed66886/sehaty-sub000/pkg/storage"
)

// ── 作业模块业务错误 ──

var (
	ErrHomeworkNotFound    = errors.New("作业不存在")
	ErrSubmissionNotFound  = errors.New("提交记录不存在")
	ErrInvalidDeadline     = errors.New("截止时间无效")
	ErrFileTooLarge        = errors.New("文件超过大小限制")
	ErrTooManyFiles        = errors.New("附件数量超过限制")
	ErrAlreadyGraded       = errors.New("作业已批改，无法再次提交")
	ErrNotInHomeworkClass  = errors.New("不属于该作业所在班级")
	ErrAttachmentNotFound  = errors.New("附件不存在")
	ErrEmptySubmission     = errors.New("提交内容与附件不能同时为空")
	ErrSubmissionIsMissing = errors.New("未提交的作业无法批改")
)

const (
	maxAttachments     = 10
	homeworkSweepRange = 7 * 24 * time.Hour
	childHomeworkLimit = 100
)

// Upload 待保存的上传文件
type Upload struct {
	Name        string
	Size        int64
	ContentType string
	Reader      io.Reader
}

// HomeworkService 作业业务接口
type HomeworkService interface {
	Create(ctx context.Context, req *dto.CreateHomeworkRequest, files []Upload, callerID, callerRole string) (*dto.HomeworkResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateHomeworkRequest, callerID, callerRole string) (*dto.HomeworkResponse, error)
	Delete(ctx context.Context, id, callerID, callerRole string) error
	GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.HomeworkResponse, error)
	// List 教师看自己布置的，学生看本班的（含自己的提交状态）
	List(ctx context.Context, req *dto.HomeworkListRequest, callerID, callerRole string) ([]dto.HomeworkResponse, int64, error)
	ListForChildren(ctx context.Context, parentID string) ([]dto.ChildHomeworkResponse, error)

	AddAttachments(ctx context.Context, id string, files []Upload, callerID, callerRole string) (*dto.HomeworkResponse, error)
	RemoveAttachment(ctx context.Context, id string, index int, callerID, callerRole string) (*dto.HomeworkResponse, error)

	Submit(ctx context.Context, id string, req *dto.SubmitHomeworkRequest, files []Upload, studentID string) (*dto.SubmissionResponse, error)
	ListSubmissions(ctx context.Context, id, callerID, callerRole string) ([]dto.SubmissionResponse, error)
	Grade(ctx context.Context, submissionID string, req *dto.GradeSubmissionRequest, callerID, callerRole string) (*dto.SubmissionResponse, error)
	Progress(ctx context.Context, id, callerID, callerRole string) (*dto.HomeworkProgressResponse, error)

	// SweepMissing 为已过截止时间且未提交的学生补 missing 记录，返回新增条数
	SweepMissing(ctx context.Context, now time.Time) (int64, error)
}

type homeworkService struct {
	repo      *repository.Repository
	store     storage.Storage
	maxUpload int64
	logger    *zap.Logger
	now       func() time.Time
}

// NewHomeworkService 创建 HomeworkService 实例
func NewHomeworkService(repo *repository.Repository, store storage.Storage, maxUpload int64, logger *zap.Logger) HomeworkService {
	return &homeworkService{repo: repo, store: store, maxUpload: maxUpload, logger: logger, now: time.Now}
}

// ────────────────────── Teacher CRUD ──────────────────────

func (s *homeworkService) Create(ctx context.Context, req *dto.CreateHomeworkRequest, files []Upload, callerID, callerRole string) (*dto.HomeworkResponse, error) {
	class, err := loadManagedClass(ctx, s.repo, s.logger, req.ClassID, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil || !deadline.After(s.now()) {
		return nil, ErrInvalidDeadline
	}
	if len(files) > maxAttachments {
		return nil, ErrTooManyFiles
	}

	attachments, err := s.saveFiles(ctx, "homework", files)
	if err != nil {
		return nil, err
	}

	hw := &model.Homework{
		TeacherID:   class.TeacherID,
		ClassID:     class.ClassID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Deadline:    deadline.UTC(),
		Attachments: attachments,
	}
	hw.StampCreate(callerID)

	if err := s.repo.Homework.Create(ctx, hw); err != nil {
		s.logger.Error("创建作业失败", zap.String("class_id", class.ClassID), zap.Error(err))
		s.deleteObjects(ctx, attachments)
		return nil, err
	}
	hw.Class = class

	resp := s.toHomeworkResponse(hw, nil)
	return &resp, nil
}

func (s *homeworkService) Update(ctx context.Context, id string, req *dto.UpdateHomeworkRequest, callerID, callerRole string) (*dto.HomeworkResponse, error) {
	hw, err := s.loadManagedHomework(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		hw.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		hw.Description = *req.Description
	}
	if req.Deadline != nil {
		deadline, err := time.Parse(time.RFC3339, *req.Deadline)
		if err != nil {
			return nil, ErrInvalidDeadline
		}
		hw.Deadline = deadline.UTC()
	}
	hw.StampUpdate(callerID)

	if err := s.repo.Homework.Update(ctx, hw); err != nil {
		s.logger.Error("更新作业失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	resp := s.toHomeworkResponse(hw, nil)
	return &resp, nil
}

func (s *homeworkService) Delete(ctx context.Context, id, callerID, callerRole string) error {
	if _, err := s.loadManagedHomework(ctx, id, callerID, callerRole); err != nil {
		return err
	}
	if err := s.repo.Homework.Delete(ctx, id, callerID); err != nil {
		s.logger.Error("删除作业失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *homeworkService) GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.HomeworkResponse, error) {
	hw, err := s.getHomework(ctx, id)
	if err != nil {
		return nil, err
	}

	switch callerRole {
	case model.RoleSuperAdmin:
	case model.RoleTeacher:
		if hw.TeacherID != callerID {
			return nil, ErrNotClassOwner
		}
	case model.RoleStudent:
		student, err := s.repo.User.GetByID(ctx, callerID)
		if err != nil {
			return nil, err
		}
		if student.ClassID == nil || *student.ClassID != hw.ClassID {
			return nil, ErrNotInHomeworkClass
		}
		sub, err := s.repo.Submission.GetByHomeworkAndStudent(ctx, hw.HomeworkID, callerID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		resp := s.toHomeworkResponse(hw, sub)
		return &resp, nil
	default:
		return nil, ErrNoPermission
	}

	resp := s.toHomeworkResponse(hw, nil)
	return &resp, nil
}

func (s *homeworkService) List(ctx context.Context, req *dto.HomeworkListRequest, callerID, callerRole string) ([]dto.HomeworkResponse, int64, error) {
	var filter repository.HomeworkFilter

	switch callerRole {
	case model.RoleSuperAdmin:
		if req.ClassID != "" {
			filter.ClassIDs = []string{req.ClassID}
		}
	case model.RoleTeacher:
		filter.TeacherID = callerID
		if req.ClassID != "" {
			filter.ClassIDs = []string{req.ClassID}
		}
	case model.RoleStudent:
		student, err := s.repo.User.GetByID(ctx, callerID)
		if err != nil {
			return nil, 0, err
		}
		filter.ClassIDs = []string{}
		if student.ClassID != nil {
			filter.ClassIDs = []string{*student.ClassID}
		}
	default:
		return nil, 0, ErrNoPermission
	}

	list, total, err := s.repo.Homework.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询作业列表失败", zap.String("caller_id", callerID), zap.Error(err))
		return nil, 0, err
	}

	var subs map[string]*model.HomeworkSubmission
	if callerRole == model.RoleStudent {
		subs, err = s.submissionsOf(ctx, callerID, list)
		if err != nil {
			return nil, 0, err
		}
	}

	out := make([]dto.HomeworkResponse, 0, len(list))
	for i := range list {
		out = append(out, s.toHomeworkResponse(&list[i], subs[list[i].HomeworkID]))
	}
	return out, total, nil
}

func (s *homeworkService) ListForChildren(ctx context.Context, parentID string) ([]dto.ChildHomeworkResponse, error) {
	children, err := s.repo.User.ListChildren(ctx, parentID)
	if err != nil {
		s.logger.Error("查询子女失败", zap.String("parent_id", parentID), zap.Error(err))
		return nil, err
	}

	out := make([]dto.ChildHomeworkResponse, 0, len(children))
	for _, child := range children {
		item := dto.ChildHomeworkResponse{
			Child:    dto.StudentBrief{ID: child.UserID, Name: child.Name},
			Homework: []dto.HomeworkResponse{},
		}
		if child.ClassID != nil {
			list, _, err := s.repo.Homework.List(ctx, repository.HomeworkFilter{ClassIDs: []string{*child.ClassID}}, 0, childHomeworkLimit)
			if err != nil {
				return nil, err
			}
			subs, err := s.submissionsOf(ctx, child.UserID, list)
			if err != nil {
				return nil, err
			}
			for i := range list {
				item.Homework = append(item.Homework, s.toHomeworkResponse(&list[i], subs[list[i].HomeworkID]))
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// ────────────────────── Attachments ──────────────────────

func (s *homeworkService) AddAttachments(ctx context.Context, id string, files []Upload, callerID, callerRole string) (*dto.HomeworkResponse, error) {
	hw, err := s.loadManagedHomework(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if len(hw.Attachments)+len(files) > maxAttachments {
		return nil, ErrTooManyFiles
	}

	added, err := s.saveFiles(ctx, "homework", files)
	if err != nil {
		return nil, err
	}
	hw.Attachments = append(hw.Attachments, added...)
	hw.StampUpdate(callerID)

	if err := s.repo.Homework.Update(ctx, hw); err != nil {
		s.logger.Error("保存作业附件失败", zap.String("id", id), zap.Error(err))
		s.deleteObjects(ctx, added)
		return nil, err
	}
	resp := s.toHomeworkResponse(hw, nil)
	return &resp, nil
}

func (s *homeworkService) RemoveAttachment(ctx context.Context, id string, index int, callerID, callerRole string) (*dto.HomeworkResponse, error) {
	hw, err := s.loadManagedHomework(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(hw.Attachments) {
		return nil, ErrAttachmentNotFound
	}

	removed := hw.Attachments[index]
	hw.Attachments = append(hw.Attachments[:index:index], hw.Attachments[index+1:]...)
	hw.StampUpdate(callerID)

	if err := s.repo.Homework.Update(ctx, hw); err != nil {
		s.logger.Error("删除作业附件失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	s.deleteObjects(ctx, []model.Attachment{removed})

	resp := s.toHomeworkResponse(hw, nil)
	return &resp, nil
}

// ────────────────────── Submission ──────────────────────

func (s *homeworkService) Submit(ctx context.Context, id string, req *dto.SubmitHomeworkRequest, files []Upload, studentID string) (*dto.SubmissionResponse, error) {
	hw, err := s.getHomework(ctx, id)
	if err != nil {
		return nil, err
	}
	student, err := s.repo.User.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.ClassID == nil || *student.ClassID != hw.ClassID {
		return nil, ErrNotInHomeworkClass
	}
	content := strings.TrimSpace(req.Content)
	if content == "" && len(files) == 0 {
		return nil, ErrEmptySubmission
	}
	if len(files) > maxAttachments {
		return nil, ErrTooManyFiles
	}

	existing, err := s.repo.Submission.GetByHomeworkAndStudent(ctx, id, studentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询提交记录失败", zap.String("homework_id", id), zap.Error(err))
		return nil, err
	}
	if existing != nil && existing.Status == model.SubmissionGraded {
		return nil, ErrAlreadyGraded
	}

	attachments, err := s.saveFiles(ctx, "submissions", files)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	status := submissionStatus(now, hw.Deadline)

	if existing == nil {
		sub := &model.HomeworkSubmission{
			HomeworkID:  id,
			StudentID:   studentID,
			Content:     content,
			Attachments: attachments,
			Status:      status,
			SubmittedAt: &now,
		}
		sub.StampCreate(studentID)
		if err := s.repo.Submission.Create(ctx, sub); err != nil {
			s.logger.Error("创建提交记录失败", zap.String("homework_id", id), zap.Error(err))
			s.deleteObjects(ctx, attachments)
			return nil, err
		}
		sub.Student = student
		return toSubmissionResponse(sub), nil
	}

	old := existing.Attachments
	existing.Content = content
	existing.Attachments = attachments
	existing.Status = status
	existing.SubmittedAt = &now
	existing.StampUpdate(studentID)
	if err := s.repo.Submission.Update(ctx, existing); err != nil {
		s.logger.Error("更新提交记录失败", zap.String("homework_id", id), zap.Error(err))
		s.deleteObjects(ctx, attachments)
		return nil, err
	}
	s.deleteObjects(ctx, old)
	existing.Student = student
	return toSubmissionResponse(existing), nil
}

func (s *homeworkService) ListSubmissions(ctx context.Context, id, callerID, callerRole string) ([]dto.SubmissionResponse, error) {
	if _, err := s.loadManagedHomework(ctx, id, callerID, callerRole); err != nil {
		return nil, err
	}
	subs, err := s.repo.Submission.ListByHomework(ctx, id)
	if err != nil {
		s.logger.Error("查询提交列表失败", zap.String("homework_id", id), zap.Error(err))
		return nil, err
	}
	out := make([]dto.SubmissionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, *toSubmissionResponse(&subs[i]))
	}
	return out, nil
}

func (s *homeworkService) Grade(ctx context.Context, submissionID string, req *dto.GradeSubmissionRequest, callerID, callerRole string) (*dto.SubmissionResponse, error) {
	sub, err := s.repo.Submission.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		s.logger.Error("查询提交记录失败", zap.String("id", submissionID), zap.Error(err))
		return nil, err
	}
	if _, err := s.loadManagedHomework(ctx, sub.HomeworkID, callerID, callerRole); err != nil {
		return nil, err
	}
	if sub.Status == model.SubmissionMissing {
		return nil, ErrSubmissionIsMissing
	}

	now := s.now().UTC()
	grade := round2(*req.Grade)
	sub.Grade = &grade
	sub.Feedback = strings.TrimSpace(req.Feedback)
	sub.Status = model.SubmissionGraded
	sub.GradedAt = &now
	sub.StampUpdate(callerID)

	if err := s.repo.Submission.Update(ctx, sub); err != nil {
		s.logger.Error("批改作业失败", zap.String("id", submissionID), zap.Error(err))
		return nil, err
	}
	return toSubmissionResponse(sub), nil
}

func (s *homeworkService) Progress(ctx context.Context, id, callerID, callerRole string) (*dto.HomeworkProgressResponse, error) {
	hw, err := s.loadManagedHomework(ctx, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	roster, err := s.repo.User.ListStudentsByClass(ctx, hw.ClassID)
	if err != nil {
		s.logger.Error("查询花名册失败", zap.String("class_id", hw.ClassID), zap.Error(err))
		return nil, err
	}
	subs, err := s.repo.Submission.ListByHomework(ctx, id)
	if err != nil {
		s.logger.Error("查询提交列表失败", zap.String("homework_id", id), zap.Error(err))
		return nil, err
	}
	p := homeworkProgress(id, roster, subs)
	return &p, nil
}

// ────────────────────── Sweep ──────────────────────

func (s *homeworkService) SweepMissing(ctx context.Context, now time.Time) (int64, error) {
	list, err := s.repo.Homework.ListDeadlineBetween(ctx, now.Add(-homeworkSweepRange), now)
	if err != nil {
		s.logger.Error("查询到期作业失败", zap.Error(err))
		return 0, err
	}

	var total int64
	for _, hw := range list {
		roster, err := s.repo.User.ListStudentsByClass(ctx, hw.ClassID)
		if err != nil {
			s.logger.Error("查询花名册失败", zap.String("class_id", hw.ClassID), zap.Error(err))
			continue
		}
		subs, err := s.repo.Submission.ListByHomework(ctx, hw.HomeworkID)
		if err != nil {
			s.logger.Error("查询提交列表失败", zap.String("homework_id", hw.HomeworkID), zap.Error(err))
			continue
		}

		seen := make(map[string]bool, len(subs))
		for _, sub := range subs {
			seen[sub.StudentID] = true
		}
		var missing []model.HomeworkSubmission
		for _, st := range roster {
			if seen[st.UserID] {
				continue
			}
			missing = append(missing, model.HomeworkSubmission{
				HomeworkID: hw.HomeworkID,
				StudentID:  st.UserID,
				Status:     model.SubmissionMissing,
			})
		}

		n, err := s.repo.Submission.CreateMissing(ctx, missing)
		if err != nil {
			s.logger.Error("写入未提交记录失败", zap.String("homework_id", hw.HomeworkID), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}

// ── 内部辅助 ──

func (s *homeworkService) getHomework(ctx context.Context, id string) (*model.Homework, error) {
	hw, err := s.repo.Homework.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHomeworkNotFound
		}
		s.logger.Error("查询作业失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return hw, nil
}

// loadManagedHomework 作业需由布置的教师或超级管理员管理
func (s *homeworkService) loadManagedHomework(ctx context.Context, id, callerID, callerRole string) (*model.Homework, error) {
	hw, err := s.getHomework(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerRole != model.RoleSuperAdmin && hw.TeacherID != callerID {
		return nil, ErrNotClassOwner
	}
	return hw, nil
}

func (s *homeworkService) submissionsOf(ctx context.Context, studentID string, list []model.Homework) (map[string]*model.HomeworkSubmission, error) {
	ids := make([]string, 0, len(list))
	for _, hw := range list {
		ids = append(ids, hw.HomeworkID)
	}
	subs, err := s.repo.Submission.ListByStudent(ctx, studentID, ids)
	if err != nil {
		s.logger.Error("查询学生提交失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	out := make(map[string]*model.HomeworkSubmission, len(subs))
	for i := range subs {
		out[subs[i].HomeworkID] = &subs[i]
	}
	return out, nil
}

func (s *homeworkService) saveFiles(ctx context.Context, prefix string, files []Upload) ([]model.Attachment, error) {
	saved := make([]model.Attachment, 0, len(files))
	for _, f := range files {
		if s.maxUpload > 0 && f.Size > s.maxUpload {
			s.deleteObjects(ctx, saved)
			return nil, ErrFileTooLarge
		}
		key := storage.ObjectKey(prefix, f.Name)
		url, err := s.store.Put(ctx, key, f.Reader, f.Size, f.ContentType)
		if err != nil {
			s.logger.Error("上传附件失败", zap.String("name", f.Name), zap.Error(err))
			s.deleteObjects(ctx, saved)
			return nil, ErrStorageFailed
		}
		saved = append(saved, model.Attachment{
			Name:        f.Name,
			URL:         url,
			ObjectKey:   key,
			Size:        f.Size,
			ContentType: f.ContentType,
		})
	}
	return saved, nil
}

// deleteObjects 尽力删除，失败只记录日志
func (s *homeworkService) deleteObjects(ctx context.Context, attachments []model.Attachment) {
	for _, a := range attachments {
		if a.ObjectKey == "" {
			continue
		}
		if err := s.store.Delete(ctx, a.ObjectKey); err != nil {
			s.logger.Warn("删除附件对象失败", zap.String("key", a.ObjectKey), zap.Error(err))
		}
	}
}

func (s *homeworkService) toHomeworkResponse(hw *model.Homework, sub *model.HomeworkSubmission) dto.HomeworkResponse {
	resp := dto.HomeworkResponse{
		ID:          hw.HomeworkID,
		ClassID:     hw.ClassID,
		TeacherID:   hw.TeacherID,
		Title:       hw.Title,
		Description: hw.Description,
		Deadline:    formatTime(hw.Deadline),
		IsOverdue:   s.now().After(hw.Deadline),
		Attachments: toAttachmentResponses(hw.Attachments),
		CreatedAt:   formatTime(hw.CreatedAt),
	}
	if hw.Class != nil {
		resp.ClassName = hw.Class.Name
	}
	if sub != nil {
		resp.MySubmission = toSubmissionResponse(sub)
	}
	return resp
}

// ── 纯函数 ──

// submissionStatus 截止时间之后提交记为 late
func submissionStatus(at, deadline time.Time) string {
	if at.After(deadline) {
		return model.SubmissionLate
	}
	return model.SubmissionSubmitted
}

// homeworkProgress 以花名册为基准统计提交情况；missing 计入未交
func homeworkProgress(homeworkID string, roster []model.User, subs []model.HomeworkSubmission) dto.HomeworkProgressResponse {
	byStudent := make(map[string]*model.HomeworkSubmission, len(subs))
	for i := range subs {
		byStudent[subs[i].StudentID] = &subs[i]
	}

	p := dto.HomeworkProgressResponse{
		HomeworkID:      homeworkID,
		RosterSize:      len(roster),
		PendingStudents: []dto.StudentBrief{},
	}
	for _, st := range roster {
		sub, ok := byStudent[st.UserID]
		if !ok || sub.Status == model.SubmissionMissing {
			p.Pending++
			p.PendingStudents = append(p.PendingStudents, dto.StudentBrief{ID: st.UserID, Name: st.Name})
			if ok {
				p.Missing++
			}
			continue
		}
		p.Submitted++
		switch sub.Status {
		case model.SubmissionGraded:
			p.Graded++
		case model.SubmissionLate:
			p.Late++
		}
	}
	p.SubmissionRate = percentage(float64(p.Submitted), float64(p.RosterSize))
	return p
}

func toAttachmentResponses(list []model.Attachment) []dto.AttachmentResponse {
	out := make([]dto.AttachmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, dto.AttachmentResponse{Name: a.Name, URL: a.URL, Size: a.Size, ContentType: a.ContentType})
	}
	return out
}

func toSubmissionResponse(sub *model.HomeworkSubmission) *dto.SubmissionResponse {
	resp := &dto.SubmissionResponse{
		ID:          sub.SubmissionID,
		HomeworkID:  sub.HomeworkID,
		StudentID:   sub.StudentID,
		Content:     sub.Content,
		Attachments: toAttachmentResponses(sub.Attachments),
		Status:      sub.Status,
		Grade:       sub.Grade,
		Feedback:    sub.Feedback,
		SubmittedAt: formatTimePtr(sub.SubmittedAt),
		GradedAt:    formatTimePtr(sub.GradedAt),
	}
	if sub.Student != nil {
		resp.StudentName = sub.Student.Name
	}
	return resp
}
