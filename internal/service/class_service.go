package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/config"
	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
)

// ── 班级模块业务错误 ──

var (
	ErrClassNotFound      = errors.New("班级不存在")
	ErrNotClassOwner      = errors.New("只能管理自己的班级")
	ErrClassCodeInvalid   = errors.New("班级码无效或已过期")
	ErrClassCodeExhausted = errors.New("班级码生成失败，请稍后重试")
	ErrClassHasNoCode     = errors.New("该班级尚未生成班级码")
	ErrAlreadyInClass     = errors.New("已在该班级中")
	ErrStudentNotInClass  = errors.New("该学生不在此班级")
	ErrClassHasStudents   = errors.New("班级内仍有学生，无法删除")
)

const (
	classCodeSpace       = 10000 // 0000 - 9999
	classCodeMaxAttempts = 20
	qrCodeSize           = 256
)

// ClassService 班级与班级码业务接口
type ClassService interface {
	Create(ctx context.Context, req *dto.CreateClassRequest, teacherID string) (*dto.ClassResponse, error)
	List(ctx context.Context, callerID, callerRole string) ([]dto.ClassResponse, error)
	GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.ClassResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateClassRequest, callerID, callerRole string) (*dto.ClassResponse, error)
	Delete(ctx context.Context, id, callerID, callerRole string) error

	ListStudents(ctx context.Context, id, callerID, callerRole string) ([]dto.UserResponse, error)
	RemoveStudent(ctx context.Context, classID, studentID, callerID, callerRole string) error

	GenerateCode(ctx context.Context, classID string, req *dto.GenerateClassCodeRequest, callerID, callerRole string) (*dto.ClassCodeResponse, error)
	GetActiveCode(ctx context.Context, classID, callerID, callerRole string) (*dto.ClassCodeResponse, error)
	// CodeQR 当前班级码的加入链接二维码（PNG）
	CodeQR(ctx context.Context, classID, callerID, callerRole string) ([]byte, error)
	ValidateCode(ctx context.Context, code string) (*dto.ClassCodeValidateResponse, error)
	Join(ctx context.Context, studentID string, req *dto.JoinClassRequest) (*dto.ClassResponse, error)
}

type classService struct {
	cfg    *config.Config
	repo   *repository.Repository
	logger *zap.Logger
}

// NewClassService 创建 ClassService 实例
func NewClassService(cfg *config.Config, repo *repository.Repository, logger *zap.Logger) ClassService {
	return &classService{cfg: cfg, repo: repo, logger: logger}
}

// ────────────────────── CRUD ──────────────────────

func (s *classService) Create(ctx context.Context, req *dto.CreateClassRequest, teacherID string) (*dto.ClassResponse, error) {
	class := &model.Class{
		Name:        strings.TrimSpace(req.Name),
		TeacherID:   teacherID,
		Description: req.Description,
	}
	class.StampCreate(teacherID)

	if err := s.repo.Class.Create(ctx, class); err != nil {
		s.logger.Error("创建班级失败", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, err
	}
	return toClassResponse(class, 0), nil
}

func (s *classService) List(ctx context.Context, callerID, callerRole string) ([]dto.ClassResponse, error) {
	var classes []model.Class
	var err error
	if callerRole == model.RoleSuperAdmin {
		classes, err = s.repo.Class.ListAll(ctx)
	} else {
		classes, err = s.repo.Class.ListByTeacher(ctx, callerID)
	}
	if err != nil {
		s.logger.Error("查询班级列表失败", zap.String("caller_id", callerID), zap.Error(err))
		return nil, err
	}

	ids := make([]string, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ClassID)
	}
	counts, err := s.repo.User.CountStudentsByClasses(ctx, ids)
	if err != nil {
		s.logger.Error("统计班级人数失败", zap.Error(err))
		return nil, err
	}

	list := make([]dto.ClassResponse, 0, len(classes))
	for i := range classes {
		list = append(list, *toClassResponse(&classes[i], counts[classes[i].ClassID]))
	}
	return list, nil
}

func (s *classService) GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.ClassResponse, error) {
	class, err := loadManagedClass(ctx, s.repo, s.logger, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.User.CountStudentsByClasses(ctx, []string{id})
	if err != nil {
		s.logger.Error("统计班级人数失败", zap.String("class_id", id), zap.Error(err))
		return nil, err
	}
	return toClassResponse(class, counts[id]), nil
}

func (s *classService) Update(ctx context.Context, id string, req *dto.UpdateClassRequest, callerID, callerRole string) (*dto.ClassResponse, error) {
	class, err := loadManagedClass(ctx, s.repo, s.logger, id, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		class.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		class.Description = *req.Description
	}
	class.StampUpdate(callerID)

	if err := s.repo.Class.Update(ctx, class); err != nil {
		s.logger.Error("更新班级失败", zap.String("class_id", id), zap.Error(err))
		return nil, err
	}
	return toClassResponse(class, 0), nil
}

func (s *classService) Delete(ctx context.Context, id, callerID, callerRole string) error {
	if _, err := loadManagedClass(ctx, s.repo, s.logger, id, callerID, callerRole); err != nil {
		return err
	}
	counts, err := s.repo.User.CountStudentsByClasses(ctx, []string{id})
	if err != nil {
		s.logger.Error("统计班级人数失败", zap.String("class_id", id), zap.Error(err))
		return err
	}
	if counts[id] > 0 {
		return ErrClassHasStudents
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error("开启事务失败", zap.Error(err))
		return err
	}
	txRepo := s.repo.WithTx(tx)

	if err := txRepo.ClassCode.DeactivateByClass(ctx, id, callerID); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		s.logger.Error("停用班级码失败", zap.String("class_id", id), zap.Error(err))
		return err
	}
	if err := txRepo.Class.Delete(ctx, id, callerID); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		s.logger.Error("删除班级失败", zap.String("class_id", id), zap.Error(err))
		return err
	}
	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			s.logger.Error("提交事务失败", zap.Error(err))
			return err
		}
	}
	return nil
}

// ────────────────────── Roster ──────────────────────

func (s *classService) ListStudents(ctx context.Context, id, callerID, callerRole string) ([]dto.UserResponse, error) {
	if _, err := loadManagedClass(ctx, s.repo, s.logger, id, callerID, callerRole); err != nil {
		return nil, err
	}
	students, err := s.repo.User.ListStudentsByClass(ctx, id)
	if err != nil {
		s.logger.Error("查询花名册失败", zap.String("class_id", id), zap.Error(err))
		return nil, err
	}
	list := make([]dto.UserResponse, 0, len(students))
	for i := range students {
		list = append(list, toUserResponse(&students[i]))
	}
	return list, nil
}

func (s *classService) RemoveStudent(ctx context.Context, classID, studentID, callerID, callerRole string) error {
	if _, err := loadManagedClass(ctx, s.repo, s.logger, classID, callerID, callerRole); err != nil {
		return err
	}
	student, err := s.repo.User.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		s.logger.Error("查询学生失败", zap.String("student_id", studentID), zap.Error(err))
		return err
	}
	if student.ClassID == nil || *student.ClassID != classID {
		return ErrStudentNotInClass
	}

	student.ClassID = nil
	student.Class = nil
	student.StampUpdate(callerID)
	if err := s.repo.User.Update(ctx, student); err != nil {
		s.logger.Error("移出班级失败", zap.String("student_id", studentID), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── Class Code ──────────────────────

func (s *classService) GenerateCode(ctx context.Context, classID string, req *dto.GenerateClassCodeRequest, callerID, callerRole string) (*dto.ClassCodeResponse, error) {
	class, err := loadManagedClass(ctx, s.repo, s.logger, classID, callerID, callerRole)
	if err != nil {
		return nil, err
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	cc := &model.ClassCode{
		Code:      code,
		ClassID:   class.ClassID,
		ClassName: class.Name,
		IsActive:  true,
	}
	if req != nil && req.ExpiresDays > 0 {
		exp := time.Now().AddDate(0, 0, req.ExpiresDays)
		cc.ExpiresAt = &exp
	}
	cc.StampCreate(callerID)

	// 停用旧码与写入新码放在同一事务
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error("开启事务失败", zap.Error(err))
		return nil, err
	}
	txRepo := s.repo.WithTx(tx)

	if err := txRepo.ClassCode.DeactivateByClass(ctx, classID, callerID); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		s.logger.Error("停用旧班级码失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}
	if err := txRepo.ClassCode.Create(ctx, cc); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		s.logger.Error("创建班级码失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}
	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			s.logger.Error("提交事务失败", zap.Error(err))
			return nil, err
		}
	}

	s.logger.Info("生成班级码", zap.String("class_id", classID), zap.String("code", code))
	return toClassCodeResponse(cc), nil
}

func (s *classService) GetActiveCode(ctx context.Context, classID, callerID, callerRole string) (*dto.ClassCodeResponse, error) {
	if _, err := loadManagedClass(ctx, s.repo, s.logger, classID, callerID, callerRole); err != nil {
		return nil, err
	}
	cc, err := s.repo.ClassCode.GetActiveByClass(ctx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassHasNoCode
		}
		s.logger.Error("查询班级码失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}
	return toClassCodeResponse(cc), nil
}

func (s *classService) CodeQR(ctx context.Context, classID, callerID, callerRole string) ([]byte, error) {
	cc, err := s.GetActiveCode(ctx, classID, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(s.joinURL(cc.Code), qrcode.Medium, qrCodeSize)
	if err != nil {
		s.logger.Error("生成二维码失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}
	return png, nil
}

func (s *classService) ValidateCode(ctx context.Context, code string) (*dto.ClassCodeValidateResponse, error) {
	cc, err := s.repo.ClassCode.GetActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &dto.ClassCodeValidateResponse{Valid: false}, nil
		}
		s.logger.Error("查询班级码失败", zap.Error(err))
		return nil, err
	}
	if !cc.Usable(time.Now()) {
		return &dto.ClassCodeValidateResponse{Valid: false}, nil
	}
	return &dto.ClassCodeValidateResponse{Valid: true, ClassName: cc.ClassName}, nil
}

func (s *classService) Join(ctx context.Context, studentID string, req *dto.JoinClassRequest) (*dto.ClassResponse, error) {
	student, err := s.repo.User.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询学生失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	if student.Role != model.RoleStudent {
		return nil, ErrNotStudent
	}

	cc, err := s.repo.ClassCode.GetActiveByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassCodeInvalid
		}
		s.logger.Error("查询班级码失败", zap.Error(err))
		return nil, err
	}
	if !cc.Usable(time.Now()) {
		return nil, ErrClassCodeInvalid
	}
	if student.ClassID != nil && *student.ClassID == cc.ClassID {
		return nil, ErrAlreadyInClass
	}

	class, err := s.repo.Class.GetByID(ctx, cc.ClassID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassCodeInvalid
		}
		s.logger.Error("查询班级失败", zap.String("class_id", cc.ClassID), zap.Error(err))
		return nil, err
	}

	student.ClassID = &class.ClassID
	student.Class = nil
	student.StampUpdate(studentID)
	if err := s.repo.User.Update(ctx, student); err != nil {
		s.logger.Error("加入班级失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("学生加入班级", zap.String("student_id", studentID), zap.String("class_id", class.ClassID))
	return toClassResponse(class, 0), nil
}

// ── 内部辅助方法 ──

// uniqueCode 随机生成 4 位数字码，与启用中的班级码冲突时重试
func (s *classService) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < classCodeMaxAttempts; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(classCodeSpace))
		if err != nil {
			return "", err
		}
		code := fmt.Sprintf("%04d", n.Int64())

		_, err = s.repo.ClassCode.GetActiveByCode(ctx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return code, nil
		}
		if err != nil {
			s.logger.Error("查询班级码失败", zap.Error(err))
			return "", err
		}
	}
	s.logger.Warn("班级码生成重试次数耗尽", zap.Int("attempts", classCodeMaxAttempts))
	return "", ErrClassCodeExhausted
}

func (s *classService) joinURL(code string) string {
	return strings.TrimRight(s.cfg.Server.BaseURL, "/") + "/join?code=" + url.QueryEscape(code)
}

// loadManagedClass 查询班级并校验调用者为班主任或超级管理员
func loadManagedClass(ctx context.Context, repo *repository.Repository, logger *zap.Logger, classID, callerID, callerRole string) (*model.Class, error) {
	class, err := repo.Class.GetByID(ctx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassNotFound
		}
		logger.Error("查询班级失败", zap.String("class_id", classID), zap.Error(err))
		return nil, err
	}
	if callerRole != model.RoleSuperAdmin && class.TeacherID != callerID {
		return nil, ErrNotClassOwner
	}
	return class, nil
}

func toClassResponse(class *model.Class, studentCount int64) *dto.ClassResponse {
	resp := &dto.ClassResponse{
		ID:           class.ClassID,
		Name:         class.Name,
		TeacherID:    class.TeacherID,
		Description:  class.Description,
		StudentCount: studentCount,
		CreatedAt:    formatTime(class.CreatedAt),
	}
	if class.Teacher != nil {
		resp.TeacherName = class.Teacher.Name
	}
	return resp
}

func toClassCodeResponse(cc *model.ClassCode) *dto.ClassCodeResponse {
	return &dto.ClassCodeResponse{
		Code:      cc.Code,
		ClassID:   cc.ClassID,
		ClassName: cc.ClassName,
		ExpiresAt: formatTimePtr(cc.ExpiresAt),
	}
}
