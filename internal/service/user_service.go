package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
	"github.com/mohamed66886/sehaty-sub000/pkg/imagex"
	"github.com/mohamed66886/sehaty-sub000/pkg/mailer"
	"github.com/mohamed66886/sehaty-sub000/pkg/storage"
)

// ── 用户模块业务错误 ──

var (
	ErrUserSelfDelete   = errors.New("不能删除或停用自己")
	ErrNoPermission     = errors.New("无权操作")
	ErrNotStudent       = errors.New("目标用户不是学生")
	ErrNotParent        = errors.New("目标用户不是家长")
	ErrChildLinked      = errors.New("该学生已关联其他家长")
	ErrAvatarTooLarge   = errors.New("头像文件不能超过 5MB")
	ErrAvatarBadFormat  = errors.New("头像仅支持 jpeg/png/webp")
	ErrStorageFailed    = errors.New("文件上传失败")
	ErrClassOnlyStudent = errors.New("仅学生可以设置班级")
)

// MaxAvatarBytes 头像上传上限
const MaxAvatarBytes = 5 << 20

// UserService 用户业务接口
type UserService interface {
	// ── 个人设置 ──
	GetProfile(ctx context.Context, userID string) (*dto.UserResponse, error)
	UpdateProfile(ctx context.Context, userID string, req *dto.UpdateProfileRequest) (*dto.UserResponse, error)
	UploadAvatar(ctx context.Context, userID string, r io.Reader, size int64) (*dto.AvatarResponse, error)

	// ── 管理员 ──
	List(ctx context.Context, req *dto.UserListRequest) ([]dto.UserResponse, int64, error)
	GetByID(ctx context.Context, id string) (*dto.UserResponse, error)
	CreateUser(ctx context.Context, req *dto.CreateUserRequest, callerID string) (*dto.CreateUserResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateUserRequest, callerID string) (*dto.UserResponse, error)
	SetActive(ctx context.Context, id string, active bool, callerID string) error
	Delete(ctx context.Context, id string, callerID string) error
	ResetPassword(ctx context.Context, id string, callerID string) (*dto.ResetPasswordResponse, error)

	// ── 家长关联 ──
	LinkChild(ctx context.Context, parentID string, req *dto.LinkChildRequest, callerID, callerRole string) (*dto.UserResponse, error)
	ListChildren(ctx context.Context, parentID string) ([]dto.UserResponse, error)
}

type userService struct {
	repo   *repository.Repository
	store  storage.Storage
	mail   mailer.Mailer
	logger *zap.Logger
}

// NewUserService 创建 UserService 实例
func NewUserService(repo *repository.Repository, store storage.Storage, mail mailer.Mailer, logger *zap.Logger) UserService {
	return &userService{repo: repo, store: store, mail: mail, logger: logger}
}

// ────────────────────── Profile ──────────────────────

func (s *userService) GetProfile(ctx context.Context, userID string) (*dto.UserResponse, error) {
	return s.GetByID(ctx, userID)
}

func (s *userService) UpdateProfile(ctx context.Context, userID string, req *dto.UpdateProfileRequest) (*dto.UserResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Language != nil {
		user.Language = *req.Language
	}
	if req.NotifyEmail != nil {
		user.NotifyEmail = *req.NotifyEmail
	}
	user.StampUpdate(userID)

	if err := s.repo.User.Update(ctx, user); err != nil {
		s.logger.Error("更新个人资料失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	resp := toUserResponse(user)
	return &resp, nil
}

func (s *userService) UploadAvatar(ctx context.Context, userID string, r io.Reader, size int64) (*dto.AvatarResponse, error) {
	if size > MaxAvatarBytes {
		return nil, ErrAvatarTooLarge
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	data, err := imagex.NormalizeAvatar(io.LimitReader(r, MaxAvatarBytes+1))
	if err != nil {
		if errors.Is(err, imagex.ErrUnsupportedImage) {
			return nil, ErrAvatarBadFormat
		}
		s.logger.Error("处理头像失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	key := storage.ObjectKey("avatars", "avatar.webp")
	url, err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "image/webp")
	if err != nil {
		s.logger.Error("上传头像失败", zap.String("user_id", userID), zap.Error(err))
		return nil, ErrStorageFailed
	}

	user.AvatarURL = url
	user.StampUpdate(userID)
	if err := s.repo.User.Update(ctx, user); err != nil {
		s.logger.Error("保存头像地址失败", zap.String("user_id", userID), zap.Error(err))
		_ = s.store.Delete(ctx, key)
		return nil, err
	}

	return &dto.AvatarResponse{AvatarURL: url}, nil
}

// ────────────────────── List / Get ──────────────────────

func (s *userService) List(ctx context.Context, req *dto.UserListRequest) ([]dto.UserResponse, int64, error) {
	filter := repository.UserFilter{
		Role:    req.Role,
		Keyword: strings.TrimSpace(req.Keyword),
		ClassID: req.ClassID,
	}
	users, total, err := s.repo.User.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询用户列表失败", zap.Error(err))
		return nil, 0, err
	}

	list := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		list = append(list, toUserResponse(&users[i]))
	}
	return list, total, nil
}

func (s *userService) GetByID(ctx context.Context, id string) (*dto.UserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// ────────────────────── CreateUser ──────────────────────

func (s *userService) CreateUser(ctx context.Context, req *dto.CreateUserRequest, callerID string) (*dto.CreateUserResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.User.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询邮箱失败", zap.Error(err))
		return nil, err
	}

	if req.ClassID != nil {
		if req.Role != model.RoleStudent {
			return nil, ErrClassOnlyStudent
		}
		if err := s.ensureClassExists(ctx, *req.ClassID); err != nil {
			return nil, err
		}
	}

	password := req.Password
	var tempPassword string
	if password == "" {
		p, err := generateTempPassword(10)
		if err != nil {
			s.logger.Error("生成临时密码失败", zap.Error(err))
			return nil, err
		}
		password, tempPassword = p, p
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}

	user := &model.User{
		Name:               strings.TrimSpace(req.Name),
		Email:              email,
		Phone:              req.Phone,
		PasswordHash:       string(hash),
		Role:               req.Role,
		Language:           "ar",
		NotifyEmail:        true,
		Subject:            req.Subject,
		ClassID:            req.ClassID,
		IsActive:           true,
		MustChangePassword: tempPassword != "",
	}
	user.StampCreate(callerID)

	if err := s.repo.User.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailExists
		}
		s.logger.Error("创建用户失败", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	return &dto.CreateUserResponse{User: toUserResponse(user), TempPassword: tempPassword}, nil
}

// ────────────────────── Update ──────────────────────

func (s *userService) Update(ctx context.Context, id string, req *dto.UpdateUserRequest, callerID string) (*dto.UserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != strings.ToLower(user.Email) {
			if _, err := s.repo.User.GetByEmail(ctx, email); err == nil {
				return nil, ErrEmailExists
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Error("查询邮箱失败", zap.Error(err))
				return nil, err
			}
			user.Email = email
		}
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Subject != nil {
		user.Subject = *req.Subject
	}
	if req.ClassID != nil {
		if user.Role != model.RoleStudent {
			return nil, ErrClassOnlyStudent
		}
		if *req.ClassID == "" {
			user.ClassID = nil
		} else {
			if err := s.ensureClassExists(ctx, *req.ClassID); err != nil {
				return nil, err
			}
			classID := *req.ClassID
			user.ClassID = &classID
		}
		user.Class = nil
	}
	user.StampUpdate(callerID)

	if err := s.repo.User.Update(ctx, user); err != nil {
		s.logger.Error("更新用户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	resp := toUserResponse(user)
	return &resp, nil
}

func (s *userService) SetActive(ctx context.Context, id string, active bool, callerID string) error {
	if id == callerID && !active {
		return ErrUserSelfDelete
	}
	user, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}
	if user.IsActive == active {
		return nil
	}
	user.IsActive = active
	user.StampUpdate(callerID)
	if err := s.repo.User.Update(ctx, user); err != nil {
		s.logger.Error("更新用户状态失败", zap.String("id", id), zap.Bool("active", active), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── Delete ──────────────────────

func (s *userService) Delete(ctx context.Context, id string, callerID string) error {
	if id == callerID {
		return ErrUserSelfDelete
	}
	if _, err := s.getUser(ctx, id); err != nil {
		return err
	}
	if err := s.repo.User.Delete(ctx, id, callerID); err != nil {
		s.logger.Error("删除用户失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── ResetPassword ──────────────────────

func (s *userService) ResetPassword(ctx context.Context, id string, callerID string) (*dto.ResetPasswordResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	tempPassword, err := generateTempPassword(10)
	if err != nil {
		s.logger.Error("生成临时密码失败", zap.Error(err))
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}

	user.PasswordHash = string(hash)
	user.MustChangePassword = true
	user.StampUpdate(callerID)

	if err := s.repo.User.Update(ctx, user); err != nil {
		s.logger.Error("重置密码失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	if user.NotifyEmail && s.mail != nil {
		msg := mailer.Message{
			ToName:  user.Name,
			ToEmail: user.Email,
			Subject: "密码已重置",
			Text:    fmt.Sprintf("%s，您好：管理员已重置您的密码，临时密码为 %s，请登录后立即修改。", user.Name, tempPassword),
		}
		if err := s.mail.Send(ctx, msg); err != nil {
			s.logger.Warn("发送重置密码邮件失败", zap.String("id", id), zap.Error(err))
		}
	}

	return &dto.ResetPasswordResponse{TempPassword: tempPassword}, nil
}

// ────────────────────── Children ──────────────────────

func (s *userService) LinkChild(ctx context.Context, parentID string, req *dto.LinkChildRequest, callerID, callerRole string) (*dto.UserResponse, error) {
	if callerRole != model.RoleSuperAdmin && callerID != parentID {
		return nil, ErrNoPermission
	}

	parent, err := s.getUser(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Role != model.RoleParent {
		return nil, ErrNotParent
	}

	student, err := s.repo.User.GetByEmail(ctx, req.StudentEmail)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询学生失败", zap.Error(err))
		return nil, err
	}
	if student.Role != model.RoleStudent {
		return nil, ErrNotStudent
	}
	if student.ParentID != nil && *student.ParentID != parentID {
		return nil, ErrChildLinked
	}

	student.ParentID = &parentID
	student.StampUpdate(callerID)
	if err := s.repo.User.Update(ctx, student); err != nil {
		s.logger.Error("关联学生失败", zap.String("parent_id", parentID), zap.String("student_id", student.UserID), zap.Error(err))
		return nil, err
	}

	resp := toUserResponse(student)
	return &resp, nil
}

func (s *userService) ListChildren(ctx context.Context, parentID string) ([]dto.UserResponse, error) {
	children, err := s.repo.User.ListChildren(ctx, parentID)
	if err != nil {
		s.logger.Error("查询子女失败", zap.String("parent_id", parentID), zap.Error(err))
		return nil, err
	}
	list := make([]dto.UserResponse, 0, len(children))
	for i := range children {
		list = append(list, toUserResponse(&children[i]))
	}
	return list, nil
}

// ── 内部辅助方法 ──

func (s *userService) getUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return user, nil
}

func (s *userService) ensureClassExists(ctx context.Context, classID string) error {
	if _, err := s.repo.Class.GetByID(ctx, classID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		s.logger.Error("查询班级失败", zap.String("class_id", classID), zap.Error(err))
		return err
	}
	return nil
}

// generateTempPassword 生成指定长度的临时密码（保证包含字母和数字）
func generateTempPassword(length int) (string, error) {
	const letters = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
	const digits = "23456789"
	const all = letters + digits

	if length < 8 {
		length = 8
	}

	result := make([]byte, length)

	// 保证至少1个字母+1个数字
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
	if err != nil {
		return "", err
	}
	result[0] = letters[n.Int64()]

	n, err = rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
	if err != nil {
		return "", err
	}
	result[1] = digits[n.Int64()]

	for i := 2; i < length; i++ {
		n, err = rand.Int(rand.Reader, big.NewInt(int64(len(all))))
		if err != nil {
			return "", err
		}
		result[i] = all[n.Int64()]
	}

	// Fisher-Yates 洗牌
	for i := length - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		result[i], result[j.Int64()] = result[j.Int64()], result[i]
	}

	return string(result), nil
}
