package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/config"
	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
	"github.com/mohamed66886/sehaty-sub000/pkg/jwt"
)

var (
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailExists        = errors.New("邮箱已被注册")
	ErrAccountDisabled    = errors.New("账号已被停用")
	ErrTokenInvalid       = errors.New("登录状态已失效，请重新登录")
	ErrOldPasswordWrong   = errors.New("原密码错误")
	ErrSamePassword       = errors.New("新密码不能与原密码相同")
	ErrRegistrationClosed = errors.New("暂未开放自助注册")
)

// AuthService 认证业务接口
type AuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.UserResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	// Logout 将 Access Token（以及可选的 Refresh Token）加入黑名单
	Logout(ctx context.Context, jti string, expiresAt time.Time, refreshToken string) error
	GetCurrentUser(ctx context.Context, userID string) (*dto.UserResponse, error)
	ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error
}

type authService struct {
	cfg    *config.Config
	repo   *repository.Repository
	jwtMgr *jwt.Manager
	tokens TokenStore
	logger *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	tokens TokenStore,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:    cfg,
		repo:   repo,
		jwtMgr: jwtMgr,
		tokens: tokens,
		logger: logger,
	}
}

// ────────────────────── Login ──────────────────────

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	// 1. 查询用户
	user, err := s.repo.User.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	// 2. 验证密码 (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	// 3. 生成 Token 对
	return s.issueTokens(user, req.RememberMe)
}

// ────────────────────── Register ──────────────────────

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.UserResponse, error) {
	if !s.cfg.Feature.SelfRegistration {
		return nil, ErrRegistrationClosed
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.User.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询邮箱失败", zap.Error(err))
		return nil, err
	}

	user := &model.User{
		Name:        strings.TrimSpace(req.Name),
		Email:       email,
		Phone:       req.Phone,
		Role:        req.Role,
		Language:    "ar",
		NotifyEmail: true,
		IsActive:    true,
	}

	// 学生携带班级码注册时直接加入班级
	if req.ClassCode != "" {
		if req.Role != model.RoleStudent {
			return nil, ErrNotStudent
		}
		code, err := s.repo.ClassCode.GetActiveByCode(ctx, req.ClassCode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrClassCodeInvalid
			}
			s.logger.Error("查询班级码失败", zap.Error(err))
			return nil, err
		}
		if !code.Usable(time.Now()) {
			return nil, ErrClassCodeInvalid
		}
		user.ClassID = &code.ClassID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}
	user.PasswordHash = string(hash)

	if err := s.repo.User.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailExists
		}
		s.logger.Error("创建用户失败", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	s.logger.Info("用户自助注册", zap.String("user_id", user.UserID), zap.String("role", user.Role))
	resp := toUserResponse(user)
	return &resp, nil
}

// ────────────────────── RefreshToken ──────────────────────

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	if refreshToken == "" {
		return nil, ErrTokenInvalid
	}
	claims, err := s.jwtMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if s.tokens != nil {
		blacklisted, err := s.tokens.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			// Redis 故障时放行，仅记录日志
			s.logger.Warn("查询 Token 黑名单失败", zap.Error(err))
		} else if blacklisted {
			return nil, ErrTokenInvalid
		}
	}

	user, err := s.repo.User.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		s.logger.Error("查询用户失败", zap.String("user_id", claims.UserID), zap.Error(err))
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	// 轮换：旧 Refresh Token 作废
	s.blacklist(ctx, claims.ID, claims.ExpiresAt.Time)

	return s.issueTokens(user, claims.RememberMe)
}

// ────────────────────── Logout ──────────────────────

func (s *authService) Logout(ctx context.Context, jti string, expiresAt time.Time, refreshToken string) error {
	s.blacklist(ctx, jti, expiresAt)

	if refreshToken != "" {
		if claims, err := s.jwtMgr.ParseRefreshToken(refreshToken); err == nil {
			s.blacklist(ctx, claims.ID, claims.ExpiresAt.Time)
		}
	}
	return nil
}

// ────────────────────── Me / Password ──────────────────────

func (s *authService) GetCurrentUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

func (s *authService) ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return ErrOldPasswordWrong
	}
	if req.OldPassword == req.NewPassword {
		return ErrSamePassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return err
	}
	user.PasswordHash = string(hash)
	user.MustChangePassword = false
	user.StampUpdate(userID)

	if err := s.repo.User.Update(ctx, user); err != nil {
		s.logger.Error("修改密码失败", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// ── 内部辅助方法 ──

func (s *authService) issueTokens(user *model.User, rememberMe bool) (*dto.TokenResponse, error) {
	accessToken, err := s.jwtMgr.GenerateAccessToken(user.UserID, user.Role)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}

	refreshToken, err := s.jwtMgr.GenerateRefreshToken(user.UserID, user.Role, rememberMe)
	if err != nil {
		s.logger.Error("生成 RefreshToken 失败", zap.Error(err))
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwtMgr.AccessTokenTTL().Seconds()),
		User:         toUserResponse(user),
	}, nil
}

func (s *authService) blacklist(ctx context.Context, jti string, expiresAt time.Time) {
	if s.tokens == nil || jti == "" {
		return
	}
	if err := s.tokens.BlacklistToken(ctx, jti, time.Until(expiresAt)); err != nil {
		s.logger.Warn("加入 Token 黑名单失败", zap.String("jti", jti), zap.Error(err))
	}
}

// toUserResponse 将 model.User 转换为 dto.UserResponse
func toUserResponse(user *model.User) dto.UserResponse {
	resp := dto.UserResponse{
		ID:                 user.UserID,
		Name:               user.Name,
		Email:              user.Email,
		Phone:              user.Phone,
		Role:               user.Role,
		AvatarURL:          user.AvatarURL,
		Language:           user.Language,
		NotifyEmail:        user.NotifyEmail,
		Subject:            user.Subject,
		ClassID:            user.ClassID,
		ParentID:           user.ParentID,
		IsActive:           user.IsActive,
		MustChangePassword: user.MustChangePassword,
		CreatedAt:          formatTime(user.CreatedAt),
	}
	if user.Class != nil {
		resp.ClassName = user.Class.Name
	}
	return resp
}
