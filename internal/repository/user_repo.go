package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
	pkgerrors "github.com/mohamed66886/sehaty-sub000/pkg/errors"
)

// UserFilter 用户列表过滤条件
type UserFilter struct {
	Role    string
	Keyword string
	ClassID string
}

// UserRepository 用户数据访问接口
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string, deletedBy string) error
	List(ctx context.Context, filter UserFilter, offset, limit int) ([]model.User, int64, error)
	// ListStudentsByClass 班级花名册（按姓名排序）
	ListStudentsByClass(ctx context.Context, classID string) ([]model.User, error)
	ListChildren(ctx context.Context, parentID string) ([]model.User, error)
	CountByRole(ctx context.Context) (map[string]int64, error)
	// CountStudentsByClasses 返回 class_id -> 学生数
	CountStudentsByClasses(ctx context.Context, classIDs []string) (map[string]int64, error)
}

// userRepo UserRepository 的 GORM 实现
type userRepo struct {
	db *gorm.DB
}

// NewUserRepo 创建 UserRepository 实例
func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("user_id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail 邮箱大小写不敏感
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update 乐观锁更新可变字段
func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	oldVersion := user.Version
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ? AND version = ?", user.UserID, oldVersion).
		Updates(map[string]interface{}{
			"name":                 user.Name,
			"email":                user.Email,
			"phone":                user.Phone,
			"password_hash":        user.PasswordHash,
			"role":                 user.Role,
			"avatar_url":           user.AvatarURL,
			"language":             user.Language,
			"notify_email":         user.NotifyEmail,
			"subject":              user.Subject,
			"class_id":             user.ClassID,
			"parent_id":            user.ParentID,
			"is_active":            user.IsActive,
			"must_change_password": user.MustChangePassword,
			"updated_by":           user.UpdatedBy,
			"updated_at":           gorm.Expr("NOW()"),
			"version":              oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	user.Version = oldVersion + 1
	return nil
}

func (r *userRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *userRepo) List(ctx context.Context, filter UserFilter, offset, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	db := r.db.WithContext(ctx).Model(&model.User{})
	if filter.Role != "" {
		db = db.Where("role = ?", filter.Role)
	}
	if filter.ClassID != "" {
		db = db.Where("class_id = ?", filter.ClassID)
	}
	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		db = db.Where("(name ILIKE ? OR email ILIKE ? OR phone ILIKE ?)", like, like, like)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Preload("Class").
		Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepo) ListStudentsByClass(ctx context.Context, classID string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND role = ?", classID, model.RoleStudent).
		Order("name ASC").
		Find(&users).Error
	return users, err
}

func (r *userRepo) ListChildren(ctx context.Context, parentID string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("parent_id = ? AND role = ?", parentID, model.RoleStudent).
		Order("name ASC").
		Find(&users).Error
	return users, err
}

func (r *userRepo) CountByRole(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Role  string
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Role] = row.Count
	}
	return out, nil
}

func (r *userRepo) CountStudentsByClasses(ctx context.Context, classIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(classIDs))
	if len(classIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ClassID string
		Count   int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Select("class_id, COUNT(*) AS count").
		Where("class_id IN ? AND role = ?", classIDs, model.RoleStudent).
		Group("class_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ClassID] = row.Count
	}
	return out, nil
}
