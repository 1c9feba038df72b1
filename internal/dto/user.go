package dto

// ── 用户模块 DTO ──

// UserResponse 用户信息响应（脱敏）
type UserResponse struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	Phone              string  `json:"phone"`
	Role               string  `json:"role"`
	AvatarURL          string  `json:"avatar_url"`
	Language           string  `json:"language"`
	NotifyEmail        bool    `json:"notify_email"`
	Subject            string  `json:"subject,omitempty"`
	ClassID            *string `json:"class_id,omitempty"`
	ClassName          string  `json:"class_name,omitempty"`
	ParentID           *string `json:"parent_id,omitempty"`
	IsActive           bool    `json:"is_active"`
	MustChangePassword bool    `json:"must_change_password"`
	CreatedAt          string  `json:"created_at"`
}

// UpdateProfileRequest 修改个人资料
type UpdateProfileRequest struct {
	Name        *string `json:"name"         binding:"omitempty,min=2,max=50"`
	Phone       *string `json:"phone"        binding:"omitempty,phone"`
	Language    *string `json:"language"     binding:"omitempty,oneof=ar en zh"`
	NotifyEmail *bool   `json:"notify_email"`
}

// AvatarResponse 头像上传响应
type AvatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}

// UserListRequest 用户列表查询参数
type UserListRequest struct {
	PaginationRequest
	Role    string `form:"role"     binding:"omitempty,oneof=super_admin teacher parent student"`
	Keyword string `form:"keyword"  binding:"omitempty,max=50"`
	ClassID string `form:"class_id" binding:"omitempty,uuid"`
}

// CreateUserRequest 管理员创建用户
type CreateUserRequest struct {
	Name     string  `json:"name"     binding:"required,min=2,max=50"`
	Email    string  `json:"email"    binding:"required,email"`
	Phone    string  `json:"phone"    binding:"omitempty,phone"`
	Role     string  `json:"role"     binding:"required,oneof=super_admin teacher parent student"`
	Subject  string  `json:"subject"  binding:"omitempty,max=50"`
	ClassID  *string `json:"class_id" binding:"omitempty,uuid"`
	Password string  `json:"password" binding:"omitempty,min=8,max=64"` // 为空时生成临时密码
}

// CreateUserResponse 创建用户响应
type CreateUserResponse struct {
	User         UserResponse `json:"user"`
	TempPassword string       `json:"temp_password,omitempty"`
}

// UpdateUserRequest 管理员更新用户
type UpdateUserRequest struct {
	Name    *string `json:"name"     binding:"omitempty,min=2,max=50"`
	Email   *string `json:"email"    binding:"omitempty,email"`
	Phone   *string `json:"phone"    binding:"omitempty,phone"`
	Subject *string `json:"subject"  binding:"omitempty,max=50"`
	ClassID *string `json:"class_id" binding:"omitempty,uuid"`
}

// ResetPasswordResponse 重置密码响应
type ResetPasswordResponse struct {
	TempPassword string `json:"temp_password"`
}

// LinkChildRequest 家长关联学生
type LinkChildRequest struct {
	StudentEmail string `json:"student_email" binding:"required,email"`
}

// SetActiveRequest 启用/停用账号
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}
