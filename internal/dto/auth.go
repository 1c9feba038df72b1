package dto

// ── 认证模块 DTO ──

// LoginRequest 登录请求
type LoginRequest struct {
	Email      string `json:"email"    binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// RegisterRequest 自助注册请求（仅学生与家长）
type RegisterRequest struct {
	Name      string `json:"name"       binding:"required,min=2,max=50"`
	Email     string `json:"email"      binding:"required,email"`
	Phone     string `json:"phone"      binding:"omitempty,phone"`
	Password  string `json:"password"   binding:"required,min=8,max=64"`
	Role      string `json:"role"       binding:"required,oneof=student parent"`
	ClassCode string `json:"class_code" binding:"omitempty,classcode"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"` // 非 Cookie 模式时使用
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=64"`
}

// TokenResponse Token 对响应
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	ExpiresIn    int          `json:"expires_in"` // Access Token 有效期（秒）
	User         UserResponse `json:"user"`
}
