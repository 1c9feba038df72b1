package dto

// ── 班级与班级码 DTO ──

// CreateClassRequest 创建班级
type CreateClassRequest struct {
	Name        string `json:"name"        binding:"required,min=1,max=50"`
	Description string `json:"description" binding:"omitempty,max=500"`
}

// UpdateClassRequest 更新班级
type UpdateClassRequest struct {
	Name        *string `json:"name"        binding:"omitempty,min=1,max=50"`
	Description *string `json:"description" binding:"omitempty,max=500"`
}

// ClassResponse 班级信息
type ClassResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	TeacherID    string `json:"teacher_id"`
	TeacherName  string `json:"teacher_name,omitempty"`
	Description  string `json:"description"`
	StudentCount int64  `json:"student_count"`
	CreatedAt    string `json:"created_at"`
}

// GenerateClassCodeRequest 生成班级码
type GenerateClassCodeRequest struct {
	ExpiresDays int `json:"expires_days" binding:"omitempty,min=0,max=365"` // 0 表示不过期
}

// ClassCodeResponse 班级码
type ClassCodeResponse struct {
	Code      string `json:"code"`
	ClassID   string `json:"class_id"`
	ClassName string `json:"class_name"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// ClassCodeValidateResponse 班级码校验结果
type ClassCodeValidateResponse struct {
	Valid     bool   `json:"valid"`
	ClassName string `json:"class_name,omitempty"`
}

// JoinClassRequest 学生通过班级码加入班级
type JoinClassRequest struct {
	Code string `json:"code" binding:"required,classcode"`
}
