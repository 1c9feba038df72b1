package dto

// ── 消息模块 DTO ──

// SendMessageRequest 发送消息
type SendMessageRequest struct {
	RecipientID string `json:"recipient_id" binding:"required,uuid"`
	Subject     string `json:"subject"      binding:"omitempty,max=200"`
	Body        string `json:"body"         binding:"required,max=5000"`
}

// MessageListRequest 消息列表
type MessageListRequest struct {
	PaginationRequest
	UnreadOnly bool `form:"unread_only"`
}

// MessageResponse 消息
type MessageResponse struct {
	ID            string `json:"id"`
	SenderID      string `json:"sender_id"`
	SenderName    string `json:"sender_name,omitempty"`
	SenderRole    string `json:"sender_role,omitempty"`
	RecipientID   string `json:"recipient_id"`
	RecipientName string `json:"recipient_name,omitempty"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	IsRead        bool   `json:"is_read"`
	ReadAt        string `json:"read_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// UnreadCountResponse 未读数
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}
