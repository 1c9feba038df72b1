package model

import "time"

// Message 站内消息表，对应 messages
type Message struct {
	MessageID   string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"message_id"`
	SenderID    string     `gorm:"type:uuid;not null"                             json:"sender_id"`
	RecipientID string     `gorm:"type:uuid;not null"                             json:"recipient_id"`
	Subject     string     `gorm:"type:varchar(200)"                              json:"subject,omitempty"`
	Body        string     `gorm:"type:text;not null"                             json:"body"`
	IsRead      bool       `gorm:"not null;default:false"                         json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	SoftDeleteModel

	// 关联
	Sender    *User `gorm:"foreignKey:SenderID;references:UserID"    json:"sender,omitempty"`
	Recipient *User `gorm:"foreignKey:RecipientID;references:UserID" json:"recipient,omitempty"`
}

// TableName 指定表名
func (Message) TableName() string { return "messages" }
