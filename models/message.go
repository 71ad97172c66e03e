package models

import "time"

// Message is an admin announcement shown in the app and pushed to devices.
type Message struct {
	Id        int64     `gorm:"primaryKey" json:"id"`
	UserId    int64     `gorm:"index" json:"user_id"`
	Message   string    `gorm:"type:text" json:"message"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
