package models

import "time"

// UserDevice is a registered push target. Tokens are Expo push tokens from
// the mobile app; unregistering flips is_active instead of deleting so a
// re-login on the same phone reuses the row.
type UserDevice struct {
	Id            string    `gorm:"primaryKey;size:36" json:"id"`
	MemberId      int64     `gorm:"index" json:"member_id"`
	ExpoPushToken string    `gorm:"uniqueIndex;size:191" json:"expo_push_token"`
	DeviceType    string    `json:"device_type"`
	DeviceName    string    `json:"device_name"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UserDevice) TableName() string {
	return "user_devices"
}
