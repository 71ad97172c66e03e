package models

import "time"

// Member is an enrolled person. The face image lives on disk keyed by
// username; this row carries everything else.
type Member struct {
	Id        int64     `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:191" json:"username"`
	Voice     string    `json:"voice"`
	IsAdmin   bool      `json:"is_admin"`
	Profile   string    `json:"profile"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Derived counters filled by the presence tracker, never persisted.
	AttendanceCount int `gorm:"-" json:"attendance_count"`
	AbsenceCount    int `gorm:"-" json:"absence_count"`
	NotSeen         int `gorm:"-" json:"not_seen"`
}

func (Member) TableName() string {
	return "members"
}
