package models

import "time"

// Attendance is one append-only ledger row: this member was seen at this
// emplacement at this time. The per-day in-memory state is derived from
// these rows, never the other way around.
type Attendance struct {
	Id          int64     `gorm:"primaryKey" json:"id"`
	MemberId    int64     `gorm:"index" json:"member_id"`
	Emplacement string    `gorm:"size:191" json:"emplacement"`
	Timestamp   time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}

func (Attendance) TableName() string {
	return "attendance"
}
