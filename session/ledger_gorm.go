package session

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"TMIFACE/models"
)

// DBLedger is the gorm-backed attendance ledger.
type DBLedger struct {
	DB *gorm.DB
}

func (l *DBLedger) InsertMark(label, emplacement string, ts time.Time) error {
	var member models.Member
	if err := l.DB.Where("username = ?", label).First(&member).Error; err != nil {
		return fmt.Errorf("member lookup for %q: %w", label, err)
	}
	row := models.Attendance{
		MemberId:    member.Id,
		Emplacement: emplacement,
		Timestamp:   ts,
	}
	return l.DB.Create(&row).Error
}

func (l *DBLedger) EntriesBetween(start, end time.Time) ([]LedgerEntry, error) {
	var out []LedgerEntry
	err := l.DB.Model(&models.Attendance{}).
		Select("members.username AS label, attendance.emplacement, attendance.timestamp").
		Joins("JOIN members ON members.id = attendance.member_id").
		Where("attendance.timestamp >= ? AND attendance.timestamp < ?", start, end).
		Order("attendance.timestamp ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ Ledger = (*DBLedger)(nil)
