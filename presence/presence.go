// Package presence maintains the derived per-member presence views: for
// every unique (emplacement, day) session, who was there and who was not.
// It is a read cache over the attendance ledger, rebuilt wholesale on
// refresh and never written to directly.
package presence

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"TMIFACE/models"
)

// Entry is one session row in a member's presence history.
type Entry struct {
	Emplacement  string    `json:"emplacement"`
	Timestamp    string    `json:"timestamp"` // formatted for display
	TimestampRaw time.Time `json:"timestamp_raw"`
	Date         string    `json:"date"`
	Attendance   string    `json:"attendance"` // "present" | "absent"
}

type Tracker struct {
	mu       sync.RWMutex
	db       *gorm.DB
	loc      *time.Location
	byMember map[int64][]Entry
	members  []models.Member
}

func NewTracker(db *gorm.DB, loc *time.Location) *Tracker {
	return &Tracker{
		db:       db,
		loc:      loc,
		byMember: make(map[int64][]Entry),
	}
}

type ledgerRow struct {
	MemberId    int64     `gorm:"column:member_id"`
	Emplacement string    `gorm:"column:emplacement"`
	Timestamp   time.Time `gorm:"column:timestamp"`
}

type sessionKey struct {
	emplacement string
	date        string
}

// Refresh rebuilds the whole cache from the ledger. A failure leaves the
// previous cache in place.
func (t *Tracker) Refresh() error {
	var rows []ledgerRow
	if err := t.db.Model(&models.Attendance{}).
		Select("member_id, emplacement, timestamp").
		Order("timestamp DESC").
		Scan(&rows).Error; err != nil {
		return fmt.Errorf("load attendance: %w", err)
	}

	var members []models.Member
	if err := t.db.Find(&members).Error; err != nil {
		return fmt.Errorf("load members: %w", err)
	}

	// Unique (emplacement, day) sessions, keeping the latest timestamp of
	// each so the display date is stable.
	sessions := make(map[sessionKey]time.Time)
	attended := make(map[int64]map[sessionKey]bool)
	lastSeen := make(map[int64]time.Time)

	for _, r := range rows {
		ts := r.Timestamp.In(t.loc)
		key := sessionKey{emplacement: r.Emplacement, date: ts.Format("2006-01-02")}
		if latest, ok := sessions[key]; !ok || ts.After(latest) {
			sessions[key] = ts
		}
		if attended[r.MemberId] == nil {
			attended[r.MemberId] = make(map[sessionKey]bool)
		}
		attended[r.MemberId][key] = true
		if ts.After(lastSeen[r.MemberId]) {
			lastSeen[r.MemberId] = ts
		}
	}

	byMember := make(map[int64][]Entry, len(members))
	for i := range members {
		m := &members[i]
		list := make([]Entry, 0, len(sessions))
		for key, latest := range sessions {
			status := "absent"
			if attended[m.Id][key] {
				status = "present"
			}
			list = append(list, Entry{
				Emplacement:  key.emplacement,
				Timestamp:    FormatDateMG(latest),
				TimestampRaw: latest,
				Date:         key.date,
				Attendance:   status,
			})
		}
		sort.Slice(list, func(a, b int) bool {
			return list[a].TimestampRaw.After(list[b].TimestampRaw)
		})
		byMember[m.Id] = list

		m.AttendanceCount = len(attended[m.Id])
		m.AbsenceCount = len(sessions) - m.AttendanceCount
		if seen, ok := lastSeen[m.Id]; ok {
			missed := 0
			lastDate := seen.Format("2006-01-02")
			for key := range sessions {
				if key.date > lastDate {
					missed++
				}
			}
			m.NotSeen = missed
		} else {
			m.NotSeen = len(sessions)
		}
	}

	t.mu.Lock()
	t.byMember = byMember
	t.members = members
	t.mu.Unlock()
	return nil
}

// ForMember returns the member's presence history, most recent first.
func (t *Tracker) ForMember(id int64) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byMember[id]
}

// Members returns all members with their derived counters, sorted by
// username.
func (t *Tracker) Members() []models.Member {
	t.mu.RLock()
	out := make([]models.Member, len(t.members))
	copy(out, t.members)
	t.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool {
		return strings.ToLower(out[a].Username) < strings.ToLower(out[b].Username)
	})
	return out
}

// Correct inserts a ledger row for a session the member was wrongly marked
// absent from. The session is addressed by its emplacement and displayed
// timestamp, which is what the admin screen has in hand.
func (t *Tracker) Correct(memberId int64, emplacement, displayedTimestamp string) (bool, error) {
	t.mu.RLock()
	var target *Entry
	for i, e := range t.byMember[memberId] {
		if e.Emplacement == emplacement && e.Timestamp == displayedTimestamp {
			target = &t.byMember[memberId][i]
			break
		}
	}
	t.mu.RUnlock()

	if target == nil {
		return false, nil
	}
	row := models.Attendance{
		MemberId:    memberId,
		Emplacement: emplacement,
		Timestamp:   target.TimestampRaw,
	}
	if err := t.db.Create(&row).Error; err != nil {
		return false, fmt.Errorf("presence correction: %w", err)
	}
	return true, nil
}

var malagasyDays = [7]string{
	"Alahady", "Alatsinainy", "Talata", "Alarobia", "Alakamisy", "Zoma", "Asabotsy",
}

var malagasyMonths = [12]string{
	"Janoary", "Febroary", "Martsa", "Aprily", "Mey", "Jona",
	"Jolay", "Aogositra", "Septambra", "Oktobra", "Novambra", "Desambra",
}

// FormatDateMG renders "EEEE d MMMM y" in Malagasy, matching the app's
// display locale.
func FormatDateMG(t time.Time) string {
	return fmt.Sprintf("%s %d %s %d",
		malagasyDays[t.Weekday()],
		t.Day(),
		malagasyMonths[t.Month()-1],
		t.Year(),
	)
}
