// Package session owns the per-day attendance state: which emplacement is
// locked in for today and who has already been marked. All mutations go
// through one mutex so concurrent recognition calls observe a consistent
// "is today locked, and to what" view.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// LedgerEntry is one attendance row as the session needs to see it.
type LedgerEntry struct {
	Label       string    `gorm:"column:label"`
	Emplacement string    `gorm:"column:emplacement"`
	Timestamp   time.Time `gorm:"column:timestamp"`
}

// Ledger is the durable attendance store. InsertMark must be durable before
// it returns: the in-memory marked set only advances after a successful
// insert, so a crash can never produce a phantom "already marked".
type Ledger interface {
	InsertMark(label, emplacement string, ts time.Time) error
	EntriesBetween(start, end time.Time) ([]LedgerEntry, error)
}

// Notifier receives the one-shot broadcast when the day's emplacement locks
// in. Implementations must be fire-and-forget; a slow or failing sink must
// never delay or fail a mark.
type Notifier interface {
	Broadcast(title, body string, data map[string]string)
}

type MarkKind int

const (
	// MarkNew: first mark of this identity today, ledger row written.
	MarkNew MarkKind = iota
	// MarkAlready: identity was already marked today, nothing written.
	MarkAlready
	// MarkLocationMismatch: requested emplacement differs from the locked
	// one; nothing written, Locked carries the value for client display.
	MarkLocationMismatch
)

type MarkStatus struct {
	Kind   MarkKind
	Locked string
}

// Session tracks one organization's current attendance day.
type Session struct {
	mu       sync.Mutex
	ledger   Ledger
	notifier Notifier
	loc      *time.Location
	now      func() time.Time

	day         string // org-local day key currently loaded, "2006-01-02"
	emplacement string // locked value as first submitted, "" while unlocked
	marked      map[string]bool
}

func New(ledger Ledger, notifier Notifier, loc *time.Location) *Session {
	return &Session{
		ledger:   ledger,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
	}
}

// today is the single place that resolves the current organization-local
// day and its time window.
func (s *Session) today() (string, time.Time, time.Time) {
	now := s.now().In(s.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return start.Format("2006-01-02"), start, start.Add(24 * time.Hour)
}

// Canonical folds case and whitespace so "Hall  A" and "hall a" name the
// same emplacement.
func Canonical(emplacement string) string {
	return strings.ToLower(strings.Join(strings.Fields(emplacement), " "))
}

// ensureDay re-derives state from the ledger when the loaded day is not the
// current one. Caller holds s.mu.
func (s *Session) ensureDay() error {
	day, start, end := s.today()
	if day == s.day && s.marked != nil {
		return nil
	}

	entries, err := s.ledger.EntriesBetween(start, end)
	if err != nil {
		return fmt.Errorf("load today's attendance: %w", err)
	}

	marked := make(map[string]bool, len(entries))
	emplacement := ""
	for _, e := range entries {
		marked[e.Label] = true
		if emplacement == "" {
			emplacement = e.Emplacement
		}
	}

	s.day = day
	s.marked = marked
	s.emplacement = emplacement
	return nil
}

// Mark records attendance for an identity at the requested emplacement.
//
// The first accepted mark of the day locks the emplacement and fires the
// broadcast exactly once. While locked, a differing emplacement is rejected
// without any state change. Re-marking the same identity is a no-op
// classified MarkAlready. A ledger failure aborts with no state advanced
// and is safe to retry.
func (s *Session) Mark(label, emplacement string) (MarkStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDay(); err != nil {
		return MarkStatus{}, err
	}

	if s.emplacement != "" && Canonical(s.emplacement) != Canonical(emplacement) {
		return MarkStatus{Kind: MarkLocationMismatch, Locked: Canonical(s.emplacement)}, nil
	}

	if s.marked[label] {
		return MarkStatus{Kind: MarkAlready}, nil
	}

	if err := s.ledger.InsertMark(label, emplacement, s.now().In(s.loc)); err != nil {
		return MarkStatus{}, fmt.Errorf("attendance insert for %q: %w", label, err)
	}

	s.marked[label] = true
	if s.emplacement == "" {
		s.emplacement = emplacement
		if s.notifier != nil {
			s.notifier.Broadcast(
				"TMI",
				fmt.Sprintf("Vous pouvez effectuer votre présence au lieu %s", emplacement),
				map[string]string{"screen": "Présence"},
			)
		}
	}
	return MarkStatus{Kind: MarkNew}, nil
}

// Emplacement returns today's locked emplacement, "" while unlocked.
func (s *Session) Emplacement() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureDay(); err != nil {
		return "", err
	}
	return s.emplacement, nil
}

// IsMarked reports whether the identity has been marked today.
func (s *Session) IsMarked(label string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureDay(); err != nil {
		return false, err
	}
	return s.marked[label], nil
}

// Reload drops the cached day and re-derives it from the ledger. Used at
// startup, by the periodic refresh and after manual presence corrections.
func (s *Session) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.day = ""
	s.marked = nil
	return s.ensureDay()
}
