package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	mu      sync.Mutex
	rows    []LedgerEntry
	failing bool
}

func (l *fakeLedger) InsertMark(label, emplacement string, ts time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing {
		return errors.New("db down")
	}
	l.rows = append(l.rows, LedgerEntry{Label: label, Emplacement: emplacement, Timestamp: ts})
	return nil
}

func (l *fakeLedger) EntriesBetween(start, end time.Time) ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing {
		return nil, errors.New("db down")
	}
	var out []LedgerEntry
	for _, r := range l.rows {
		if !r.Timestamp.Before(start) && r.Timestamp.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) Broadcast(title, body string, data map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, body)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func newTestSession(ledger Ledger, notifier Notifier) *Session {
	loc := time.FixedZone("ORG", 3*3600)
	s := New(ledger, notifier, loc)
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, loc)
	s.now = func() time.Time { return base }
	return s
}

func TestFirstMarkLocksAndBroadcastsOnce(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	s := newTestSession(ledger, notifier)

	st, err := s.Mark("alice", "Hall A")
	require.NoError(t, err)
	assert.Equal(t, MarkNew, st.Kind)
	assert.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.calls[0], "Hall A")

	emp, err := s.Emplacement()
	require.NoError(t, err)
	assert.Equal(t, "Hall A", emp)

	// Subsequent marks at the same place never re-broadcast.
	st, err = s.Mark("bob", "Hall A")
	require.NoError(t, err)
	assert.Equal(t, MarkNew, st.Kind)
	assert.Equal(t, 1, notifier.count())
}

func TestRemarkIsIdempotent(t *testing.T) {
	ledger := &fakeLedger{}
	s := newTestSession(ledger, &fakeNotifier{})

	_, err := s.Mark("alice", "Hall A")
	require.NoError(t, err)

	st, err := s.Mark("alice", "Hall A")
	require.NoError(t, err)
	assert.Equal(t, MarkAlready, st.Kind)
	assert.Equal(t, 1, ledger.count())

	marked, err := s.IsMarked("alice")
	require.NoError(t, err)
	assert.True(t, marked)
}

func TestLocationMismatchEchoesCanonicalLock(t *testing.T) {
	ledger := &fakeLedger{}
	s := newTestSession(ledger, &fakeNotifier{})

	_, err := s.Mark("alice", "Hall  A")
	require.NoError(t, err)

	// Case and whitespace variants of the locked value are the same place.
	st, err := s.Mark("bob", "hall a")
	require.NoError(t, err)
	assert.Equal(t, MarkNew, st.Kind)

	st, err = s.Mark("carol", "Hall B")
	require.NoError(t, err)
	assert.Equal(t, MarkLocationMismatch, st.Kind)
	assert.Equal(t, "hall a", st.Locked)
	assert.Equal(t, 2, ledger.count())

	marked, err := s.IsMarked("carol")
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestLedgerFailureLeavesStateRetryable(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	s := newTestSession(ledger, notifier)
	require.NoError(t, s.Reload())

	ledger.failing = true
	_, err := s.Mark("alice", "Hall A")
	assert.Error(t, err)
	assert.Equal(t, 0, notifier.count())

	emp, err := s.Emplacement()
	require.NoError(t, err)
	assert.Equal(t, "", emp)

	// The failed attempt advanced nothing; a retry marks normally.
	ledger.failing = false
	st, err := s.Mark("alice", "Hall A")
	require.NoError(t, err)
	assert.Equal(t, MarkNew, st.Kind)
	assert.Equal(t, 1, ledger.count())
	assert.Equal(t, 1, notifier.count())
}

func TestDayRolloverResetsLockAndMarks(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	s := newTestSession(ledger, notifier)

	_, err := s.Mark("alice", "Hall A")
	require.NoError(t, err)

	// Advance past org-local midnight.
	next := s.now().Add(24 * time.Hour)
	s.now = func() time.Time { return next }

	marked, err := s.IsMarked("alice")
	require.NoError(t, err)
	assert.False(t, marked)

	emp, err := s.Emplacement()
	require.NoError(t, err)
	assert.Equal(t, "", emp)

	// The new day locks independently and broadcasts again.
	st, err := s.Mark("alice", "Hall B")
	require.NoError(t, err)
	assert.Equal(t, MarkNew, st.Kind)
	assert.Equal(t, 2, notifier.count())
}

func TestReloadSeedsFromLedger(t *testing.T) {
	loc := time.FixedZone("ORG", 3*3600)
	ledger := &fakeLedger{rows: []LedgerEntry{
		{Label: "alice", Emplacement: "Hall A", Timestamp: time.Date(2026, 8, 28, 8, 0, 0, 0, loc)},
		{Label: "bob", Emplacement: "Hall A", Timestamp: time.Date(2026, 8, 28, 9, 0, 0, 0, loc)},
		// Yesterday's row must not bleed into today.
		{Label: "carol", Emplacement: "Hall Z", Timestamp: time.Date(2026, 8, 27, 9, 0, 0, 0, loc)},
	}}
	s := newTestSession(ledger, &fakeNotifier{})
	require.NoError(t, s.Reload())

	emp, err := s.Emplacement()
	require.NoError(t, err)
	assert.Equal(t, "Hall A", emp)

	for label, want := range map[string]bool{"alice": true, "bob": true, "carol": false} {
		got, err := s.IsMarked(label)
		require.NoError(t, err)
		assert.Equal(t, want, got, label)
	}
}

func TestConcurrentMarksLockOnceAndBroadcastOnce(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	s := newTestSession(ledger, notifier)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Mark(fmt.Sprintf("member-%02d", i), "Hall A")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, ledger.count())
	assert.Equal(t, 1, notifier.count())

	emp, err := s.Emplacement()
	require.NoError(t, err)
	assert.Equal(t, "Hall A", emp)
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "hall a", Canonical("  Hall\tA "))
	assert.Equal(t, "hall a", Canonical("HALL  A"))
	assert.Equal(t, "", Canonical("   "))
}
