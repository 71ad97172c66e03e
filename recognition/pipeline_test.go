package recognition

import (
	"errors"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TMIFACE/faces"
	"TMIFACE/liveness"
	"TMIFACE/session"
)

type fakeDetector struct {
	faces []Face
	err   error
}

func (d fakeDetector) Detect(frame image.Image) ([]Face, error) {
	return d.faces, d.err
}

type fakeScorer struct {
	real float64
}

func (s fakeScorer) Score(patch *image.RGBA) (float64, float64, error) {
	return s.real, 2 - s.real, nil
}

type memLedger struct {
	rows    []session.LedgerEntry
	failing bool
}

func (l *memLedger) InsertMark(label, emplacement string, ts time.Time) error {
	if l.failing {
		return errors.New("db down")
	}
	l.rows = append(l.rows, session.LedgerEntry{Label: label, Emplacement: emplacement, Timestamp: ts})
	return nil
}

func (l *memLedger) EntriesBetween(start, end time.Time) ([]session.LedgerEntry, error) {
	var out []session.LedgerEntry
	for _, r := range l.rows {
		if !r.Timestamp.Before(start) && r.Timestamp.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 160, 160))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func faceAt(embedding []float64) Face {
	return Face{Box: image.Rect(40, 40, 120, 120), Embedding: embedding, Confidence: 0.99}
}

func newTestPipeline(t *testing.T, detector Detector, scoreReal float64, ledger session.Ledger) (*Pipeline, *faces.Store) {
	t.Helper()
	store, err := faces.NewStore(
		filepath.Join(t.TempDir(), "img"),
		filepath.Join(t.TempDir(), "emb"),
		nil,
	)
	require.NoError(t, err)
	require.NoError(t, store.Put("alice", []float64{1, 0, 0}))
	require.NoError(t, store.Put("bob", []float64{0, 1, 0}))

	sess := session.New(ledger, nil, time.FixedZone("ORG", 3*3600))
	return &Pipeline{
		Detector: detector,
		Store:    store,
		Gate:     liveness.NewGate(fakeScorer{real: scoreReal}),
		Session:  sess,
	}, store
}

func TestRecognizeNoFace(t *testing.T) {
	pipe, _ := newTestPipeline(t, fakeDetector{}, 1.8, &memLedger{})

	res, err := pipe.Recognize(testFrame(), "Hall A", false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoFace, res.Outcome)
	assert.Empty(t, res.Matches)
}

func TestRecognizeNoMatch(t *testing.T) {
	det := fakeDetector{faces: []Face{faceAt([]float64{0, 0, 1})}}
	pipe, _ := newTestPipeline(t, det, 1.8, &memLedger{})

	res, err := pipe.Recognize(testFrame(), "Hall A", false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
}

func TestRecognizeSpoof(t *testing.T) {
	// A known face, but the liveness gate rejects every detection.
	det := fakeDetector{faces: []Face{faceAt([]float64{1, 0, 0})}}
	ledger := &memLedger{}
	pipe, _ := newTestPipeline(t, det, 0.1, ledger)

	res, err := pipe.Recognize(testFrame(), "Hall A", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSpoof, res.Outcome)
	assert.Empty(t, ledger.rows)

	// Same frame with liveness off goes straight through.
	res, err = pipe.Recognize(testFrame(), "Hall A", false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, res.Outcome)
}

func TestRecognizeMarksThenReportsAlreadyMarked(t *testing.T) {
	det := fakeDetector{faces: []Face{
		faceAt([]float64{1, 0, 0}),
		faceAt([]float64{0, 1, 0}),
	}}
	ledger := &memLedger{}
	pipe, _ := newTestPipeline(t, det, 1.8, ledger)

	res, err := pipe.Recognize(testFrame(), "Hall A", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.ElementsMatch(t, []string{"alice", "bob"}, res.Matches)
	assert.ElementsMatch(t, []string{"alice", "bob"}, res.NewlyMarked)
	assert.Empty(t, res.AlreadyMarked)
	assert.Len(t, ledger.rows, 2)

	res, err = pipe.Recognize(testFrame(), "Hall A", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Empty(t, res.NewlyMarked)
	assert.ElementsMatch(t, []string{"alice", "bob"}, res.AlreadyMarked)
	assert.Len(t, ledger.rows, 2)
}

func TestRecognizeDeduplicatesSameIdentity(t *testing.T) {
	// Two detections resolving to the same label mark once.
	det := fakeDetector{faces: []Face{
		faceAt([]float64{1, 0, 0}),
		faceAt([]float64{0.99, 0.01, 0}),
	}}
	ledger := &memLedger{}
	pipe, _ := newTestPipeline(t, det, 1.8, ledger)

	res, err := pipe.Recognize(testFrame(), "Hall A", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, res.Matches)
	assert.Len(t, ledger.rows, 1)
}

func TestRecognizeLocationMismatchAbortsCall(t *testing.T) {
	det := fakeDetector{faces: []Face{
		faceAt([]float64{1, 0, 0}),
		faceAt([]float64{0, 1, 0}),
	}}
	ledger := &memLedger{}
	pipe, _ := newTestPipeline(t, det, 1.8, ledger)

	// Lock the day elsewhere first.
	_, err := pipe.Session.Mark("carol", "Hall  B")
	require.NoError(t, err)

	res, err := pipe.Recognize(testFrame(), "Hall A", false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLocationMismatch, res.Outcome)
	assert.Equal(t, "hall b", res.LockedEmplacement)
	// Nobody from this frame was marked, not even faces after the first.
	assert.Len(t, ledger.rows, 1)
	assert.Empty(t, res.NewlyMarked)
}

func TestRecognizeDetectorFailure(t *testing.T) {
	pipe, _ := newTestPipeline(t, fakeDetector{err: errors.New("sidecar down")}, 1.8, &memLedger{})

	_, err := pipe.Recognize(testFrame(), "Hall A", false)
	assert.Error(t, err)
}

func TestRecognizeLedgerFailure(t *testing.T) {
	det := fakeDetector{faces: []Face{faceAt([]float64{1, 0, 0})}}
	ledger := &memLedger{failing: true}
	pipe, _ := newTestPipeline(t, det, 1.8, ledger)

	_, err := pipe.Recognize(testFrame(), "Hall A", false)
	assert.Error(t, err)
}
