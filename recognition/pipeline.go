package recognition

import (
	"fmt"
	"image"

	"TMIFACE/faces"
	"TMIFACE/liveness"
	"TMIFACE/session"
)

type Outcome int

const (
	// OutcomeNoFace: the detector found nothing in the frame.
	OutcomeNoFace Outcome = iota
	// OutcomeNoMatch: faces were found but none resolved to an identity.
	OutcomeNoMatch
	// OutcomeSpoof: every detected face was rejected by the liveness gate.
	OutcomeSpoof
	// OutcomeLocationMismatch: a matched identity tried to mark a different
	// emplacement than today's locked one; the whole call is rejected so
	// the caller can correct and retry.
	OutcomeLocationMismatch
	// OutcomeMatched: at least one identity resolved; see the result sets.
	OutcomeMatched
)

// Result is the aggregated outcome of one frame.
type Result struct {
	Outcome           Outcome
	Matches           []string
	NewlyMarked       []string
	AlreadyMarked     []string
	LockedEmplacement string // set on OutcomeLocationMismatch
}

// Pipeline wires the engine together for a single frame. Errors are
// reserved for infrastructure failures (detector unreachable, ledger write
// failed); every expected condition is an Outcome.
type Pipeline struct {
	Detector Detector
	Store    *faces.Store
	Gate     *liveness.Gate
	Session  *session.Session

	// Zero values fall back to the package defaults.
	MatchThreshold    float64
	LivenessThreshold float64
	UseScreenGuard    bool
}

// Recognize processes every face in the frame independently: gate (when
// requested), match against the current snapshot, then attempt the mark
// transition for the requested emplacement.
func (p *Pipeline) Recognize(frame image.Image, emplacement string, requireLiveness bool) (Result, error) {
	dets, err := p.Detector.Detect(frame)
	if err != nil {
		return Result{}, fmt.Errorf("detect: %w", err)
	}
	if len(dets) == 0 {
		return Result{Outcome: OutcomeNoFace}, nil
	}

	snapshot := p.Store.Snapshot()
	seen := make(map[string]bool)
	var res Result
	livenessPassed := 0

	for _, f := range dets {
		if requireLiveness {
			box := f.Box
			verdict := p.Gate.Evaluate(frame, &box, p.UseScreenGuard, p.LivenessThreshold)
			if !verdict.Accepted {
				continue
			}
		}
		livenessPassed++

		label, _ := faces.Match(snapshot, f.Embedding, p.MatchThreshold)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		res.Matches = append(res.Matches, label)

		status, err := p.Session.Mark(label, emplacement)
		if err != nil {
			return Result{}, err
		}
		switch status.Kind {
		case session.MarkNew:
			res.NewlyMarked = append(res.NewlyMarked, label)
		case session.MarkAlready:
			res.AlreadyMarked = append(res.AlreadyMarked, label)
		case session.MarkLocationMismatch:
			return Result{
				Outcome:           OutcomeLocationMismatch,
				LockedEmplacement: status.Locked,
			}, nil
		}
	}

	switch {
	case len(res.Matches) > 0:
		res.Outcome = OutcomeMatched
	case requireLiveness && livenessPassed == 0:
		res.Outcome = OutcomeSpoof
	default:
		res.Outcome = OutcomeNoMatch
	}
	return res, nil
}
