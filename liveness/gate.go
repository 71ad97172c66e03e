// Package liveness decides whether a face crop comes from a live person or
// from a replayed photo/screen before the match is trusted for attendance.
package liveness

import (
	"image"
	"log"

	xdraw "golang.org/x/image/draw"
)

// Scorer is the external anti-spoof model. It returns the raw (real, fake)
// channel outputs for a prepared patch; the real channel spans [0, 2].
type Scorer interface {
	Score(patch *image.RGBA) (real float64, fake float64, err error)
}

type Reason string

const (
	ReasonOK       Reason = "ok"
	ReasonScreen   Reason = "screen-detected"
	ReasonLowScore Reason = "low-score"
)

// Verdict is the per-face outcome of the gate.
type Verdict struct {
	Accepted   bool    `json:"accepted"`
	Confidence float64 `json:"confidence"`
	Reason     Reason  `json:"reason"`
}

const (
	// DefaultThreshold is the tuned decision cutoff on the [0,1] confidence.
	DefaultThreshold = 0.40
	// The scoring model expects 80x80 patches.
	inputSize = 80
	// Crop scale around the detected box, matching the model's training crop.
	cropScale = 4.0
)

type Gate struct {
	scorer Scorer
}

func NewGate(scorer Scorer) *Gate {
	return &Gate{scorer: scorer}
}

// Evaluate gates one face. The box is clamped to the frame; a nil box falls
// back to a centered square covering 60% of the shorter frame dimension.
// A screen-guard hit rejects regardless of the model score: a confident
// model on a screen replay is exactly the failure mode the guard exists for.
// Empty or unusable crops reject with confidence 0 rather than erroring.
func (g *Gate) Evaluate(frame image.Image, faceBox *image.Rectangle, useScreenGuard bool, threshold float64) Verdict {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if frame == nil {
		return Verdict{Reason: ReasonLowScore}
	}
	bounds := frame.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		return Verdict{Reason: ReasonLowScore}
	}

	var box image.Rectangle
	if faceBox == nil {
		box = centerSquare(bounds)
	} else {
		box = clampBox(*faceBox, bounds)
	}

	patch := cropPatch(frame, box)
	if patch == nil {
		return Verdict{Reason: ReasonLowScore}
	}

	screenDetected := useScreenGuard && screenGuard(patch)

	real, _, err := g.scorer.Score(patch)
	if err != nil {
		// Fail closed: an unreachable model must never admit a face.
		log.Printf("Warning: liveness scorer failed: %v", err)
		return Verdict{Reason: ReasonLowScore}
	}
	// The model's real channel spans [0,2]; halve it into a confidence.
	confidence := real / 2.0

	if screenDetected {
		return Verdict{Accepted: false, Confidence: 0.01, Reason: ReasonScreen}
	}
	if confidence >= threshold {
		return Verdict{Accepted: true, Confidence: confidence, Reason: ReasonOK}
	}
	return Verdict{Accepted: false, Confidence: confidence, Reason: ReasonLowScore}
}

// centerSquare is the fallback region when no detection box is supplied.
func centerSquare(bounds image.Rectangle) image.Rectangle {
	side := bounds.Dx()
	if bounds.Dy() < side {
		side = bounds.Dy()
	}
	side = side * 6 / 10
	x := bounds.Min.X + (bounds.Dx()-side)/2
	y := bounds.Min.Y + (bounds.Dy()-side)/2
	return image.Rect(x, y, x+side, y+side)
}

// clampBox forces the box inside the frame with at least 1x1 area.
func clampBox(box, bounds image.Rectangle) image.Rectangle {
	x := box.Min.X
	y := box.Min.Y
	w := box.Dx()
	h := box.Dy()

	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	if x > bounds.Max.X-1 {
		x = bounds.Max.X - 1
	}
	if y < bounds.Min.Y {
		y = bounds.Min.Y
	}
	if y > bounds.Max.Y-1 {
		y = bounds.Max.Y - 1
	}
	if w < 1 {
		w = 1
	}
	if w > bounds.Max.X-x {
		w = bounds.Max.X - x
	}
	if h < 1 {
		h = 1
	}
	if h > bounds.Max.Y-y {
		h = bounds.Max.Y - y
	}
	return image.Rect(x, y, x+w, y+h)
}

// cropPatch expands the box by cropScale around its center, clamps to the
// frame and resizes the region to the model input size.
func cropPatch(frame image.Image, box image.Rectangle) *image.RGBA {
	bounds := frame.Bounds()

	cx := float64(box.Min.X) + float64(box.Dx())/2
	cy := float64(box.Min.Y) + float64(box.Dy())/2
	w := float64(box.Dx()) * cropScale
	h := float64(box.Dy()) * cropScale

	src := image.Rect(
		int(cx-w/2),
		int(cy-h/2),
		int(cx+w/2),
		int(cy+h/2),
	).Intersect(bounds)
	if src.Dx() < 1 || src.Dy() < 1 {
		return nil
	}

	patch := image.NewRGBA(image.Rect(0, 0, inputSize, inputSize))
	xdraw.CatmullRom.Scale(patch, patch.Bounds(), frame, src, xdraw.Src, nil)
	return patch
}
