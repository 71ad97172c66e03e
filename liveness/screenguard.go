package liveness

import (
	"image"
	"math"
)

// Screen replays betray themselves through long rectilinear edges: bezels,
// window borders, moiré banding. The guard extracts line segments from the
// crop and flags it when three or more long, (near-)axis-aligned segments
// show up. Tuned to be conservative, a real face in front of a door frame
// rarely yields three qualifying lines inside the face crop.

const (
	edgeLowThreshold  = 80
	edgeHighThreshold = 180
	houghVotes        = 80
	houghMaxGap       = 5
	// Segments are extracted at >= 60% of the shorter crop side and
	// qualify for the verdict at >= 40%.
	extractLineFrac = 0.6
	qualifyLineFrac = 0.4
	screenLineCount = 3
)

type segment struct {
	x1, y1, x2, y2 int
}

func screenGuard(patch *image.RGBA) bool {
	w := patch.Bounds().Dx()
	h := patch.Bounds().Dy()
	if w < 8 || h < 8 {
		return false
	}
	minDim := w
	if h < minDim {
		minDim = h
	}

	gray := grayscale(patch)
	blurred := gaussianBlur(gray, w, h)
	edges := detectEdges(blurred, w, h)
	segments := lineSegments(edges, w, h, int(float64(minDim)*extractLineFrac))

	count := 0
	for _, s := range segments {
		dx := abs(s.x2 - s.x1)
		dy := abs(s.y2 - s.y1)
		length := math.Hypot(float64(dx), float64(dy))
		if length < float64(minDim)*qualifyLineFrac {
			continue
		}
		if dx == 0 || dy == 0 {
			count++
			continue
		}
		slope := float64(dy) / (float64(dx) + 1e-6)
		if slope < 0.1 || slope > 10.0 {
			count++
		}
	}
	return count >= screenLineCount
}

func grayscale(img *image.RGBA) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r := float64(img.Pix[i])
			g := float64(img.Pix[i+1])
			bl := float64(img.Pix[i+2])
			out[y*w+x] = 0.299*r + 0.587*g + 0.114*bl
		}
	}
	return out
}

// 5x5 Gaussian, separable kernel 1-4-6-4-1.
func gaussianBlur(src []float64, w, h int) []float64 {
	kernel := [5]float64{1, 4, 6, 4, 1}
	const norm = 16.0

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k := -2; k <= 2; k++ {
				xx := clampInt(x+k, 0, w-1)
				sum += src[y*w+xx] * kernel[k+2]
			}
			tmp[y*w+x] = sum / norm
		}
	}
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k := -2; k <= 2; k++ {
				yy := clampInt(y+k, 0, h-1)
				sum += tmp[yy*w+x] * kernel[k+2]
			}
			out[y*w+x] = sum / norm
		}
	}
	return out
}

// detectEdges builds a binary edge map from Sobel gradients with hysteresis:
// strong pixels pass outright, weak pixels pass next to a strong one.
// Gradients at the border use clamped neighbors so a line running the full
// width of the crop keeps all its pixels.
func detectEdges(src []float64, w, h int) []bool {
	at := func(x, y int) float64 {
		return src[clampInt(y, 0, h-1)*w+clampInt(x, 0, w-1)]
	}

	mag := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) +
				-2*at(x-1, y) + 2*at(x+1, y) +
				-at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			mag[y*w+x] = math.Abs(gx) + math.Abs(gy)
		}
	}

	strong := make([]bool, w*h)
	for i, m := range mag {
		strong[i] = m >= edgeHighThreshold
	}

	edges := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if strong[i] {
				edges[i] = true
				continue
			}
			if mag[i] < edgeLowThreshold {
				continue
			}
		neighbors:
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					if strong[ny*w+nx] {
						edges[i] = true
						break neighbors
					}
				}
			}
		}
	}
	return edges
}

// lineSegments is a probabilistic Hough transform: edge pixels vote into a
// (theta, rho) accumulator; when a bin crosses the vote threshold the
// segment through the current pixel is traced along that orientation,
// tolerating gaps up to houghMaxGap, and its pixels are consumed.
func lineSegments(edges []bool, w, h, minLen int) []segment {
	const nTheta = 180
	var sinT, cosT [nTheta]float64
	for t := 0; t < nTheta; t++ {
		rad := float64(t) * math.Pi / 180
		sinT[t] = math.Sin(rad)
		cosT[t] = math.Cos(rad)
	}

	diag := int(math.Ceil(math.Hypot(float64(w), float64(h))))
	nRho := 2*diag + 1
	acc := make([]int, nTheta*nRho)

	var segments []segment
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !edges[y*w+x] {
				continue
			}
			for t := 0; t < nTheta; t++ {
				rho := int(math.Round(float64(x)*cosT[t]+float64(y)*sinT[t])) + diag
				idx := t*nRho + rho
				acc[idx]++
				if acc[idx] != houghVotes {
					continue
				}
				// Direction along the line for normal angle theta.
				dx, dy := -sinT[t], cosT[t]
				seg, ok := traceSegment(edges, w, h, x, y, dx, dy, minLen)
				if ok {
					segments = append(segments, seg)
				}
				if !edges[y*w+x] {
					// The pixel was consumed by the segment; stop voting it.
					break
				}
			}
		}
	}
	return segments
}

// traceSegment walks both ways from (x, y) along (dx, dy) collecting the
// contiguous run of edge pixels, then erases it so one physical line does
// not produce a pile of overlapping segments.
func traceSegment(edges []bool, w, h, x, y int, dx, dy float64, minLen int) (segment, bool) {
	end1x, end1y := walk(edges, w, h, x, y, dx, dy)
	end2x, end2y := walk(edges, w, h, x, y, -dx, -dy)

	length := math.Hypot(float64(end1x-end2x), float64(end1y-end2y))
	if length < float64(minLen) {
		return segment{}, false
	}

	erase(edges, w, h, end2x, end2y, dx, dy, int(length))
	return segment{x1: end2x, y1: end2y, x2: end1x, y2: end1y}, true
}

func walk(edges []bool, w, h, x, y int, dx, dy float64) (int, int) {
	lastX, lastY := x, y
	gap := 0
	for step := 1; ; step++ {
		px := x + int(math.Round(float64(step)*dx))
		py := y + int(math.Round(float64(step)*dy))
		if px < 0 || px >= w || py < 0 || py >= h {
			break
		}
		if edges[py*w+px] {
			lastX, lastY = px, py
			gap = 0
		} else {
			gap++
			if gap > houghMaxGap {
				break
			}
		}
	}
	return lastX, lastY
}

func erase(edges []bool, w, h, x, y int, dx, dy float64, steps int) {
	for step := 0; step <= steps+houghMaxGap; step++ {
		px := x + int(math.Round(float64(step)*dx))
		py := y + int(math.Round(float64(step)*dy))
		if px < 0 || px >= w || py < 0 || py >= h {
			continue
		}
		// Clear a 3-wide band, edge lines are usually a couple pixels thick.
		for ox := -1; ox <= 1; ox++ {
			for oy := -1; oy <= 1; oy++ {
				qx, qy := px+ox, py+oy
				if qx >= 0 && qx < w && qy >= 0 && qy < h {
					edges[qy*w+qx] = false
				}
			}
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
