// Package recognition orchestrates one inbound frame end to end:
// detect, gate, match, mark.
package recognition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	"TMIFACE/faces"
)

// Face is one detection from the external model: box, raw embedding and
// detector confidence. Transient, consumed within a single pipeline call.
type Face struct {
	Box        image.Rectangle
	Embedding  []float64
	Confidence float64
}

// Detector is the external face detection/embedding model.
type Detector interface {
	Detect(frame image.Image) ([]Face, error)
}

// HTTPDetector calls the insightface inference sidecar.
type HTTPDetector struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDetector(baseURL string) *HTTPDetector {
	return &HTTPDetector{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *HTTPDetector) Detect(frame image.Image) ([]Face, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	resp, err := d.client.Post(d.baseURL+"/detect", "image/jpeg", &buf)
	if err != nil {
		return nil, fmt.Errorf("detector service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector service: status %d", resp.StatusCode)
	}

	var out struct {
		Faces []struct {
			BBox       [4]int    `json:"bbox"` // x, y, w, h
			Embedding  []float64 `json:"embedding"`
			Confidence float64   `json:"confidence"`
		} `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("detector service: decode response: %w", err)
	}

	result := make([]Face, 0, len(out.Faces))
	for _, f := range out.Faces {
		result = append(result, Face{
			Box:        image.Rect(f.BBox[0], f.BBox[1], f.BBox[0]+f.BBox[2], f.BBox[1]+f.BBox[3]),
			Embedding:  f.Embedding,
			Confidence: f.Confidence,
		})
	}
	return result, nil
}

var _ Detector = (*HTTPDetector)(nil)

// SingleFace adapts a Detector into the store's Embedder: it demands
// exactly one face and returns its embedding.
type SingleFace struct {
	Detector Detector
}

func (s SingleFace) Embed(img image.Image) ([]float64, error) {
	dets, err := s.Detector.Detect(img)
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, faces.ErrNoFace
	}
	if len(dets) > 1 {
		return nil, faces.ErrMultipleFaces
	}
	return dets[0].Embedding, nil
}

var _ faces.Embedder = SingleFace{}

// FirstFace adapts a Detector into an Embedder that takes the first
// detected face. Cache rebuilds use it: enrollment already guaranteed one
// face per source image, so being lenient here only tolerates background
// faces that slipped into an old photo.
type FirstFace struct {
	Detector Detector
}

func (f FirstFace) Embed(img image.Image) ([]float64, error) {
	dets, err := f.Detector.Detect(img)
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, faces.ErrNoFace
	}
	return dets[0].Embedding, nil
}

var _ faces.Embedder = FirstFace{}
