package liveness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"time"
)

// HTTPScorer calls the anti-spoof model served by the inference sidecar
// (MiniFASNet behind a small HTTP wrapper).
type HTTPScorer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPScorer(baseURL string) *HTTPScorer {
	return &HTTPScorer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPScorer) Score(patch *image.RGBA) (float64, float64, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, patch); err != nil {
		return 0, 0, fmt.Errorf("encode patch: %w", err)
	}

	resp, err := s.client.Post(s.baseURL+"/score", "image/png", &buf)
	if err != nil {
		return 0, 0, fmt.Errorf("liveness service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("liveness service: status %d", resp.StatusCode)
	}

	var out struct {
		Real float64 `json:"real"`
		Fake float64 `json:"fake"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, fmt.Errorf("liveness service: decode response: %w", err)
	}
	return out.Real, out.Fake, nil
}

var _ Scorer = (*HTTPScorer)(nil)
