package faces

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"TMIFACE/helper"
)

var (
	// ErrNoFace means the embedder found no face in a source image.
	ErrNoFace = errors.New("no face detected")
	// ErrMultipleFaces means more than one face where exactly one is required.
	ErrMultipleFaces = errors.New("multiple faces detected")
	// ErrLabelTaken is returned by Rename when the target label exists.
	ErrLabelTaken = errors.New("label already taken")
)

// Embedder extracts the embedding of the single face in an image.
type Embedder interface {
	Embed(img image.Image) ([]float64, error)
}

// Store keeps one normalized embedding per enrolled label, backed by a
// source-image directory and a per-label JSON cache. The cache is validated
// by mtime: whenever a source image is newer than its cached vector the
// vector is recomputed. Readers work off immutable snapshots so enrollment
// never blocks recognition.
type Store struct {
	mu       sync.RWMutex
	entries  map[string][]float64
	imageDir string
	cacheDir string
	embedder Embedder
}

func NewStore(imageDir, cacheDir string, embedder Embedder) (*Store, error) {
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{
		entries:  make(map[string][]float64),
		imageDir: imageDir,
		cacheDir: cacheDir,
		embedder: embedder,
	}, nil
}

// Load rebuilds the whole in-memory map from the image directory. Cached
// vectors are reused verbatim while still fresh; stale or corrupt entries
// are recomputed and rewritten. Images with no detectable face are skipped
// and logged, they are a data problem and not a reason to fail startup.
func (s *Store) Load() error {
	files, err := os.ReadDir(s.imageDir)
	if err != nil {
		return fmt.Errorf("read image dir: %w", err)
	}

	entries := make(map[string][]float64, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name()))
		if ext != ".jpg" && ext != ".png" {
			continue
		}
		label := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		imgPath := filepath.Join(s.imageDir, f.Name())

		imgInfo, err := os.Stat(imgPath)
		if err != nil {
			continue
		}

		// Reuse the cached vector if it is at least as new as the image.
		if vec, ok := s.readCache(label, imgInfo.ModTime()); ok {
			entries[label] = vec
			continue
		}

		vec, err := s.computeEmbedding(imgPath)
		if err != nil {
			if errors.Is(err, ErrNoFace) {
				log.Printf("Warning: no face in source image for %q, skipped", label)
			} else {
				log.Printf("Warning: embedding failed for %q: %v", label, err)
			}
			continue
		}
		entries[label] = vec
		if err := s.writeCache(label, vec); err != nil {
			log.Printf("Warning: cache write failed for %q: %v", label, err)
		}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// readCache returns the cached vector when it exists, is at least as new as
// the source image and parses cleanly. Anything else counts as stale.
func (s *Store) readCache(label string, imageMtime time.Time) ([]float64, bool) {
	path := s.cachePath(label)
	info, err := os.Stat(path)
	if err != nil || info.ModTime().Before(imageMtime) {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil || len(vec) == 0 {
		log.Printf("Warning: corrupt embedding cache for %q, recomputing", label)
		return nil, false
	}
	return vec, true
}

func (s *Store) writeCache(label string, vec []float64) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	// Write-then-rename so a crash can never leave a half-written cache.
	tmp := s.cachePath(label) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.cachePath(label))
}

func (s *Store) computeEmbedding(imgPath string) ([]float64, error) {
	file, err := os.Open(imgPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(imgPath), err)
	}

	// White border around the photo so faces near the edge are still found.
	vec, err := s.embedder.Embed(addBorder(img, 50))
	if err != nil {
		return nil, err
	}
	return helper.Normalize(vec), nil
}

// Put normalizes the vector and installs it in memory and in the durable
// cache, replacing any previous entry for the label.
func (s *Store) Put(label string, vec []float64) error {
	normalized := helper.Normalize(vec)
	if err := s.writeCache(label, normalized); err != nil {
		return fmt.Errorf("persist embedding for %q: %w", label, err)
	}
	s.mu.Lock()
	s.entries[label] = normalized
	s.mu.Unlock()
	return nil
}

// Remove drops the label from memory and deletes its image and cache files.
// Removing an unknown label is a no-op.
func (s *Store) Remove(label string) {
	s.mu.Lock()
	delete(s.entries, label)
	s.mu.Unlock()
	for _, path := range []string{s.ImagePath(label), s.cachePath(label)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: removing %s: %v", path, err)
		}
	}
}

// Rename moves the image, the cache entry and the in-memory entry from old
// to new. Fails with ErrLabelTaken when the new label exists.
func (s *Store) Rename(old, new string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[new]; ok {
		return ErrLabelTaken
	}
	if _, err := os.Stat(s.ImagePath(new)); err == nil {
		return ErrLabelTaken
	}

	if _, err := os.Stat(s.ImagePath(old)); err == nil {
		if err := os.Rename(s.ImagePath(old), s.ImagePath(new)); err != nil {
			return fmt.Errorf("rename image: %w", err)
		}
	}
	if _, err := os.Stat(s.cachePath(old)); err == nil {
		if err := os.Rename(s.cachePath(old), s.cachePath(new)); err != nil {
			return fmt.Errorf("rename cache: %w", err)
		}
	}

	if vec, ok := s.entries[old]; ok {
		delete(s.entries, old)
		s.entries[new] = vec
	}
	return nil
}

// Snapshot returns an immutable view for matching. The map is a fresh copy;
// vectors are shared but replace-only, so concurrent readers are safe.
func (s *Store) Snapshot() map[string][]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]float64, len(s.entries))
	for label, vec := range s.entries {
		out[label] = vec
	}
	return out
}

// Has reports whether a label is enrolled (in memory or as an image file).
func (s *Store) Has(label string) bool {
	s.mu.RLock()
	_, ok := s.entries[label]
	s.mu.RUnlock()
	if ok {
		return true
	}
	_, err := os.Stat(s.ImagePath(label))
	return err == nil
}

// SaveImage writes the source photo for a label.
func (s *Store) SaveImage(label string, data []byte) error {
	return os.WriteFile(s.ImagePath(label), data, 0o644)
}

func (s *Store) ImagePath(label string) string {
	return filepath.Join(s.imageDir, label+".jpg")
}

func (s *Store) cachePath(label string) string {
	return filepath.Join(s.cacheDir, label+".json")
}

// addBorder pads the image with a constant white border on all sides.
func addBorder(img image.Image, px int) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx()+2*px, b.Dy()+2*px))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(px, px, px+b.Dx(), px+b.Dy()), img, b.Min, draw.Src)
	return out
}
