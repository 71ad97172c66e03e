package faces

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TMIFACE/helper"
)

type stubEmbedder struct {
	vec   []float64
	err   error
	calls int
}

func (e *stubEmbedder) Embed(img image.Image) ([]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([]float64, len(e.vec))
	copy(out, e.vec)
	return out, nil
}

func writeTestImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(8, 8, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newTestStore(t *testing.T, embedder Embedder) (*Store, string, string) {
	t.Helper()
	imageDir := filepath.Join(t.TempDir(), "known_faces")
	cacheDir := filepath.Join(t.TempDir(), "embeddings")
	store, err := NewStore(imageDir, cacheDir, embedder)
	require.NoError(t, err)
	return store, imageDir, cacheDir
}

func TestLoadComputesAndCaches(t *testing.T) {
	emb := &stubEmbedder{vec: []float64{3, 4, 0}}
	store, imageDir, cacheDir := newTestStore(t, emb)
	writeTestImage(t, filepath.Join(imageDir, "alice.png"))

	require.NoError(t, store.Load())
	assert.Equal(t, 1, emb.calls)

	snap := store.Snapshot()
	require.Contains(t, snap, "alice")
	assert.InDelta(t, 0.6, snap["alice"][0], 1e-9) // normalized
	assert.FileExists(t, filepath.Join(cacheDir, "alice.json"))
}

func TestLoadReusesFreshCacheVerbatim(t *testing.T) {
	emb := &stubEmbedder{vec: []float64{1, 0, 0}}
	store, imageDir, cacheDir := newTestStore(t, emb)
	imgPath := filepath.Join(imageDir, "alice.png")
	writeTestImage(t, imgPath)

	// Plant a cached vector that recomputation would not produce, newer
	// than the image: Load must take it verbatim.
	cachePath := filepath.Join(cacheDir, "alice.json")
	require.NoError(t, os.WriteFile(cachePath, []byte("[0,1,0]"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(imgPath, old, old))

	require.NoError(t, store.Load())
	assert.Equal(t, 0, emb.calls)
	assert.Equal(t, []float64{0, 1, 0}, store.Snapshot()["alice"])
}

func TestLoadRecomputesStaleCache(t *testing.T) {
	emb := &stubEmbedder{vec: []float64{1, 0, 0}}
	store, imageDir, cacheDir := newTestStore(t, emb)
	imgPath := filepath.Join(imageDir, "alice.png")
	writeTestImage(t, imgPath)

	// Cache exists but the source image is newer: must recompute.
	cachePath := filepath.Join(cacheDir, "alice.json")
	require.NoError(t, os.WriteFile(cachePath, []byte("[0,1,0]"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(cachePath, old, old))

	require.NoError(t, store.Load())
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, []float64{1, 0, 0}, store.Snapshot()["alice"])
}

func TestLoadRecomputesCorruptCache(t *testing.T) {
	emb := &stubEmbedder{vec: []float64{0, 0, 1}}
	store, imageDir, cacheDir := newTestStore(t, emb)
	imgPath := filepath.Join(imageDir, "alice.png")
	writeTestImage(t, imgPath)

	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "alice.json"), []byte("{not json"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(imgPath, old, old))

	require.NoError(t, store.Load())
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, []float64{0, 0, 1}, store.Snapshot()["alice"])
}

func TestLoadSkipsImagesWithoutFace(t *testing.T) {
	emb := &stubEmbedder{err: ErrNoFace}
	store, imageDir, _ := newTestStore(t, emb)
	writeTestImage(t, filepath.Join(imageDir, "ghost.png"))

	require.NoError(t, store.Load())
	assert.Empty(t, store.Snapshot())
}

func TestPutNormalizesAndPersists(t *testing.T) {
	store, _, cacheDir := newTestStore(t, &stubEmbedder{})

	require.NoError(t, store.Put("bob", []float64{0, 3, 4}))
	snap := store.Snapshot()
	assert.InDelta(t, 0.8, snap["bob"][2], 1e-9)
	assert.FileExists(t, filepath.Join(cacheDir, "bob.json"))
}

func TestSnapshotIsImmutableView(t *testing.T) {
	store, _, _ := newTestStore(t, &stubEmbedder{})
	require.NoError(t, store.Put("bob", []float64{1, 0, 0}))

	snap := store.Snapshot()
	delete(snap, "bob")
	snap["mallory"] = []float64{0, 1, 0}

	fresh := store.Snapshot()
	assert.Contains(t, fresh, "bob")
	assert.NotContains(t, fresh, "mallory")
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, imageDir, cacheDir := newTestStore(t, &stubEmbedder{})
	require.NoError(t, store.Put("bob", []float64{1, 0, 0}))
	require.NoError(t, store.SaveImage("bob", []byte("jpeg-bytes")))

	store.Remove("bob")
	assert.NotContains(t, store.Snapshot(), "bob")
	assert.NoFileExists(t, filepath.Join(cacheDir, "bob.json"))
	assert.NoFileExists(t, filepath.Join(imageDir, "bob.jpg"))

	// Second remove is a no-op.
	store.Remove("bob")
}

func TestRenameMovesEverything(t *testing.T) {
	store, imageDir, cacheDir := newTestStore(t, &stubEmbedder{})
	require.NoError(t, store.Put("old", []float64{1, 0, 0}))
	require.NoError(t, store.SaveImage("old", []byte("jpeg-bytes")))

	require.NoError(t, store.Rename("old", "new"))

	snap := store.Snapshot()
	assert.NotContains(t, snap, "old")
	assert.Contains(t, snap, "new")
	assert.FileExists(t, filepath.Join(imageDir, "new.jpg"))
	assert.FileExists(t, filepath.Join(cacheDir, "new.json"))
	assert.NoFileExists(t, filepath.Join(imageDir, "old.jpg"))
}

func TestRenameRefusesTakenLabel(t *testing.T) {
	store, _, _ := newTestStore(t, &stubEmbedder{})
	require.NoError(t, store.Put("old", []float64{1, 0, 0}))
	require.NoError(t, store.Put("taken", []float64{0, 1, 0}))

	err := store.Rename("old", "taken")
	assert.ErrorIs(t, err, ErrLabelTaken)
	assert.Contains(t, store.Snapshot(), "old")
}

func TestStoreMatchUsesNormalizedQuery(t *testing.T) {
	store, _, _ := newTestStore(t, &stubEmbedder{})
	require.NoError(t, store.Put("alice", helper.Normalize([]float64{1, 0, 0})))

	label, dist := store.Match([]float64{250, 1, 0}, 0.6)
	assert.Equal(t, "alice", label)
	assert.Less(t, dist, 0.01)
}
