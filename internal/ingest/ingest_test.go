package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/camsearch/internal/ai"
	"github.com/kdimtricp/camsearch/internal/corpus"
	"github.com/kdimtricp/camsearch/internal/database"
	"github.com/kdimtricp/camsearch/internal/identification"
	"github.com/kdimtricp/camsearch/internal/query"
	"github.com/kdimtricp/camsearch/internal/search"
	"github.com/kdimtricp/camsearch/internal/storage"
	"github.com/kdimtricp/camsearch/internal/vectorindex"
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newCatalog() *search.Catalog {
	return search.NewCatalog(vectorindex.NewTextIndex(ai.NewHashingEncoder(64)), nil, quiet())
}

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func box() []float64 { return []float64{1, 2, 30, 40} }

func people(n int) []RawDetection {
	dets := make([]RawDetection, n)
	for i := range dets {
		dets[i] = RawDetection{Label: "person", Box: box(), Confidence: 0.9}
	}
	return dets
}

type env struct {
	db      *database.DB
	frames  *database.FrameRepo
	videos  *database.VideoRepository
	images  *storage.LocalStorage
	catalog *search.Catalog
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewDB(database.Config{
		Type:       database.TypeSQLite,
		SQLitePath: filepath.Join(dir, "frames.db"),
	}, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	images, err := storage.NewLocalStorage(filepath.Join(dir, "frames"))
	require.NoError(t, err)

	return &env{
		db:      db,
		frames:  database.NewFrameRepo(db),
		videos:  database.NewVideoRepository(db),
		images:  images,
		catalog: newCatalog(),
	}
}

func (e *env) pipeline(opts ...Option) *Pipeline {
	opts = append([]Option{
		WithPersistence(e.frames, e.videos),
		WithImageStorage(e.images),
	}, opts...)
	return NewPipeline(e.catalog, DefaultConfig(), quiet(), opts...)
}

func TestIngestFrame_DropsInvalidDetections(t *testing.T) {
	p := NewPipeline(newCatalog(), DefaultConfig(), quiet())

	res, err := p.IngestFrame(context.Background(), FrameInput{
		ImageRef:  "cam1_0001.jpg",
		VideoID:   "cam1",
		Timestamp: 1,
		Detections: []RawDetection{
			{Label: "person", Box: box(), Confidence: 0.9},
			{Label: "car", Box: box(), Confidence: 0.3},
			{Label: "dog", Box: []float64{1, 2, 3}, Confidence: 0.9},
			{Label: "cat", Box: []float64{30, 2, 1, 40}, Confidence: 0.9},
			{Label: "bus", Box: box(), Confidence: 1.5},
			{Label: " ", Box: box(), Confidence: 0.9},
			{Label: "bicycle", Box: []float64{1, 2, 30, 40, 99}, Confidence: 0.5},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Dropped)
	assert.Equal(t, []string{"person", "bicycle"}, res.Frame.Labels)
	assert.Equal(t, 30.0, res.Frame.Detections[1].Box.X2)
	assert.Equal(t, 1, p.catalog.Corpus().Count())
}

func TestIngestFrame_Rejections(t *testing.T) {
	p := NewPipeline(newCatalog(), DefaultConfig(), quiet())
	ctx := context.Background()

	_, err := p.IngestFrame(ctx, FrameInput{VideoID: "cam1", Timestamp: 1})
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = p.IngestFrame(ctx, FrameInput{ImageRef: "a.jpg", VideoID: "cam1", Timestamp: -1})
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = p.IngestFrame(ctx, FrameInput{ImageRef: "a.jpg", VideoID: "cam1", Timestamp: 1})
	require.NoError(t, err)

	_, err = p.IngestFrame(ctx, FrameInput{ImageRef: "b.jpg", VideoID: "cam1", Timestamp: 1})
	assert.ErrorIs(t, err, corpus.ErrDuplicateFrame)

	_, err = p.IngestFrame(ctx, FrameInput{ImageRef: "a.jpg", VideoID: "cam2", Timestamp: 1})
	assert.ErrorIs(t, err, corpus.ErrDuplicateFrame)

	assert.Equal(t, 1, p.catalog.Corpus().Count())
	assert.Equal(t, 1, p.catalog.Stats().TextIndexed)
}

func TestIngestFrame_Alerts(t *testing.T) {
	tests := []struct {
		name       string
		detections []RawDetection
		want       []AlertKind
	}{
		{
			name:       "bag without person",
			detections: []RawDetection{{Label: "backpack", Box: box(), Confidence: 0.8}},
			want:       []AlertKind{AlertUnattendedBag},
		},
		{
			name: "bag with person",
			detections: append(people(1),
				RawDetection{Label: "suitcase", Box: box(), Confidence: 0.8}),
			want: nil,
		},
		{
			name:       "crowd",
			detections: people(6),
			want:       []AlertKind{AlertCrowd},
		},
		{
			name:       "at threshold",
			detections: people(5),
			want:       nil,
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(newCatalog(), DefaultConfig(), quiet())
			res, err := p.IngestFrame(context.Background(), FrameInput{
				ImageRef:   "f.jpg",
				VideoID:    "cam1",
				Timestamp:  float64(i),
				Detections: tt.detections,
			})
			require.NoError(t, err)

			var kinds []AlertKind
			for _, a := range res.Alerts {
				kinds = append(kinds, a.Kind)
				assert.Equal(t, "cam1", a.VideoID)
				assert.NotEmpty(t, a.Message)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestIngestFrame_UnattendedBagToggle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UnattendedBagAlert = false
	p := NewPipeline(newCatalog(), cfg, quiet())

	res, err := p.IngestFrame(context.Background(), FrameInput{
		ImageRef:   "f.jpg",
		VideoID:    "cam1",
		Detections: []RawDetection{{Label: "handbag", Box: box(), Confidence: 0.8}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
}

func TestIngestFrame_ResolvesIdentities(t *testing.T) {
	resolver := identification.NewResolver(ai.NewHistogramEncoder(), identification.DefaultThreshold, quiet())
	p := NewPipeline(newCatalog(), DefaultConfig(), quiet(), WithResolver(resolver))
	ctx := context.Background()

	red := solidPNG(t, color.RGBA{R: 230, A: 255})
	blue := solidPNG(t, color.RGBA{B: 230, A: 255})

	ingest := func(ref string, ts float64, crop []byte, dets []RawDetection) string {
		res, err := p.IngestFrame(ctx, FrameInput{
			ImageRef: ref, VideoID: "cam1", Timestamp: ts, Detections: dets, PersonCrop: crop,
		})
		require.NoError(t, err)
		return res.Frame.PersonID
	}

	assert.Equal(t, "P1", ingest("a.jpg", 1, red, people(1)))
	assert.Equal(t, "P1", ingest("b.jpg", 2, red, people(1)))
	assert.Equal(t, "P2", ingest("c.jpg", 3, blue, people(1)))
	assert.Empty(t, ingest("d.jpg", 4, red, []RawDetection{{Label: "car", Box: box(), Confidence: 0.9}}))

	assert.Equal(t, 2, resolver.Count())
	got, ok := p.catalog.Corpus().Get("b.jpg")
	require.True(t, ok)
	assert.Equal(t, "P1", got.PersonID)
}

func TestIngestFrame_EstimatesColors(t *testing.T) {
	e := newEnv(t)
	p := e.pipeline(WithColorEstimator(ai.NewPaletteEstimator()))

	res, err := p.IngestFrame(context.Background(), FrameInput{
		ImageRef:   "red.png",
		VideoID:    "cam1",
		Timestamp:  1,
		Image:      solidPNG(t, color.RGBA{R: 220, G: 20, B: 20, A: 255}),
		Detections: []RawDetection{{Label: "car", Box: []float64{0, 0, 8, 8}, Confidence: 0.9}},
	})
	require.NoError(t, err)
	assert.Equal(t, "red", res.Frame.Detections[0].Color)
	assert.NotEqual(t, "red.png", res.Frame.ImageRef)
	assert.Equal(t, ".png", filepath.Ext(res.Frame.ImageRef))
}

func TestPipeline_PersistAndRehydrate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.pipeline()

	first, err := p.IngestFrame(ctx, FrameInput{
		ImageRef:      "lobby.png",
		VideoID:       "lobby",
		VideoFilename: "lobby.mp4",
		Timestamp:     2,
		Image:         solidPNG(t, color.White),
		Detections:    people(1),
		PersonID:      "P9",
	})
	require.NoError(t, err)
	_, err = p.IngestFrame(ctx, FrameInput{
		ImageRef:   "lobby_ext.jpg",
		VideoID:    "lobby",
		Timestamp:  5,
		Detections: []RawDetection{{Label: "car", Box: box(), Confidence: 0.7, Color: "blue"}},
	})
	require.NoError(t, err)

	video, err := e.videos.Get(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, 2, video.FrameCount)
	assert.Equal(t, "lobby.mp4", video.Filename)

	e.catalog = newCatalog()
	restored := e.pipeline()
	n, err := restored.Rehydrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, ok := e.catalog.Corpus().Get(first.Frame.ImageRef)
	require.True(t, ok)
	assert.Equal(t, first.Frame, got)

	n, err = restored.Rehydrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already loaded frames are skipped")
}

func TestPipeline_RemoveVideo(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.pipeline()

	res, err := p.IngestFrame(ctx, FrameInput{
		ImageRef: "gate.png", VideoID: "gate", Timestamp: 1,
		Image: solidPNG(t, color.Black), Detections: people(1),
	})
	require.NoError(t, err)
	_, err = p.IngestFrame(ctx, FrameInput{
		ImageRef: "yard.jpg", VideoID: "yard", Timestamp: 1, Detections: people(1),
	})
	require.NoError(t, err)

	refs, err := p.RemoveVideo(ctx, "gate")
	require.NoError(t, err)
	assert.Equal(t, []string{res.Frame.ImageRef}, refs)

	assert.Equal(t, 1, e.catalog.Corpus().Count())
	count, err := e.frames.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	_, err = e.images.ReadFile(res.Frame.ImageRef)
	assert.Error(t, err)
	_, err = e.videos.Get(ctx, "gate")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = p.RemoveVideo(ctx, "gate")
	assert.ErrorIs(t, err, corpus.ErrNotFound)
}

func TestPipeline_AnnotateColorsPersists(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.pipeline()

	_, err := p.IngestFrame(ctx, FrameInput{
		ImageRef: "a.jpg", VideoID: "cam1", Timestamp: 1, Detections: people(2),
	})
	require.NoError(t, err)

	f, err := p.AnnotateColors(ctx, "a.jpg", 1, "green", []string{"white"})
	require.NoError(t, err)
	assert.Equal(t, "green", f.Detections[1].Color)

	stored, err := e.frames.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "green", stored.Detections[1].Color)
	assert.Equal(t, []string{"white"}, stored.Detections[1].Colors)
	assert.Empty(t, stored.Detections[0].Color)

	_, err = p.AnnotateColors(ctx, "a.jpg", 5, "red", nil)
	assert.ErrorIs(t, err, corpus.ErrNotFound)
}

func TestPipeline_RehydrateKeepsRankingTies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.pipeline()

	for i := 0; i < 40; i++ {
		_, err := p.IngestFrame(ctx, FrameInput{
			ImageRef:   fmt.Sprintf("f%02d.jpg", i),
			VideoID:    fmt.Sprintf("cam%d", 39-i),
			Timestamp:  float64(i),
			Detections: people(1),
		})
		require.NoError(t, err)
	}
	top3 := func(c *search.Catalog) []string {
		engine := search.NewEngine(c, query.NewParser(nil, quiet()), search.Config{}, quiet())
		var refs []string
		for _, r := range engine.Search(ctx, "person", 3) {
			refs = append(refs, r.ImageRef)
		}
		return refs
	}
	live := top3(e.catalog)
	require.Equal(t, []string{"f00.jpg", "f01.jpg", "f02.jpg"}, live)

	for i := 0; i < 5; i++ {
		e.catalog = newCatalog()
		n, err := e.pipeline().Rehydrate(ctx)
		require.NoError(t, err)
		require.Equal(t, 40, n)
		assert.Equal(t, live, top3(e.catalog))
	}
}

type failingText struct{}

func (failingText) EncodeText(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

func (failingText) Dimensions() int { return 8 }

func TestIngestFrame_IndexFailureLeavesNoIdentity(t *testing.T) {
	e := newEnv(t)
	e.catalog = search.NewCatalog(vectorindex.NewTextIndex(failingText{}), nil, quiet())
	resolver := identification.NewResolver(ai.NewHistogramEncoder(), identification.DefaultThreshold, quiet())
	p := e.pipeline(WithResolver(resolver))
	ctx := context.Background()

	_, err := p.IngestFrame(ctx, FrameInput{
		ImageRef:   "f1.png",
		VideoID:    "lobby",
		Timestamp:  1,
		Image:      solidPNG(t, color.White),
		PersonCrop: solidPNG(t, color.Black),
		Detections: people(1),
	})
	require.Error(t, err)

	assert.Zero(t, resolver.Count())
	assert.Zero(t, e.catalog.Corpus().Count())
	n, err := e.frames.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
