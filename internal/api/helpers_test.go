package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/camsearch/internal/ai"
	"github.com/kdimtricp/camsearch/internal/database"
	"github.com/kdimtricp/camsearch/internal/identification"
	"github.com/kdimtricp/camsearch/internal/ingest"
	"github.com/kdimtricp/camsearch/internal/processing"
	"github.com/kdimtricp/camsearch/internal/query"
	"github.com/kdimtricp/camsearch/internal/search"
	"github.com/kdimtricp/camsearch/internal/storage"
	"github.com/kdimtricp/camsearch/internal/vectorindex"
)

type testServer struct {
	*httptest.Server
	App    *App
	Frames *database.FrameRepo
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	dir := t.TempDir()
	db, err := database.NewDB(database.Config{
		Type:       database.TypeSQLite,
		SQLitePath: filepath.Join(dir, "test.db"),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	images, err := storage.NewLocalStorage(filepath.Join(dir, "frames"))
	require.NoError(t, err)

	frames := database.NewFrameRepo(db)
	videos := database.NewVideoRepository(db)
	resolver := identification.NewResolver(ai.NewHistogramEncoder(), identification.DefaultThreshold, log)
	catalog := search.NewCatalog(vectorindex.NewTextIndex(ai.NewHashingEncoder(64)), nil, log)

	app := &App{
		Catalog: catalog,
		Engine:  search.NewEngine(catalog, query.NewParser(nil, log), search.Config{}, log),
		Pipeline: ingest.NewPipeline(catalog, ingest.DefaultConfig(), log,
			ingest.WithPersistence(frames, videos),
			ingest.WithImageStorage(images),
			ingest.WithResolver(resolver),
		),
		Resolver:      resolver,
		Videos:        videos,
		Frames:        frames,
		Images:        images,
		Budget:        processing.NewBudget(0),
		Log:           log,
		MaxUploadSize: 1 << 20,
	}

	ts := &testServer{Server: httptest.NewServer(NewRouter(app)), App: app, Frames: frames}
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func frame(ref, video string, ts float64, dets ...map[string]any) map[string]any {
	if dets == nil {
		dets = []map[string]any{}
	}
	return map[string]any{
		"image_ref":  ref,
		"video_id":   video,
		"timestamp":  ts,
		"detections": dets,
	}
}

func det(label, color string) map[string]any {
	return map[string]any{
		"label":      label,
		"box":        []float64{10, 10, 50, 90},
		"confidence": 0.9,
		"color":      color,
	}
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
