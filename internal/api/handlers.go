// Package api exposes search, ingestion and identity operations as a JSON
// HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kdimtricp/camsearch/internal/corpus"
	"github.com/kdimtricp/camsearch/internal/database"
	"github.com/kdimtricp/camsearch/internal/identification"
	"github.com/kdimtricp/camsearch/internal/ingest"
	"github.com/kdimtricp/camsearch/internal/models"
	"github.com/kdimtricp/camsearch/internal/processing"
	"github.com/kdimtricp/camsearch/internal/search"
	"github.com/kdimtricp/camsearch/internal/storage"
)

type VideoLister interface {
	List(ctx context.Context) ([]*models.Video, error)
}

// FrameReader reads persisted frames. The catalog answers first; the
// database covers frames written by another process, such as a batch
// ingest against the same database, until the next rehydration.
type FrameReader interface {
	Get(ctx context.Context, imageRef string) (models.Frame, error)
	ListByVideo(ctx context.Context, videoID string) ([]models.Frame, error)
	Count(ctx context.Context) (int, error)
}

type App struct {
	Catalog  *search.Catalog
	Engine   *search.Engine
	Pipeline *ingest.Pipeline
	Resolver *identification.Resolver
	Videos   VideoLister
	Frames   FrameReader
	Images   storage.Storage
	Budget   processing.Runner
	Log      logrus.FieldLogger

	MaxUploadSize int64
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type frameRequest struct {
	ingest.FrameInput
	Image      []byte `json:"image,omitempty"`
	PersonCrop []byte `json:"person_crop,omitempty"`
}

func (app *App) IngestFrameHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.maxUploadSize())

	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			app.handleError(w, err)
			return
		}
		app.writeError(w, http.StatusBadRequest, "invalid frame payload")
		return
	}
	in := req.FrameInput
	in.Image = req.Image
	in.PersonCrop = req.PersonCrop

	res, err := app.Pipeline.IngestFrame(r.Context(), in)
	if err != nil {
		app.handleError(w, err)
		return
	}
	app.writeJSON(w, http.StatusCreated, res)
}

func (app *App) ListFramesHandler(w http.ResponseWriter, r *http.Request) {
	c := app.Catalog.Corpus()
	q := r.URL.Query()

	switch {
	case q.Get("start") != "" || q.Get("end") != "":
		start, err1 := strconv.ParseFloat(q.Get("start"), 64)
		end, err2 := strconv.ParseFloat(q.Get("end"), 64)
		if err1 != nil || err2 != nil {
			app.writeError(w, http.StatusBadRequest, "start and end must both be numbers")
			return
		}
		app.writeJSON(w, http.StatusOK, c.InRange(start, end))
	case q.Get("label") != "":
		app.writeJSON(w, http.StatusOK, c.WithLabel(q.Get("label")))
	default:
		app.writeJSON(w, http.StatusOK, c.All())
	}
}

func (app *App) CountFramesHandler(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int{"count": app.Catalog.Corpus().Count()}
	if app.Frames != nil {
		n, err := app.Frames.Count(r.Context())
		if err != nil {
			app.handleError(w, err)
			return
		}
		counts["persisted"] = n
	}
	app.writeJSON(w, http.StatusOK, counts)
}

func (app *App) GetFrameHandler(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if f, ok := app.Catalog.Corpus().Get(ref); ok {
		app.writeJSON(w, http.StatusOK, f)
		return
	}
	if app.Frames == nil {
		app.writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	f, err := app.Frames.Get(r.Context(), ref)
	if err != nil {
		app.handleError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, f)
}

// FrameImageHandler serves the stored image of a frame. Range requests are
// handled by http.ServeContent.
func (app *App) FrameImageHandler(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if app.Images == nil || !app.Catalog.Corpus().Contains(ref) {
		http.NotFound(w, r)
		return
	}

	file, err := app.Images.OpenFile(ref)
	if err != nil {
		http.Error(w, "Frame image not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	var modTime time.Time
	if st, ok := file.(interface{ Stat() (os.FileInfo, error) }); ok {
		if info, err := st.Stat(); err == nil {
			modTime = info.ModTime()
		}
	}
	http.ServeContent(w, r, ref, modTime, file)
}

type colorsRequest struct {
	Color  string   `json:"color"`
	Colors []string `json:"colors"`
}

func (app *App) AnnotateColorsHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "detection index must be an integer")
		return
	}
	var req colorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.writeError(w, http.StatusBadRequest, "invalid colors payload")
		return
	}

	f, err := app.Pipeline.AnnotateColors(r.Context(), chi.URLParam(r, "ref"), index, req.Color, req.Colors)
	if err != nil {
		app.handleError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, f)
}

func (app *App) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	if app.Videos != nil {
		videos, err := app.Videos.List(r.Context())
		if err != nil {
			app.handleError(w, err)
			return
		}
		app.writeJSON(w, http.StatusOK, videos)
		return
	}

	counts := make(map[string]int)
	for _, f := range app.Catalog.Corpus().All() {
		counts[f.VideoID]++
	}
	videos := make([]*models.Video, 0, len(counts))
	for id, n := range counts {
		videos = append(videos, &models.Video{ID: id, Filename: id, FrameCount: n})
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].ID < videos[j].ID })
	app.writeJSON(w, http.StatusOK, videos)
}

func (app *App) VideoFramesHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	frames := app.Catalog.Corpus().ByVideo(id)
	if len(frames) == 0 && app.Frames != nil {
		stored, err := app.Frames.ListByVideo(r.Context(), id)
		if err != nil {
			app.handleError(w, err)
			return
		}
		frames = stored
	}
	if len(frames) == 0 {
		app.writeError(w, http.StatusNotFound, "video has no frames")
		return
	}
	app.writeJSON(w, http.StatusOK, frames)
}

func (app *App) DeleteVideoFramesHandler(w http.ResponseWriter, r *http.Request) {
	refs, err := app.Pipeline.RemoveVideo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		app.handleError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]any{
		"removed":    len(refs),
		"image_refs": refs,
	})
}

type statsResponse struct {
	corpus.Stats
	Search     search.Stats `json:"search"`
	Identities int          `json:"tracked_identities"`
}

func (app *App) StatsHandler(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Stats:  app.Catalog.Corpus().Stats(),
		Search: app.Catalog.Stats(),
	}
	if app.Resolver != nil {
		resp.Identities = app.Resolver.Count()
	}
	app.writeJSON(w, http.StatusOK, resp)
}

// handleError maps domain errors onto status codes.
func (app *App) handleError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, corpus.ErrNotFound), errors.Is(err, database.ErrNotFound):
		app.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, corpus.ErrDuplicateFrame):
		app.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ingest.ErrInvalidFrame), errors.Is(err, corpus.ErrInvalidFrame):
		app.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &maxBytes):
		app.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
	case errors.Is(err, processing.ErrBudgetExceeded):
		app.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		app.Log.WithError(err).Error("request failed")
		app.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (app *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Log.WithError(err).Warn("failed to encode response")
	}
}

func (app *App) writeError(w http.ResponseWriter, status int, message string) {
	app.writeJSON(w, status, map[string]string{"error": message})
}

func (app *App) maxUploadSize() int64 {
	if app.MaxUploadSize > 0 {
		return app.MaxUploadSize
	}
	return 10 << 20
}
