package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(app.Log))
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", app.SearchHandler)
		r.Get("/stats", app.StatsHandler)

		r.Route("/frames", func(r chi.Router) {
			r.Post("/", app.IngestFrameHandler)
			r.Get("/", app.ListFramesHandler)
			r.Get("/count", app.CountFramesHandler)
			r.Get("/{ref}", app.GetFrameHandler)
			r.Get("/{ref}/image", app.FrameImageHandler)
			r.Put("/{ref}/detections/{index}/colors", app.AnnotateColorsHandler)
		})

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", app.ListVideosHandler)
			r.Get("/{id}/frames", app.VideoFramesHandler)
			r.Delete("/{id}/frames", app.DeleteVideoFramesHandler)
		})

		r.Route("/persons", func(r chi.Router) {
			r.Post("/resolve", app.ResolvePersonHandler)
			r.Get("/", app.ListPersonsHandler)
			r.Delete("/", app.ResetPersonsHandler)
		})
	})

	return r
}
