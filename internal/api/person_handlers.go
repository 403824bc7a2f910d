package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/kdimtricp/camsearch/internal/models"
)

type resolveResponse struct {
	PersonID string               `json:"person_id"`
	State    models.IdentityState `json:"state"`
	Tracked  int                  `json:"tracked_identities"`
}

// ResolvePersonHandler assigns an identity to an uploaded person crop.
func (app *App) ResolvePersonHandler(w http.ResponseWriter, r *http.Request) {
	if app.Resolver == nil {
		app.writeError(w, http.StatusServiceUnavailable, "identity resolution disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, app.maxUploadSize())
	if err := r.ParseMultipartForm(app.maxUploadSize()); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			app.handleError(w, err)
			return
		}
		app.writeError(w, http.StatusBadRequest, "expected multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()

	crop, err := io.ReadAll(file)
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	id := app.Resolver.Resolve(r.Context(), crop, r.FormValue("frame_ref"))
	identity, _ := app.Resolver.Get(id)
	app.writeJSON(w, http.StatusOK, resolveResponse{
		PersonID: id,
		State:    identity.State,
		Tracked:  app.Resolver.Count(),
	})
}

func (app *App) ListPersonsHandler(w http.ResponseWriter, r *http.Request) {
	identities := []models.TrackedIdentity{}
	if app.Resolver != nil {
		if ids := app.Resolver.Identities(); ids != nil {
			identities = ids
		}
	}
	app.writeJSON(w, http.StatusOK, identities)
}

func (app *App) ResetPersonsHandler(w http.ResponseWriter, r *http.Request) {
	if app.Resolver != nil {
		app.Resolver.Reset()
	}
	w.WriteHeader(http.StatusNoContent)
}
