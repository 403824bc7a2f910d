package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kdimtricp/camsearch/internal/search"
)

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchHandler runs a hybrid search within the configured time budget.
func (app *App) SearchHandler(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.writeError(w, http.StatusBadRequest, "invalid search payload")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		app.writeError(w, http.StatusBadRequest, "query text cannot be empty")
		return
	}
	if req.TopK < 0 {
		app.writeError(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	var resp search.Response
	run := func(ctx context.Context) error {
		resp = app.Engine.Run(ctx, req.Query, req.TopK)
		return nil
	}

	var err error
	if app.Budget != nil {
		err = app.Budget.Run(r.Context(), run)
	} else {
		err = run(r.Context())
	}
	if err != nil {
		app.Log.WithError(err).WithField("query", req.Query).Warn("search aborted")
		app.handleError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, resp)
}
