package api

import (
	"log/slog"
	"net/http"

	"github.com/kalambet/basedpeople/internal/ingest"
)

func handleReconcile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queued, err := ingest.Reconcile(deps.Store)
		if err != nil {
			slog.Error("reconcile failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "reconcile failed: %v", err)
			return
		}
		slog.Info("reconcile queued refetch jobs", "count", len(queued))
		writeJSON(w, http.StatusOK, map[string]any{"queued": queued})
	}
}
