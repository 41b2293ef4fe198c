package api

import (
	"net/http"
)

// handleSeed starts one research run per catalog person. The shared secret
// arrives as the secret query parameter.
func handleSeed(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !secretMatches(r.URL.Query().Get("secret"), deps.SeedSecret) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Unauthorized"})
			return
		}
		summary := deps.Seeder.Run(r.Context(), deps.Query.Catalog().All())
		writeJSON(w, http.StatusOK, summary)
	}
}
