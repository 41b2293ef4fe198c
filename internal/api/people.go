package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/basedpeople/internal/identity"
	"github.com/kalambet/basedpeople/internal/query"
	"github.com/kalambet/basedpeople/internal/storage"
)

func handleSlugData(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		data, err := deps.Query.SlugData(slug)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no data for %s", slug)
			return
		}
		if err != nil {
			slog.Error("loading slug data failed", "slug", slug, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load data")
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

type personResponse struct {
	query.PersonPage
	Following bool `json:"following"`
}

func handlePerson(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		page, err := deps.Query.Person(slug)
		if errors.Is(err, query.ErrUnknownPerson) {
			httpError(w, http.StatusNotFound, "not_found", "unknown person %s", slug)
			return
		}
		if err != nil {
			slog.Error("loading person page failed", "slug", slug, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load person")
			return
		}

		resp := personResponse{PersonPage: page}
		if deps.Follow != nil {
			following, err := deps.Follow.IsFollowing(r.Context(), identity.CredentialFromRequest(r), slug)
			if err != nil {
				slog.Warn("checking follow state failed", "slug", slug, "error", err)
			}
			resp.Following = following
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var keywords []string
		for _, raw := range q["keyword"] {
			for _, k := range strings.Split(raw, ",") {
				if k = strings.TrimSpace(k); k != "" {
					keywords = append(keywords, k)
				}
			}
		}

		req := query.SearchRequest{
			Filter: storage.Filter{
				Slug:     q.Get("slug"),
				Type:     q.Get("type"),
				Keywords: keywords,
				DateFrom: q.Get("from"),
				DateTo:   q.Get("to"),
			},
			Text:  strings.TrimSpace(q.Get("q")),
			Limit: parseIntParam(r, "limit", query.DefaultSearchLimit, 500),
		}

		rows, err := deps.Query.Search(req)
		if err != nil {
			slog.Error("search failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "search failed")
			return
		}
		if rows == nil {
			rows = []storage.Appearance{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":   len(rows),
			"results": rows,
		})
	}
}
