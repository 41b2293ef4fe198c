package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/basedpeople/internal/follow"
	"github.com/kalambet/basedpeople/internal/identity"
	"github.com/kalambet/basedpeople/internal/query"
)

func handleToggle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		following, err := deps.Follow.Toggle(r.Context(), identity.CredentialFromRequest(r), slug)
		switch {
		case errors.Is(err, follow.ErrAuthRequired):
			authRequired(w, r, deps.LoginURL)
			return
		case errors.Is(err, follow.ErrUnknownPerson):
			httpError(w, http.StatusNotFound, "not_found", "unknown person %s", slug)
			return
		case errors.Is(err, identity.ErrUnavailable):
			slog.Warn("identity provider unavailable", "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "identity provider unavailable")
			return
		case err != nil:
			slog.Error("toggling follow failed", "slug", slug, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to toggle follow")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"following": following})
	}
}

func handleFollows(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slugs, err := deps.Follow.Follows(r.Context(), identity.CredentialFromRequest(r))
		switch {
		case errors.Is(err, follow.ErrAuthRequired):
			slugs = nil
		case errors.Is(err, identity.ErrUnavailable):
			slog.Warn("identity provider unavailable", "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "identity provider unavailable")
			return
		case err != nil:
			slog.Error("listing follows failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list follows")
			return
		}
		writeJSON(w, http.StatusOK, map[string][]query.FollowEntry{"follows": deps.Query.Follows(slugs)})
	}
}

func handleFeed(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := deps.Follow.Identify(r.Context(), identity.CredentialFromRequest(r))
		switch {
		case errors.Is(err, follow.ErrAuthRequired):
			authRequired(w, r, deps.LoginURL)
			return
		case err != nil:
			slog.Warn("identity provider unavailable", "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "identity provider unavailable")
			return
		}

		limit := parseIntParam(r, "limit", deps.FeedLimit, 200)
		entries, err := deps.Query.Feed(userID, limit)
		if err != nil {
			slog.Error("loading feed failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load feed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}
