// Package api serves the HTTP and MCP surfaces of basedpeople.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/basedpeople/internal/catalog"
	"github.com/kalambet/basedpeople/internal/follow"
	"github.com/kalambet/basedpeople/internal/ingest"
	"github.com/kalambet/basedpeople/internal/query"
	"github.com/kalambet/basedpeople/internal/seed"
	"github.com/kalambet/basedpeople/internal/webhook"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Store is what the router needs from the appearance store directly.
type Store interface {
	Counts() (people int, appearances int, err error)
	ingest.ReconcileStore
}

// EventHandler consumes verified webhook bodies.
type EventHandler interface {
	HandlePayload(ctx context.Context, body []byte) (ingest.Result, error)
}

// Seeder starts research runs for people.
type Seeder interface {
	Run(ctx context.Context, people []catalog.Person) seed.Summary
}

type Deps struct {
	Store      Store
	Verifier   *webhook.Verifier
	Events     EventHandler
	Query      *query.Service
	Follow     *follow.Manager
	Seeder     Seeder
	SeedSecret string
	AdminToken string
	LoginURL   string
	FeedLimit  int
}

func NewRouter(deps Deps) http.Handler {
	if deps.LoginURL == "" {
		deps.LoginURL = "/login"
	}
	if deps.FeedLimit <= 0 {
		deps.FeedLimit = 50
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(deps))
	r.Post("/webhook", handleWebhook(deps))
	r.Get("/seed", handleSeed(deps))
	r.Get("/search", handleSearch(deps))
	r.Get("/people/{slug}", handlePerson(deps))
	r.Get("/{slug}.json", handleSlugData(deps))

	r.Post("/toggle/{slug}", handleToggle(deps))
	r.Get("/follows", handleFollows(deps))
	r.Get("/feed", handleFeed(deps))

	r.Route("/admin", func(r chi.Router) {
		r.Use(BearerAuth(deps.AdminToken))
		r.Post("/reconcile", handleReconcile(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		people, appearances, err := deps.Store.Counts()
		if err != nil {
			slog.Error("counting appearances failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read store")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"people":      people,
			"appearances": appearances,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
