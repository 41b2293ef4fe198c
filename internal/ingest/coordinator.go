// Package ingest turns verified task run events into stored appearances.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/basedpeople/internal/storage"
	"github.com/kalambet/basedpeople/internal/taskapi"
	"github.com/kalambet/basedpeople/internal/webhook"
)

var (
	ErrMissingMetadata = errors.New("missing slug or name in task metadata")
	ErrMalformedEvent  = errors.New("malformed webhook event")
)

// Outcome names what an event led to.
type Outcome string

const (
	OutcomeIgnored     Outcome = "ignored"
	OutcomeCompleted   Outcome = Outcome(storage.StatusCompleted)
	OutcomeFailed      Outcome = Outcome(storage.StatusFailed)
	OutcomeFetchFailed Outcome = Outcome(storage.StatusFetchFailed)
	OutcomeFetchError  Outcome = Outcome(storage.StatusFetchError)
)

type Result struct {
	Outcome     Outcome
	Slug        string
	RunID       string
	Appearances int
}

// Store is the write side of the appearance store.
type Store interface {
	WriteCompletedAppearances(run storage.PersonRun, appearances []storage.Appearance) error
	WriteStatus(slug, name, runID, status, errMsg string) error
}

// ResultFetcher retrieves the full result of a finished run.
type ResultFetcher interface {
	GetResult(ctx context.Context, runID string) (*taskapi.Result, error)
}

// Indexer is notified after a completed set is written for a slug.
type Indexer interface {
	IndexSlug(slug string, appearances []storage.Appearance) error
}

// NameLookup resolves a display name for a slug.
type NameLookup interface {
	DisplayName(slug, fallback string) string
}

// Coordinator performs exactly one store write per terminal event.
type Coordinator struct {
	store   Store
	fetcher ResultFetcher
	names   NameLookup
	index   Indexer
	logger  *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewCoordinator(store Store, fetcher ResultFetcher, names NameLookup) *Coordinator {
	return &Coordinator{
		store:   store,
		fetcher: fetcher,
		names:   names,
		logger:  slog.Default(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// slugLock returns the mutex that orders store writes and index refreshes
// for one slug.
func (c *Coordinator) slugLock(slug string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	mu, ok := c.locks[slug]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[slug] = mu
	}
	return mu
}

// SetIndexer registers an index to refresh after completed writes. Index
// errors are logged and never fail ingestion.
func (c *Coordinator) SetIndexer(ix Indexer) {
	c.index = ix
}

// HandlePayload decodes a verified request body and handles the event.
func (c *Coordinator) HandlePayload(ctx context.Context, body []byte) (Result, error) {
	ev, err := webhook.ParseEvent(body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return c.HandleEvent(ctx, ev)
}

// HandleEvent acts on a task run status event. Unknown event types and
// non-terminal statuses are ignored without writing.
func (c *Coordinator) HandleEvent(ctx context.Context, ev webhook.Event) (Result, error) {
	if !ev.IsStatusEvent() || !ev.IsTerminal() {
		c.logger.Debug("ignoring webhook event", "type", ev.Type, "status", ev.Data.Status, "run_id", ev.Data.RunID)
		return Result{Outcome: OutcomeIgnored, RunID: ev.Data.RunID}, nil
	}

	meta := ev.Data.Metadata
	switch ev.Data.Status {
	case webhook.StatusCompleted:
		if meta.Slug == "" || meta.Name == "" {
			return Result{}, ErrMissingMetadata
		}
		return c.Ingest(ctx, meta.Slug, meta.Name, ev.Data.RunID)

	default:
		if meta.Slug == "" {
			return Result{}, ErrMissingMetadata
		}
		name := meta.Name
		if name == "" {
			name = c.displayName(meta.Slug)
		}
		msg := ev.Data.ErrorMessage()
		if err := c.store.WriteStatus(meta.Slug, name, ev.Data.RunID, storage.StatusFailed, msg); err != nil {
			return Result{}, fmt.Errorf("recording failed run for %s: %w", meta.Slug, err)
		}
		c.logger.Info("task run failed", "slug", meta.Slug, "run_id", ev.Data.RunID, "error", msg)
		return Result{Outcome: OutcomeFailed, Slug: meta.Slug, RunID: ev.Data.RunID}, nil
	}
}

// Ingest fetches the result of runID and replaces the completed appearances
// of slug with it. A fetch that fails is recorded as a fetch_failed (non-2xx
// reply) or fetch_error (transport, decode or validation failure) status
// row and reported through the Outcome, not as an error. A fetch cut short
// by ctx writes nothing and returns the error so the event is redelivered.
//
// The write and the index refresh for a slug run under one lock, so the
// index always ends up holding the set the store kept.
func (c *Coordinator) Ingest(ctx context.Context, slug, name, runID string) (Result, error) {
	res, err := c.fetcher.GetResult(ctx, runID)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("fetching result for %s: %w", slug, ctx.Err())
		}
		status := storage.StatusFetchError
		if taskapi.IsStatusError(err) {
			status = storage.StatusFetchFailed
		}
		if werr := c.store.WriteStatus(slug, name, runID, status, err.Error()); werr != nil {
			return Result{}, fmt.Errorf("recording %s for %s: %w", status, slug, werr)
		}
		c.logger.Warn("fetching task result failed", "slug", slug, "run_id", runID, "status", status, "error", err)
		return Result{Outcome: Outcome(status), Slug: slug, RunID: runID}, nil
	}

	content := res.Output.Content
	appearances := Normalize(content.Appearances)
	run := storage.PersonRun{
		Slug:           slug,
		Name:           name,
		RunID:          runID,
		LifePeriods:    content.LifePeriods,
		SearchStrategy: content.SearchStrategy,
		Periods:        normalizePeriods(content.Periods),
	}

	mu := c.slugLock(slug)
	mu.Lock()
	defer mu.Unlock()

	if err := c.store.WriteCompletedAppearances(run, appearances); err != nil {
		return Result{}, fmt.Errorf("writing appearances for %s: %w", slug, err)
	}
	c.logger.Info("stored appearances", "slug", slug, "run_id", runID, "count", len(appearances))

	if c.index != nil {
		for i := range appearances {
			appearances[i].Slug = slug
			appearances[i].Name = name
			appearances[i].Status = storage.StatusCompleted
			appearances[i].RunID = runID
		}
		if err := c.index.IndexSlug(slug, appearances); err != nil {
			c.logger.Error("indexing appearances failed", "slug", slug, "error", err)
		}
	}

	return Result{Outcome: OutcomeCompleted, Slug: slug, RunID: runID, Appearances: len(appearances)}, nil
}

func (c *Coordinator) displayName(slug string) string {
	if c.names == nil {
		return slug
	}
	return c.names.DisplayName(slug, slug)
}
