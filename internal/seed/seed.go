// Package seed starts one appearance research run per catalog person.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/basedpeople/internal/catalog"
	"github.com/kalambet/basedpeople/internal/taskapi"
)

// RunCreator starts task runs.
type RunCreator interface {
	CreateRun(ctx context.Context, req taskapi.RunRequest) (taskapi.RunResponse, error)
}

type PersonResult struct {
	Person  string `json:"person"`
	Slug    string `json:"slug"`
	Success bool   `json:"success"`
	RunID   string `json:"run_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Summary reports one seed pass. Success is true once every person was
// attempted; per-person failures are listed in Results.
type Summary struct {
	Success   bool           `json:"success"`
	Processed int            `json:"processed"`
	Results   []PersonResult `json:"results"`
}

type Seeder struct {
	creator     RunCreator
	processor   string
	webhookURL  string
	concurrency int
	logger      *slog.Logger
}

// NewSeeder creates a Seeder that asks for webhooks at publicURL + "/webhook".
func NewSeeder(creator RunCreator, processor, publicURL string, concurrency int) *Seeder {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Seeder{
		creator:     creator,
		processor:   processor,
		webhookURL:  WebhookURL(publicURL),
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// WebhookURL is the callback address registered with every run.
func WebhookURL(publicURL string) string {
	return strings.TrimRight(publicURL, "/") + "/webhook"
}

// Run creates a task run for each person. A failure for one person does
// not stop the others. Results keep the order of people.
func (s *Seeder) Run(ctx context.Context, people []catalog.Person) Summary {
	results := make([]PersonResult, len(people))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, p := range people {
		g.Go(func() error {
			results[i] = s.seedOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.logger.Info("seed finished", "processed", len(results), "failed", failed)

	return Summary{Success: true, Processed: len(results), Results: results}
}

func (s *Seeder) seedOne(ctx context.Context, p catalog.Person) PersonResult {
	res := PersonResult{Person: p.Name, Slug: p.Slug}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	req := taskapi.SearchTaskRequest(p.Name, p.Slug, s.processor, s.webhookURL)
	run, err := s.creator.CreateRun(ctx, req)
	if err != nil {
		s.logger.Warn("creating task run failed", "slug", p.Slug, "error", err)
		res.Error = describe(err)
		return res
	}

	res.Success = true
	res.RunID = run.RunID
	res.Status = run.Status
	return res
}

func describe(err error) string {
	var se *taskapi.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("HTTP %d: %s", se.Code, se.Body)
	}
	return err.Error()
}
