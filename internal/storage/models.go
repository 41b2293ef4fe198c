package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Appearance row statuses. Only completed rows are real appearances; the
// others record the outcome of one ingestion attempt.
const (
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusFetchFailed = "fetch_failed"
	StatusFetchError  = "fetch_error"
	StatusError       = "error"
)

type Appearance struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	Date        string    `json:"date"`
	Period      string    `json:"period,omitempty"`
	Keywords    []string  `json:"keywords"`
	Source      string    `json:"source,omitempty"`
	Status      string    `json:"status"`
	RunID       string    `json:"run_id"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
}

// Period is a declared life period of a person, in declaration order.
type Period struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// PersonRun summarizes the latest completed ingestion for a slug.
type PersonRun struct {
	Slug           string    `json:"slug"`
	Name           string    `json:"name"`
	RunID          string    `json:"run_id"`
	LifePeriods    string    `json:"life_periods,omitempty"`
	SearchStrategy string    `json:"search_strategy,omitempty"`
	Periods        []Period  `json:"periods,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Status is the most recent ingestion outcome for a slug.
type Status struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Filter narrows Search. Empty fields match everything. Keywords must all be
// present on a row. DateFrom and DateTo are inclusive and may be a year or a
// year-month prefix. A non-nil IDs restricts results to those row ids.
type Filter struct {
	Slug     string
	Type     string
	Keywords []string
	DateFrom string
	DateTo   string
	IDs      []string
}

type Follow struct {
	UserID    string
	Slug      string
	CreatedAt time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
