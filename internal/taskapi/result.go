package taskapi

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidResult marks a result payload whose shape cannot be trusted.
var ErrInvalidResult = errors.New("invalid task result")

type Result struct {
	Run    RunInfo `json:"run"`
	Output Output  `json:"output"`
}

type RunInfo struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	IsActive  bool   `json:"is_active"`
	Processor string `json:"processor,omitempty"`
}

type Output struct {
	Type    string  `json:"type"`
	Content Content `json:"content"`
}

type Content struct {
	Name           string       `json:"name"`
	LifePeriods    string       `json:"lifePeriods"`
	SearchStrategy string       `json:"searchStrategy"`
	Periods        []Period     `json:"periods,omitempty"`
	Appearances    []Appearance `json:"appearances"`
}

// Period is a named segment of a person's life declared by the result.
type Period struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type Appearance struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Type     string   `json:"type"`
	Date     string   `json:"date"`
	Period   string   `json:"period,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

var datePrefix = regexp.MustCompile(`^\d{4}`)

// Validate checks the fields the store depends on. Every appearance needs a
// url, title, type and a date that starts with a four digit year.
func (r *Result) Validate() error {
	if r.Output.Type != "" && r.Output.Type != "json" {
		return fmt.Errorf("%w: output type %q", ErrInvalidResult, r.Output.Type)
	}
	for i, a := range r.Output.Content.Appearances {
		switch {
		case a.URL == "":
			return fmt.Errorf("%w: appearance %d: url is required", ErrInvalidResult, i)
		case a.Title == "":
			return fmt.Errorf("%w: appearance %d: title is required", ErrInvalidResult, i)
		case a.Type == "":
			return fmt.Errorf("%w: appearance %d: type is required", ErrInvalidResult, i)
		case !datePrefix.MatchString(a.Date):
			return fmt.Errorf("%w: appearance %d: date %q is not a calendar date", ErrInvalidResult, i, a.Date)
		}
	}
	for i, p := range r.Output.Content.Periods {
		if p.Slug == "" && p.Name == "" {
			return fmt.Errorf("%w: period %d has neither slug nor name", ErrInvalidResult, i)
		}
	}
	return nil
}
