// Package query prepares read-side views over the appearance store.
package query

import (
	"sort"
	"strings"

	"github.com/kalambet/basedpeople/internal/catalog"
	"github.com/kalambet/basedpeople/internal/storage"
)

// UnassignedBucket collects appearances whose period matches no declared
// period.
const UnassignedBucket = "unassigned"

type Bucket struct {
	Slug        string               `json:"slug"`
	Name        string               `json:"name"`
	Appearances []storage.Appearance `json:"appearances"`
}

type TypeGroup struct {
	Type        string               `json:"type"`
	Appearances []storage.Appearance `json:"appearances"`
}

type Stats struct {
	Total      int    `json:"total"`
	Types      int    `json:"types"`
	Keywords   int    `json:"keywords"`
	LatestYear string `json:"latest_year,omitempty"`
}

// PersonPage is everything the person page renders.
type PersonPage struct {
	Person         catalog.Person       `json:"person"`
	Appearances    []storage.Appearance `json:"appearances"`
	Buckets        []Bucket             `json:"buckets,omitempty"`
	Groups         []TypeGroup          `json:"groups"`
	Stats          Stats                `json:"stats"`
	LifePeriods    string               `json:"life_periods,omitempty"`
	SearchStrategy string               `json:"search_strategy,omitempty"`
	Status         *storage.Status      `json:"status,omitempty"`
}

// BuildPersonPage sorts appearances newest first and derives buckets, type
// groups and stats. run may be nil when nothing has been ingested.
func BuildPersonPage(person catalog.Person, run *storage.PersonRun, appearances []storage.Appearance) PersonPage {
	sorted := SortByDateDesc(appearances)
	page := PersonPage{
		Person:      person,
		Appearances: sorted,
		Groups:      GroupByType(sorted),
		Stats:       ComputeStats(sorted),
	}
	if run != nil {
		page.LifePeriods = run.LifePeriods
		page.SearchStrategy = run.SearchStrategy
		if len(run.Periods) > 0 {
			page.Buckets = BucketByPeriod(sorted, run.Periods)
		}
	}
	return page
}

// SortByDateDesc returns a copy of appearances ordered by date descending.
// Dates compare as strings, so "2024" sorts after "2023-12-31".
func SortByDateDesc(appearances []storage.Appearance) []storage.Appearance {
	out := make([]storage.Appearance, len(appearances))
	copy(out, appearances)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	return out
}

// BucketByPeriod partitions appearances into the declared periods, in
// declaration order, followed by an unassigned bucket. An appearance
// belongs to the first period whose slug, then name, equals its period
// label ignoring case. The unassigned bucket is always present.
func BucketByPeriod(appearances []storage.Appearance, periods []storage.Period) []Bucket {
	buckets := make([]Bucket, 0, len(periods)+1)
	for _, p := range periods {
		buckets = append(buckets, Bucket{Slug: p.Slug, Name: p.Name, Appearances: []storage.Appearance{}})
	}
	unassigned := Bucket{Slug: UnassignedBucket, Name: "Unassigned", Appearances: []storage.Appearance{}}

	for _, a := range appearances {
		i := matchPeriod(a.Period, periods)
		if i < 0 {
			unassigned.Appearances = append(unassigned.Appearances, a)
			continue
		}
		buckets[i].Appearances = append(buckets[i].Appearances, a)
	}
	return append(buckets, unassigned)
}

func matchPeriod(label string, periods []storage.Period) int {
	label = strings.TrimSpace(label)
	if label == "" {
		return -1
	}
	for i, p := range periods {
		if p.Slug != "" && strings.EqualFold(label, p.Slug) {
			return i
		}
	}
	for i, p := range periods {
		if p.Name != "" && strings.EqualFold(label, p.Name) {
			return i
		}
	}
	return -1
}

// GroupByType groups appearances by type in first-seen order, keeping the
// input order inside each group.
func GroupByType(appearances []storage.Appearance) []TypeGroup {
	groups := []TypeGroup{}
	index := map[string]int{}
	for _, a := range appearances {
		i, ok := index[a.Type]
		if !ok {
			i = len(groups)
			index[a.Type] = i
			groups = append(groups, TypeGroup{Type: a.Type})
		}
		groups[i].Appearances = append(groups[i].Appearances, a)
	}
	return groups
}

// ComputeStats counts appearances, distinct types and distinct keywords
// (case-insensitive) and finds the most recent year.
func ComputeStats(appearances []storage.Appearance) Stats {
	types := map[string]bool{}
	keywords := map[string]bool{}
	var latest string
	for _, a := range appearances {
		types[a.Type] = true
		for _, k := range a.Keywords {
			keywords[strings.ToLower(k)] = true
		}
		if len(a.Date) >= 4 && a.Date[:4] > latest {
			latest = a.Date[:4]
		}
	}
	return Stats{
		Total:      len(appearances),
		Types:      len(types),
		Keywords:   len(keywords),
		LatestYear: latest,
	}
}
