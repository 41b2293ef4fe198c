package query

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/basedpeople/internal/catalog"
	"github.com/kalambet/basedpeople/internal/storage"
)

// ErrUnknownPerson is returned for slugs missing from the catalog.
var ErrUnknownPerson = errors.New("unknown person")

// Store is the read side of the appearance store.
type Store interface {
	GetAppearances(slug string) ([]storage.Appearance, error)
	GetPersonRun(slug string) (storage.PersonRun, error)
	GetStatus(slug string) (storage.Status, error)
	GetFeedAppearances(userID string, limit int) ([]storage.Appearance, error)
	Search(f storage.Filter, limit int) ([]storage.Appearance, error)
}

// TextIndex resolves free text to appearance ids, optionally within one
// slug. A limit of zero or less means every match.
type TextIndex interface {
	Search(text, slug string, limit int) ([]string, error)
}

type Service struct {
	store   Store
	catalog *catalog.Catalog
	index   TextIndex
	logger  *slog.Logger
}

func NewService(store Store, cat *catalog.Catalog) *Service {
	return &Service{store: store, catalog: cat, logger: slog.Default()}
}

// SetIndex enables free-text search.
func (s *Service) SetIndex(ix TextIndex) {
	s.index = ix
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Person assembles the page for a catalog person. A person with no data
// gets an empty page, not an error.
func (s *Service) Person(slug string) (PersonPage, error) {
	person, ok := s.catalog.Lookup(slug)
	if !ok {
		return PersonPage{}, ErrUnknownPerson
	}

	apps, err := s.store.GetAppearances(slug)
	if err != nil {
		return PersonPage{}, fmt.Errorf("loading appearances for %s: %w", slug, err)
	}

	var run *storage.PersonRun
	r, err := s.store.GetPersonRun(slug)
	switch {
	case err == nil:
		run = &r
	case !errors.Is(err, storage.ErrNotFound):
		return PersonPage{}, fmt.Errorf("loading run for %s: %w", slug, err)
	}

	page := BuildPersonPage(person, run, apps)

	st, err := s.store.GetStatus(slug)
	switch {
	case err == nil:
		page.Status = &st
	case !errors.Is(err, storage.ErrNotFound):
		return PersonPage{}, fmt.Errorf("loading status for %s: %w", slug, err)
	}
	return page, nil
}

// SlugData is the public JSON document for one slug.
type SlugData struct {
	Status      string     `json:"status"`
	Result      SlugResult `json:"result"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

type SlugResult struct {
	Name        string               `json:"name"`
	Appearances []storage.Appearance `json:"appearances"`
}

// SlugData returns the completed appearances for slug. It returns
// storage.ErrNotFound when no completed ingestion exists.
func (s *Service) SlugData(slug string) (SlugData, error) {
	apps, err := s.store.GetAppearances(slug)
	if err != nil {
		return SlugData{}, fmt.Errorf("loading appearances for %s: %w", slug, err)
	}
	run, err := s.store.GetPersonRun(slug)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return SlugData{}, fmt.Errorf("loading run for %s: %w", slug, err)
	}
	if len(apps) == 0 && errors.Is(err, storage.ErrNotFound) {
		return SlugData{}, storage.ErrNotFound
	}

	data := SlugData{
		Status:      storage.StatusCompleted,
		Result:      SlugResult{Name: run.Name, Appearances: SortByDateDesc(apps)},
		LastUpdated: run.LastUpdated,
	}
	for _, a := range apps {
		if data.Result.Name == "" {
			data.Result.Name = a.Name
		}
		if a.LastUpdated.After(data.LastUpdated) {
			data.LastUpdated = a.LastUpdated
		}
	}
	if data.Result.Name == "" {
		data.Result.Name = s.catalog.DisplayName(slug, slug)
	}
	return data, nil
}

// FeedEntry is an appearance annotated with its person's display name.
type FeedEntry struct {
	storage.Appearance
	PersonName string `json:"person_name"`
}

// DefaultFeedLimit caps the feed when the caller sets no limit.
const DefaultFeedLimit = 50

// Feed returns the newest appearances of the people userID follows.
func (s *Service) Feed(userID string, limit int) ([]FeedEntry, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	apps, err := s.store.GetFeedAppearances(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading feed: %w", err)
	}
	out := make([]FeedEntry, 0, len(apps))
	for _, a := range apps {
		out = append(out, FeedEntry{
			Appearance: a,
			PersonName: s.catalog.DisplayName(a.Slug, a.Name),
		})
	}
	return out, nil
}

// FollowEntry names one followed person.
type FollowEntry struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Follows decorates followed slugs with catalog names.
func (s *Service) Follows(slugs []string) []FollowEntry {
	out := make([]FollowEntry, 0, len(slugs))
	for _, slug := range slugs {
		out = append(out, FollowEntry{Slug: slug, Name: s.catalog.DisplayName(slug, slug)})
	}
	return out
}

// SearchRequest combines store filters with optional free text.
type SearchRequest struct {
	storage.Filter
	Text  string
	Limit int
}

// DefaultSearchLimit caps results when the caller sets no limit.
const DefaultSearchLimit = 50

// Search filters completed appearances. When Text is set the text index
// picks every matching row within the slug filter first and the remaining
// filters apply to those.
func (s *Service) Search(req SearchRequest) ([]storage.Appearance, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	f := req.Filter
	if req.Text != "" {
		if s.index == nil {
			return nil, errors.New("free-text search is not enabled")
		}
		ids, err := s.index.Search(req.Text, req.Slug, 0)
		if err != nil {
			return nil, fmt.Errorf("searching index: %w", err)
		}
		f.IDs = ids
		if f.IDs == nil {
			f.IDs = []string{}
		}
	}

	rows, err := s.store.Search(f, limit)
	if err != nil {
		return nil, fmt.Errorf("searching appearances: %w", err)
	}
	return rows, nil
}
