// Package search keeps a full-text index over completed appearances.
package search

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/kalambet/basedpeople/internal/storage"
)

// Source lists every completed appearance for a rebuild.
type Source interface {
	AllCompleted() ([]storage.Appearance, error)
}

// Index is an in-memory bleve index keyed by appearance id. The store stays
// the source of truth; the index is rebuilt from it on startup and refreshed
// per slug after each completed write.
type Index struct {
	mu     sync.Mutex
	idx    bleve.Index
	logger *slog.Logger
}

func NewMemOnly() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating search index: %w", err)
	}
	return &Index{idx: idx, logger: slog.Default()}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	slug := bleve.NewTextFieldMapping()
	slug.Analyzer = keyword.Name
	slug.Store = true

	text := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = standard.Name
		f.Store = false
		return f
	}

	dm.AddFieldMappingsAt("slug", slug)
	dm.AddFieldMappingsAt("name", text())
	dm.AddFieldMappingsAt("title", text())
	dm.AddFieldMappingsAt("type", text())
	dm.AddFieldMappingsAt("keywords", text())
	dm.AddFieldMappingsAt("source", text())

	im.DefaultMapping = dm
	return im
}

func document(a storage.Appearance) map[string]any {
	return map[string]any{
		"slug":     a.Slug,
		"name":     a.Name,
		"title":    a.Title,
		"type":     a.Type,
		"keywords": a.Keywords,
		"source":   a.Source,
	}
}

// Rebuild indexes every completed appearance from src.
func (x *Index) Rebuild(src Source) error {
	rows, err := src.AllCompleted()
	if err != nil {
		return fmt.Errorf("loading appearances: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	batch := x.idx.NewBatch()
	for _, a := range rows {
		if err := batch.Index(a.ID, document(a)); err != nil {
			return fmt.Errorf("indexing %s: %w", a.ID, err)
		}
	}
	if err := x.idx.Batch(batch); err != nil {
		return err
	}
	x.logger.Info("search index rebuilt", "documents", len(rows))
	return nil
}

// IndexSlug replaces the indexed documents of slug with appearances.
func (x *Index) IndexSlug(slug string, appearances []storage.Appearance) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	stale, err := x.idsForSlug(slug)
	if err != nil {
		return err
	}

	batch := x.idx.NewBatch()
	for _, id := range stale {
		batch.Delete(id)
	}
	for _, a := range appearances {
		if err := batch.Index(a.ID, document(a)); err != nil {
			return fmt.Errorf("indexing %s: %w", a.ID, err)
		}
	}
	return x.idx.Batch(batch)
}

func (x *Index) idsForSlug(slug string) ([]string, error) {
	tq := bleve.NewTermQuery(slug)
	tq.SetField("slug")

	var ids []string
	from, size := 0, pageSize
	for {
		req := bleve.NewSearchRequestOptions(tq, size, from, false)
		res, err := x.idx.Search(req)
		if err != nil {
			return nil, fmt.Errorf("listing documents for %s: %w", slug, err)
		}
		for _, h := range res.Hits {
			ids = append(ids, h.ID)
		}
		if len(res.Hits) < size {
			return ids, nil
		}
		from += size
	}
}

// Search returns the ids of appearances matching text, best match first.
// Every term must match in at least one field; the last term also matches
// as a prefix. A non-empty slug restricts hits to that person. A limit of
// zero or less returns every hit.
func (x *Index) Search(text, slug string, limit int) ([]string, error) {
	terms := tokenize(text)
	if len(terms) == 0 {
		return []string{}, nil
	}

	var must []bleveQuery.Query
	for i, term := range terms {
		var alts []bleveQuery.Query
		for field, boost := range fieldBoosts {
			mq := bleve.NewMatchQuery(term)
			mq.SetField(field)
			mq.SetBoost(boost)
			alts = append(alts, mq)
			if i == len(terms)-1 {
				pq := bleve.NewPrefixQuery(term)
				pq.SetField(field)
				pq.SetBoost(boost * 0.8)
				alts = append(alts, pq)
			}
		}
		must = append(must, bleve.NewDisjunctionQuery(alts...))
	}
	if slug != "" {
		tq := bleve.NewTermQuery(slug)
		tq.SetField("slug")
		must = append(must, tq)
	}
	q := bleve.NewConjunctionQuery(must...)

	x.mu.Lock()
	defer x.mu.Unlock()

	size := pageSize
	if limit > 0 && limit < size {
		size = limit
	}
	ids := []string{}
	for from := 0; ; from += size {
		res, err := x.idx.Search(bleve.NewSearchRequestOptions(q, size, from, false))
		if err != nil {
			return nil, fmt.Errorf("searching index: %w", err)
		}
		for _, h := range res.Hits {
			ids = append(ids, h.ID)
			if limit > 0 && len(ids) == limit {
				return ids, nil
			}
		}
		if len(res.Hits) < size {
			return ids, nil
		}
	}
}

// DocCount reports the number of indexed appearances.
func (x *Index) DocCount() (uint64, error) {
	return x.idx.DocCount()
}

func (x *Index) Close() error {
	return x.idx.Close()
}

// pageSize bounds a single bleve request while walking all hits.
const pageSize = 1000

var fieldBoosts = map[string]float64{
	"title":    4.0,
	"keywords": 3.0,
	"name":     2.0,
	"type":     1.5,
	"source":   0.5,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
