package ingest

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/kalambet/basedpeople/internal/storage"
	"github.com/kalambet/basedpeople/internal/taskapi"
)

// Normalize converts validated result appearances into store rows. Each row
// gets a fresh id, trimmed fields, deduplicated keywords and the registrable
// domain of its URL as source.
func Normalize(in []taskapi.Appearance) []storage.Appearance {
	out := make([]storage.Appearance, 0, len(in))
	for _, a := range in {
		u := strings.TrimSpace(a.URL)
		out = append(out, storage.Appearance{
			ID:       uuid.NewString(),
			URL:      u,
			Title:    strings.TrimSpace(a.Title),
			Type:     strings.TrimSpace(a.Type),
			Date:     strings.TrimSpace(a.Date),
			Period:   strings.TrimSpace(a.Period),
			Keywords: dedupeKeywords(a.Keywords),
			Source:   SourceDomain(u),
		})
	}
	return out
}

// SourceDomain returns the eTLD+1 of rawURL ("youtube.com" for
// "https://www.youtube.com/watch?v=x"), or the bare host when it has none.
func SourceDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

func dedupeKeywords(kw []string) []string {
	out := make([]string, 0, len(kw))
	seen := make(map[string]bool, len(kw))
	for _, k := range kw {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out
}

func normalizePeriods(in []taskapi.Period) []storage.Period {
	out := make([]storage.Period, 0, len(in))
	for _, p := range in {
		out = append(out, storage.Period{
			Slug: strings.TrimSpace(p.Slug),
			Name: strings.TrimSpace(p.Name),
		})
	}
	return out
}
