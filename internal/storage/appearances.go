package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const appearanceColumns = `id, slug, name, url, title, type, date, period, keywords, source, status, run_id, last_updated, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppearance(sc rowScanner) (Appearance, error) {
	var a Appearance
	var keywords, lastUpdated string
	if err := sc.Scan(&a.ID, &a.Slug, &a.Name, &a.URL, &a.Title, &a.Type, &a.Date, &a.Period,
		&keywords, &a.Source, &a.Status, &a.RunID, &lastUpdated, &a.Error); err != nil {
		return Appearance{}, err
	}
	if err := json.Unmarshal([]byte(keywords), &a.Keywords); err != nil {
		return Appearance{}, fmt.Errorf("parsing keywords for %s: %w", a.ID, err)
	}
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	t, err := parseTime(lastUpdated)
	if err != nil {
		return Appearance{}, fmt.Errorf("parsing last_updated for %s: %w", a.ID, err)
	}
	a.LastUpdated = t
	return a, nil
}

func collectAppearances(rows *sql.Rows) ([]Appearance, error) {
	defer rows.Close()
	var out []Appearance
	for rows.Next() {
		a, err := scanAppearance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func encodeKeywords(kw []string) (string, error) {
	if kw == nil {
		kw = []string{}
	}
	b, err := json.Marshal(kw)
	if err != nil {
		return "", fmt.Errorf("encoding keywords: %w", err)
	}
	return string(b), nil
}

// WriteCompletedAppearances replaces the completed appearance set for
// run.Slug with appearances and records run as the slug's latest completed
// ingestion. The delete, the inserts and the run upsert share one
// transaction, so readers see either the old set or the new one.
// Earlier status rows for the slug are kept as history.
func (s *Store) WriteCompletedAppearances(run PersonRun, appearances []Appearance) error {
	if run.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	now := formatTime(s.now())
	periods := run.Periods
	if periods == nil {
		periods = []Period{}
	}
	periodsJSON, err := json.Marshal(periods)
	if err != nil {
		return fmt.Errorf("encoding periods: %w", err)
	}

	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM appearances WHERE slug = ? AND status = ?`, run.Slug, StatusCompleted); err != nil {
			return fmt.Errorf("deleting completed appearances: %w", err)
		}

		stmt, err := tx.Prepare(`INSERT INTO appearances (` + appearanceColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '')`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for _, a := range appearances {
			kw, err := encodeKeywords(a.Keywords)
			if err != nil {
				return err
			}
			id := a.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := stmt.Exec(id, run.Slug, run.Name, a.URL, a.Title, a.Type, a.Date, a.Period,
				kw, a.Source, StatusCompleted, run.RunID, now); err != nil {
				return fmt.Errorf("inserting appearance: %w", err)
			}
		}

		if _, err := tx.Exec(`
			INSERT INTO person_runs (slug, name, run_id, life_periods, search_strategy, periods, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(slug) DO UPDATE SET
				name = excluded.name,
				run_id = excluded.run_id,
				life_periods = excluded.life_periods,
				search_strategy = excluded.search_strategy,
				periods = excluded.periods,
				last_updated = excluded.last_updated`,
			run.Slug, run.Name, run.RunID, run.LifePeriods, run.SearchStrategy, string(periodsJSON), now,
		); err != nil {
			return fmt.Errorf("recording run: %w", err)
		}
		return nil
	})
}

// WriteStatus replaces the non-completed status row for slug with a new one.
// Completed appearances are untouched.
func (s *Store) WriteStatus(slug, name, runID, status, errMsg string) error {
	if slug == "" {
		return fmt.Errorf("slug is required")
	}
	if status == StatusCompleted {
		return fmt.Errorf("status %q cannot be written as a status row", status)
	}
	now := formatTime(s.now())
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM appearances WHERE slug = ? AND status != ?`, slug, StatusCompleted); err != nil {
			return fmt.Errorf("deleting status rows: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO appearances (id, slug, name, status, run_id, last_updated, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), slug, name, status, runID, now, errMsg,
		); err != nil {
			return fmt.Errorf("inserting status row: %w", err)
		}
		return nil
	})
}

// GetAppearances returns the completed appearances for slug, newest first.
// The result is empty when nothing has been ingested.
func (s *Store) GetAppearances(slug string) ([]Appearance, error) {
	rows, err := s.db.Query(`SELECT `+appearanceColumns+` FROM appearances
		WHERE slug = ? AND status = ?
		ORDER BY date DESC, title ASC`, slug, StatusCompleted)
	if err != nil {
		return nil, err
	}
	return collectAppearances(rows)
}

const latestStatusSource = `
	SELECT slug, name, run_id, status, error, last_updated FROM appearances WHERE status != 'completed'
	UNION ALL
	SELECT slug, name, run_id, 'completed', '', last_updated FROM person_runs`

func scanStatus(sc rowScanner) (Status, error) {
	var st Status
	var lastUpdated string
	if err := sc.Scan(&st.Slug, &st.Name, &st.RunID, &st.Status, &st.Error, &lastUpdated); err != nil {
		return Status{}, err
	}
	t, err := parseTime(lastUpdated)
	if err != nil {
		return Status{}, fmt.Errorf("parsing last_updated for %s: %w", st.Slug, err)
	}
	st.LastUpdated = t
	return st, nil
}

// GetStatus returns the most recent ingestion outcome for slug, whatever
// its status. It returns ErrNotFound when the slug was never ingested.
func (s *Store) GetStatus(slug string) (Status, error) {
	row := s.db.QueryRow(`SELECT slug, name, run_id, status, error, last_updated FROM (`+latestStatusSource+`)
		WHERE slug = ? ORDER BY last_updated DESC LIMIT 1`, slug)
	st, err := scanStatus(row)
	if err == sql.ErrNoRows {
		return Status{}, ErrNotFound
	}
	return st, err
}

// LatestStatuses returns the latest status of every ingested slug, limited
// to the given statuses when any are passed.
func (s *Store) LatestStatuses(statuses ...string) ([]Status, error) {
	query := `SELECT slug, name, run_id, status, error, last_updated FROM (
		SELECT *, ROW_NUMBER() OVER (PARTITION BY slug ORDER BY last_updated DESC) AS rn
		FROM (` + latestStatusSource + `)
	) WHERE rn = 1`
	var args []any
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY slug`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Status
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetPersonRun returns the latest completed run summary for slug.
func (s *Store) GetPersonRun(slug string) (PersonRun, error) {
	var r PersonRun
	var periods, lastUpdated string
	err := s.db.QueryRow(`SELECT slug, name, run_id, life_periods, search_strategy, periods, last_updated
		FROM person_runs WHERE slug = ?`, slug,
	).Scan(&r.Slug, &r.Name, &r.RunID, &r.LifePeriods, &r.SearchStrategy, &periods, &lastUpdated)
	if err == sql.ErrNoRows {
		return PersonRun{}, ErrNotFound
	}
	if err != nil {
		return PersonRun{}, err
	}
	if err := json.Unmarshal([]byte(periods), &r.Periods); err != nil {
		return PersonRun{}, fmt.Errorf("parsing periods: %w", err)
	}
	if r.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return PersonRun{}, fmt.Errorf("parsing last_updated: %w", err)
	}
	return r, nil
}

// Search returns completed appearances matching every criterion in f,
// newest first, capped at limit.
func (s *Store) Search(f Filter, limit int) ([]Appearance, error) {
	if f.IDs != nil && len(f.IDs) == 0 {
		return nil, nil
	}

	where := []string{"status = ?"}
	args := []any{StatusCompleted}

	if f.Slug != "" {
		where = append(where, "slug = ?")
		args = append(args, f.Slug)
	}
	if f.Type != "" {
		where = append(where, "lower(type) = lower(?)")
		args = append(args, f.Type)
	}
	for _, kw := range f.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		where = append(where, "EXISTS (SELECT 1 FROM json_each(appearances.keywords) WHERE lower(json_each.value) = lower(?))")
		args = append(args, kw)
	}
	if f.DateFrom != "" {
		where = append(where, "date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		// Compare only as many characters as the bound has, so "2024"
		// includes every date in 2024.
		where = append(where, "substr(date, 1, ?) <= ?")
		args = append(args, len(f.DateTo), f.DateTo)
	}
	if len(f.IDs) > 0 {
		// One JSON argument keeps large candidate sets under the bind limit.
		ids, err := json.Marshal(f.IDs)
		if err != nil {
			return nil, fmt.Errorf("encoding ids: %w", err)
		}
		where = append(where, "id IN (SELECT value FROM json_each(?))")
		args = append(args, string(ids))
	}

	query := `SELECT ` + appearanceColumns + ` FROM appearances WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date DESC, slug ASC, title ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppearances(rows)
}

// AllCompleted returns every completed appearance. Used to rebuild derived
// indexes at startup.
func (s *Store) AllCompleted() ([]Appearance, error) {
	rows, err := s.db.Query(`SELECT `+appearanceColumns+` FROM appearances WHERE status = ? ORDER BY slug, date DESC`, StatusCompleted)
	if err != nil {
		return nil, err
	}
	return collectAppearances(rows)
}

// Counts reports how many slugs have a completed run and how many completed
// appearances are stored.
func (s *Store) Counts() (people int, appearances int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM person_runs`).Scan(&people); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM appearances WHERE status = ?`, StatusCompleted).Scan(&appearances); err != nil {
		return 0, 0, err
	}
	return people, appearances, nil
}
