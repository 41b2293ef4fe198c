package storage

import (
	"database/sql"
	"fmt"
)

// ToggleFollow flips the follow relation between userID and slug and
// returns whether the user follows slug afterwards.
func (s *Store) ToggleFollow(userID, slug string) (bool, error) {
	if userID == "" || slug == "" {
		return false, fmt.Errorf("user id and slug are required")
	}
	var following bool
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM follows WHERE user_id = ? AND slug = ?`, userID, slug)
		if err != nil {
			return fmt.Errorf("deleting follow: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			following = false
			return nil
		}
		if _, err := tx.Exec(`INSERT INTO follows (user_id, slug, created_at) VALUES (?, ?, ?)`,
			userID, slug, formatTime(s.now())); err != nil {
			return fmt.Errorf("inserting follow: %w", err)
		}
		following = true
		return nil
	})
	return following, err
}

// IsFollowing reports whether userID follows slug.
func (s *Store) IsFollowing(userID, slug string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM follows WHERE user_id = ? AND slug = ?`, userID, slug).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetFollowedSlugs returns the slugs userID follows, oldest follow first.
func (s *Store) GetFollowedSlugs(userID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT slug FROM follows WHERE user_id = ? ORDER BY created_at ASC, slug ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// GetFeedAppearances merges the completed appearances of every slug userID
// follows, newest first, capped at limit. A user following nobody gets an
// empty result.
func (s *Store) GetFeedAppearances(userID string, limit int) ([]Appearance, error) {
	rows, err := s.db.Query(`SELECT a.id, a.slug, a.name, a.url, a.title, a.type, a.date, a.period, a.keywords,
			a.source, a.status, a.run_id, a.last_updated, a.error
		FROM appearances a
		JOIN follows f ON f.slug = a.slug
		WHERE f.user_id = ? AND a.status = ?
		ORDER BY a.date DESC, a.slug ASC, a.title ASC
		LIMIT ?`, userID, StatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	return collectAppearances(rows)
}
