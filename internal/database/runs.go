package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/linkscope/internal/authority"
)

// timeLayout is fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveRun stores a run and its authority scores in one transaction. An empty
// ID is assigned a new UUID; a zero CreatedAt is set to now.
func (db *DB) SaveRun(run *Run, scores []authority.Score) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("begin save run: %w", err)
	}

	_, err = tx.Exec(db.rebind(
		`INSERT INTO runs (id, kind, site_url, status, summary, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		run.ID, string(run.Kind), run.SiteURL, run.Status, run.Summary, string(run.Payload),
		run.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		tx.Rollback()
		return "", fmt.Errorf("inserting run: %w", err)
	}

	if err := db.insertScores(tx, run.ID, scores); err != nil {
		tx.Rollback()
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return run.ID, nil
}

// SaveAuthorityScores stores scores for an existing run.
func (db *DB) SaveAuthorityScores(runID string, scores []authority.Score) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin save scores: %w", err)
	}
	if err := db.insertScores(tx, runID, scores); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *DB) insertScores(tx *sql.Tx, runID string, scores []authority.Score) error {
	if len(scores) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(db.rebind(
		"INSERT INTO authority_scores (run_id, url, title, score) VALUES (?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("preparing score insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range scores {
		if _, err := stmt.Exec(runID, s.URL, s.Title, s.Score); err != nil {
			return fmt.Errorf("inserting score for %s: %w", s.URL, err)
		}
	}
	return nil
}

// GetRun returns a run with its payload, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow(db.rebind(
		`SELECT id, kind, site_url, status, summary, payload, created_at
		FROM runs WHERE id = ?`), id)

	var r Run
	var kind, payload, created string
	if err := row.Scan(&r.ID, &kind, &r.SiteURL, &r.Status, &r.Summary, &payload, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	r.Kind = Kind(kind)
	r.Payload = []byte(payload)
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	return &r, nil
}

// ListRuns returns runs newest first without payloads. limit <= 0 means all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := "SELECT id, kind, site_url, status, summary, created_at FROM runs ORDER BY created_at DESC, id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var kind, created string
		if err := rows.Scan(&r.ID, &kind, &r.SiteURL, &r.Status, &r.Summary, &created); err != nil {
			return nil, err
		}
		r.Kind = Kind(kind)
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest run of kind for a site, or nil.
func (db *DB) LatestRun(kind Kind, siteURL string) (*Run, error) {
	row := db.conn.QueryRow(db.rebind(
		"SELECT id FROM runs WHERE kind = ? AND site_url = ? ORDER BY created_at DESC LIMIT 1"),
		string(kind), siteURL)

	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return db.GetRun(id)
}

// GetAuthorityScores returns the scores stored for a run, highest first.
func (db *DB) GetAuthorityScores(runID string) ([]authority.Score, error) {
	rows, err := db.conn.Query(db.rebind(
		"SELECT url, title, score FROM authority_scores WHERE run_id = ? ORDER BY score DESC, url"), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []authority.Score
	for rows.Next() {
		var s authority.Score
		if err := rows.Scan(&s.URL, &s.Title, &s.Score); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// Stats holds aggregate database statistics.
type Stats struct {
	Runs            int
	Analyses        int
	Roadmaps        int
	AuthorityScores int
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM runs", &s.Runs},
		{"SELECT COUNT(*) FROM runs WHERE kind = 'analysis'", &s.Analyses},
		{"SELECT COUNT(*) FROM runs WHERE kind IN ('roadmap', 'replication')", &s.Roadmaps},
		{"SELECT COUNT(*) FROM authority_scores", &s.AuthorityScores},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
