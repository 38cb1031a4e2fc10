package database

// Migration represents a single schema migration step. Statements must be
// valid for both SQLite and PostgreSQL.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "runs and authority scores",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    site_url TEXT NOT NULL,
    status TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL,
    created_at TEXT NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
			`CREATE TABLE IF NOT EXISTS authority_scores (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    score DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, url)
)`,
		},
	},
	{
		Version:     2,
		Description: "site lookup index",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site_url, kind)`,
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
