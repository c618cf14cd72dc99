// Package history persists applied migrations in the target database itself.
// The table is append-mostly: one row per plan version, with the rollback SQL
// captured at apply time so an operator can undo a migration without the model
// that produced it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"driftsync/internal/core"
)

// TableName is where migration history lives. It carries no internal prefix:
// it is part of the database's operational surface, and the engine excludes it
// from drift comparison explicitly.
const TableName = "driftsync_migrations"

// Store reads and writes migration history rows.
type Store struct {
	db      *sql.DB
	dialect core.Dialect
	log     *logrus.Entry
}

// New returns a history store over the given database.
func New(db *sql.DB, dialect core.Dialect, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{db: db, dialect: dialect, log: log}
}

// EnsureSchema creates the history table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	var stmt string
	switch s.dialect {
	case core.DialectMySQL:
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  version VARCHAR(32) NOT NULL PRIMARY KEY,
  description TEXT NOT NULL,
  applied_at DATETIME NOT NULL,
  rollback_sql TEXT,
  risk_level VARCHAR(16) NOT NULL,
  status VARCHAR(16) NOT NULL
) ENGINE=InnoDB`, TableName)
	default:
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  version VARCHAR(32) NOT NULL PRIMARY KEY,
  description TEXT NOT NULL,
  applied_at TIMESTAMP NOT NULL,
  rollback_sql TEXT,
  risk_level VARCHAR(16) NOT NULL,
  status VARCHAR(16) NOT NULL
)`, TableName)
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating history table %s: %w", TableName, err)
	}
	return nil
}

// placeholders rewrites ?-style placeholders to the dialect's syntax.
func (s *Store) placeholders(query string) string {
	if s.dialect != core.DialectPostgreSQL {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// conflictInsert renders the dialect's idempotent-insert form. Recording the
// same version twice must be a no-op, not an error: a resumed apply records
// again after a crash.
func (s *Store) conflictInsert() string {
	base := fmt.Sprintf(
		"INSERT%%s INTO %s (version, description, applied_at, rollback_sql, risk_level, status) VALUES (?, ?, ?, ?, ?, ?)%%s",
		TableName)
	switch s.dialect {
	case core.DialectMySQL:
		return fmt.Sprintf(base, " IGNORE", "")
	case core.DialectSQLite:
		return fmt.Sprintf(base, " OR IGNORE", "")
	default:
		return fmt.Sprintf(base, "", " ON CONFLICT (version) DO NOTHING")
	}
}

// Record writes one history row. Inserting an already-recorded version is a
// no-op.
func (s *Store) Record(ctx context.Context, rec *core.MigrationRecord) error {
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now().UTC()
	}
	query := s.placeholders(s.conflictInsert())
	_, err := s.db.ExecContext(ctx, query,
		rec.Version, rec.Description, rec.AppliedAt, rec.RollbackSQL, rec.Risk.String(), string(rec.Status))
	if err != nil {
		return fmt.Errorf("recording migration %s: %w", rec.Version, err)
	}
	return nil
}

// MarkStatus updates the status of an existing row, for rollbacks and for
// resumed applies that finally succeed.
func (s *Store) MarkStatus(ctx context.Context, version string, status core.RecordStatus) error {
	query := s.placeholders(fmt.Sprintf("UPDATE %s SET status = ? WHERE version = ?", TableName))
	res, err := s.db.ExecContext(ctx, query, string(status), version)
	if err != nil {
		return fmt.Errorf("updating migration %s status: %w", version, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("migration %s not found in history", version)
	}
	return nil
}

// HasApplied reports whether a plan version is already recorded as applied.
func (s *Store) HasApplied(ctx context.Context, version string) (bool, error) {
	query := s.placeholders(fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE version = ? AND status = ?", TableName))
	var n int
	if err := s.db.QueryRowContext(ctx, query, version, string(core.StatusApplied)).Scan(&n); err != nil {
		return false, fmt.Errorf("checking migration %s: %w", version, err)
	}
	return n > 0, nil
}

// List returns history rows newest first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int) ([]core.MigrationRecord, error) {
	query := fmt.Sprintf(
		"SELECT version, description, applied_at, rollback_sql, risk_level, status FROM %s ORDER BY applied_at DESC, version DESC", TableName)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing migration history: %w", err)
	}
	defer rows.Close()

	var out []core.MigrationRecord
	for rows.Next() {
		var rec core.MigrationRecord
		var rollback sql.NullString
		var risk, status string
		if err := rows.Scan(&rec.Version, &rec.Description, &rec.AppliedAt, &rollback, &risk, &status); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		rec.RollbackSQL = rollback.String
		rec.Risk = core.ParseRiskLevel(risk)
		rec.Status = core.RecordStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Latest returns the most recent record, or nil when history is empty.
func (s *Store) Latest(ctx context.Context) (*core.MigrationRecord, error) {
	recs, err := s.List(ctx, 1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}
