// Package mysql reads the live schema of a MySQL database through
// information_schema and normalizes it into the canonical snapshot form.
package mysql

import (
	"context"
	"database/sql"

	"driftsync/internal/core"
	"driftsync/internal/introspect"
)

func init() {
	introspect.Register(core.DialectMySQL, New)
}

type introspecter struct{}

type introspectCtx struct {
	db  *sql.DB
	ctx context.Context
}

// New returns the MySQL introspecter.
func New() introspect.Introspecter {
	return &introspecter{}
}

func (i *introspecter) Snapshot(ctx context.Context, db *sql.DB) (*core.Snapshot, error) {
	if err := introspect.Ping(ctx, db, "mysql"); err != nil {
		return nil, err
	}

	ic := &introspectCtx{db: db, ctx: ctx}
	snap := core.NewSnapshot(core.DialectMySQL)
	if err := introspectTables(ic, snap); err != nil {
		return nil, err
	}
	return snap, nil
}
