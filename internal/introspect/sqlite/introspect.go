// Package sqlite reads the live schema of a SQLite database through
// sqlite_master and the table_info/index_list pragmas and normalizes it into
// the canonical snapshot form.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"driftsync/internal/core"
	"driftsync/internal/ddl"
	"driftsync/internal/introspect"
)

func init() {
	introspect.Register(core.DialectSQLite, New)
}

type introspecter struct{}

// New returns the SQLite introspecter.
func New() introspect.Introspecter {
	return &introspecter{}
}

func (i *introspecter) Snapshot(ctx context.Context, db *sql.DB) (*core.Snapshot, error) {
	if err := introspect.Ping(ctx, db, "sqlite"); err != nil {
		return nil, err
	}

	snap := core.NewSnapshot(core.DialectSQLite)
	if err := introspectTables(ctx, db, snap); err != nil {
		return nil, err
	}
	for _, t := range snap.Tables {
		if err := introspectColumns(ctx, db, t); err != nil {
			return nil, err
		}
		if err := introspectIndexes(ctx, db, t); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func introspectTables(ctx context.Context, db *sql.DB, snap *core.Snapshot) error {
	rows, err := db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return &core.IntrospectionError{Dialect: core.DialectSQLite, Detail: "listing tables", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return &core.IntrospectionError{Dialect: core.DialectSQLite, Detail: "scanning table name", Err: err}
		}
		if ddl.IsInternalTable(name) {
			continue
		}
		snap.Tables[name] = &core.Table{Name: name}
	}
	return rows.Err()
}

func introspectColumns(ctx context.Context, db *sql.DB, t *core.Table) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", t.Name))
	if err != nil {
		return &core.IntrospectionError{Dialect: core.DialectSQLite, Table: t.Name, Detail: "querying columns", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var defaultVal sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return &core.IntrospectionError{Dialect: core.DialectSQLite, Table: t.Name, Detail: "scanning column", Err: err}
		}

		col := &core.Column{
			Name:       name,
			Type:       core.NormalizeType(colType),
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
		}
		if defaultVal.Valid {
			v := unquoteDefault(defaultVal.String)
			col.DefaultValue = &v
		}

		t.Columns = append(t.Columns, col)
	}
	return rows.Err()
}

// unquoteDefault strips the quoting sqlite stores around literal defaults.
func unquoteDefault(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	return v
}

func introspectIndexes(ctx context.Context, db *sql.DB, t *core.Table) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%q)", t.Name))
	if err != nil {
		return &core.IntrospectionError{Dialect: core.DialectSQLite, Table: t.Name, Detail: "querying indexes", Err: err}
	}

	type indexMeta struct {
		name   string
		unique bool
		origin string
	}
	var metas []indexMeta
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return &core.IntrospectionError{Dialect: core.DialectSQLite, Table: t.Name, Detail: "scanning index", Err: err}
		}
		// Autoindexes back PRIMARY KEY constraints and carry origin pk.
		if origin == "pk" {
			continue
		}
		metas = append(metas, indexMeta{name: name, unique: unique == 1, origin: origin})
	}
	closeErr := rows.Err()
	rows.Close()
	if closeErr != nil {
		return &core.IntrospectionError{Dialect: core.DialectSQLite, Table: t.Name, Detail: "iterating indexes", Err: closeErr}
	}

	for _, meta := range metas {
		cols, err := indexColumns(ctx, db, meta.name)
		if err != nil {
			return &core.IntrospectionError{Dialect: core.DialectSQLite, Table: t.Name, Detail: "querying index columns", Err: err}
		}

		// A UNIQUE column constraint shows up as an origin-u autoindex; fold
		// it onto the column instead of reporting a separate index.
		if meta.origin == "u" && len(cols) == 1 {
			if c := t.FindColumn(cols[0]); c != nil {
				c.Unique = true
				continue
			}
		}

		t.Indexes = append(t.Indexes, &core.Index{
			Name:    meta.name,
			Columns: cols,
			Unique:  meta.unique,
		})
	}
	return nil
}

func indexColumns(ctx context.Context, db *sql.DB, index string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%q)", index))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}
