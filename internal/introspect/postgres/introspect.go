// Package postgres reads the live schema of a PostgreSQL database from the
// information_schema and pg_catalog views and normalizes it into the canonical
// snapshot form.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"driftsync/internal/core"
	"driftsync/internal/ddl"
	"driftsync/internal/introspect"
)

func init() {
	introspect.Register(core.DialectPostgreSQL, New)
}

type introspecter struct{}

// New returns the PostgreSQL introspecter.
func New() introspect.Introspecter {
	return &introspecter{}
}

func (i *introspecter) Snapshot(ctx context.Context, db *sql.DB) (*core.Snapshot, error) {
	if err := introspect.Ping(ctx, db, "postgresql"); err != nil {
		return nil, err
	}

	snap := core.NewSnapshot(core.DialectPostgreSQL)
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
		SELECT tablename
		FROM pg_tables
		WHERE schemaname = current_schema()
		ORDER BY tablename
	`)
	if err != nil {
		return &core.IntrospectionError{Dialect: core.DialectPostgreSQL, Detail: "listing tables", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return &core.IntrospectionError{Dialect: core.DialectPostgreSQL, Detail: "scanning table name", Err: err}
		}
		if ddl.IsInternalTable(name) {
			continue
		}
		snap.Tables[name] = &core.Table{Name: name}
	}
	return rows.Err()
}

func introspectColumns(ctx context.Context, db *sql.DB, t *core.Table) error {
	rows, err := db.QueryContext(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.character_maximum_length,
			c.numeric_precision,
			c.numeric_scale,
			c.is_nullable,
			c.column_default
		FROM information_schema.columns c
		WHERE c.table_schema = current_schema() AND c.table_name = $1
		ORDER BY c.ordinal_position
	`, t.Name)
	if err != nil {
		return &core.IntrospectionError{Dialect: core.DialectPostgreSQL, Table: t.Name, Detail: "querying columns", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var name, dataType, nullable string
		var charLen, numPrec, numScale sql.NullInt64
		var defaultVal sql.NullString
		if err := rows.Scan(&name, &dataType, &charLen, &numPrec, &numScale, &nullable, &defaultVal); err != nil {
			return &core.IntrospectionError{Dialect: core.DialectPostgreSQL, Table: t.Name, Detail: "scanning column", Err: err}
		}

		col := &core.Column{
			Name:     name,
			Type:     core.NormalizeType(composeType(dataType, charLen, numPrec, numScale)),
			Nullable: nullable == "YES",
		}
		if v, ok := normalizeDefault(defaultVal); ok {
			col.DefaultValue = &v
		}

		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return &core.IntrospectionError{Dialect: core.DialectPostgreSQL, Table: t.Name, Detail: "iterating columns", Err: err}
	}

	return markPrimaryKeys(ctx, db, t)
}

// composeType reassembles the parameterized spelling information_schema splits
// into separate columns.
func composeType(dataType string, charLen, numPrec, numScale sql.NullInt64) string {
	switch strings.ToLower(dataType) {
	case "character varying", "character":
		if charLen.Valid {
			return fmt.Sprintf("%s(%d)", dataType, charLen.Int64)
		}
	case "numeric":
		if numPrec.Valid && numScale.Valid && numScale.Int64 > 0 {
			return fmt.Sprintf("numeric(%d,%d)", numPrec.Int64, numScale.Int64)
		}
		if numPrec.Valid {
			return fmt.Sprintf("numeric(%d)", numPrec.Int64)
		}
	}
	return dataType
}

var reCastSuffix = regexp.MustCompile(`::[a-zA-Z_ ]+(\([0-9, ]*\))?$`)

// normalizeDefault strips PostgreSQL's cast decoration from a stored default
// ('active'::character varying becomes active). Sequence-backed defaults are
// dropped entirely: they belong to the serial machinery, not the model.
func normalizeDefault(v sql.NullString) (string, bool) {
	if !v.Valid {
		return "", false
	}
	s := strings.TrimSpace(v.String)
	if s == "" || strings.HasPrefix(s, "nextval(") {
		return "", false
	}
	s = reCastSuffix.ReplaceAllString(s, "")
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s, true
}

func markPrimaryKeys(ctx context.Context, db *sql.DB, t *core.Table) error {
	rows, err := db.QueryContext(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
		WHERE n.nspname = current_schema() AND c.relname = $1 AND i.indisprimary
	`, t.Name)
	if err != nil {
		return &core.IntrospectionError{Dialect: core.DialectPostgreSQL, Table: t.Name, Detail: "querying primary key", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return &core.IntrospectionError{Dialect: core.DialectPostgreSQL, Table: t.Name, Detail: "scanning primary key", Err: err}
		}
		if c := t.FindColumn(name); c != nil {
			c.PrimaryKey = true
		}
	}
	return rows.Err()
}

func introspectIndexes(ctx context.Context, db *sql.DB, t *core.Table) error {
	rows, err := db.QueryContext(ctx, `
		SELECT
			ic.relname,
			ix.indisunique,
			string_agg(a.attname, ',' ORDER BY x.ordinality)
		FROM pg_index ix
		JOIN pg_class ic ON ic.oid = ix.indexrelid
		JOIN pg_class tc ON tc.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = tc.relnamespace
		JOIN unnest(ix.indkey) WITH ORDINALITY AS x(attnum, ordinality) ON true
		JOIN pg_attribute a ON a.attrelid = tc.oid AND a.attnum = x.attnum
		WHERE n.nspname = current_schema() AND tc.relname = $1 AND NOT ix.indisprimary
		GROUP BY ic.relname, ix.indisunique
		ORDER BY ic.relname
	`, t.Name)
	if err != nil {
		return &core.IntrospectionError{Dialect: core.DialectPostgreSQL, Table: t.Name, Detail: "querying indexes", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var name, columns string
		var unique bool
		if err := rows.Scan(&name, &unique, &columns); err != nil {
			return &core.IntrospectionError{Dialect: core.DialectPostgreSQL, Table: t.Name, Detail: "scanning index", Err: err}
		}

		idx := &core.Index{Name: name, Unique: unique}
		for _, col := range strings.Split(columns, ",") {
			if col = strings.TrimSpace(col); col != "" {
				idx.Columns = append(idx.Columns, col)
			}
		}

		// UNIQUE column constraints materialize as single-column unique
		// indexes; fold them back onto the column so the differ sees the
		// same shape the model registry produces.
		if unique && len(idx.Columns) == 1 {
			if c := t.FindColumn(idx.Columns[0]); c != nil && strings.HasSuffix(name, "_key") {
				c.Unique = true
				continue
			}
		}

		t.Indexes = append(t.Indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return &core.IntrospectionError{Dialect: core.DialectPostgreSQL, Table: t.Name, Detail: "iterating indexes", Err: err}
	}
	return nil
}
