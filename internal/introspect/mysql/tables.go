package mysql

import (
	"driftsync/internal/core"
	"driftsync/internal/ddl"
)

func introspectTables(ic *introspectCtx, snap *core.Snapshot) error {
	rows, err := ic.db.QueryContext(ic.ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return &core.IntrospectionError{Dialect: core.DialectMySQL, Detail: "listing tables", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return &core.IntrospectionError{Dialect: core.DialectMySQL, Detail: "scanning table name", Err: err}
		}
		if ddl.IsInternalTable(name) {
			continue
		}
		snap.Tables[name] = &core.Table{Name: name}
	}
	if err := rows.Err(); err != nil {
		return &core.IntrospectionError{Dialect: core.DialectMySQL, Detail: "iterating tables", Err: err}
	}

	for _, t := range snap.Tables {
		if err := introspectColumns(ic, t); err != nil {
			return err
		}
		if err := introspectIndexes(ic, t); err != nil {
			return err
		}
	}
	return nil
}
