package mysql

import (
	"database/sql"

	"driftsync/internal/core"
)

func introspectColumns(ic *introspectCtx, t *core.Table) error {
	rows, err := ic.db.QueryContext(ic.ctx, `
		SELECT
			c.column_name,
			c.column_type,
			c.is_nullable,
			c.column_default,
			c.column_key
		FROM information_schema.columns c
		WHERE c.table_schema = DATABASE() AND c.table_name = ?
		ORDER BY c.ordinal_position
	`, t.Name)
	if err != nil {
		return &core.IntrospectionError{Dialect: core.DialectMySQL, Table: t.Name, Detail: "querying columns", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var name, colType, nullable, colKey sql.NullString
		var defaultVal sql.NullString
		if err := rows.Scan(&name, &colType, &nullable, &defaultVal, &colKey); err != nil {
			return &core.IntrospectionError{Dialect: core.DialectMySQL, Table: t.Name, Detail: "scanning column", Err: err}
		}

		col := &core.Column{
			Name:       name.String,
			Type:       core.NormalizeType(colType.String),
			Nullable:   nullable.String == "YES",
			PrimaryKey: colKey.String == "PRI",
			Unique:     colKey.String == "UNI",
		}
		if defaultVal.Valid {
			v := defaultVal.String
			col.DefaultValue = &v
		}

		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return &core.IntrospectionError{Dialect: core.DialectMySQL, Table: t.Name, Detail: "iterating columns", Err: err}
	}
	return nil
}
