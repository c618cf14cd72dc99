package mysql

import (
	"database/sql"
	"strings"

	"driftsync/internal/core"
)

func introspectIndexes(ic *introspectCtx, t *core.Table) error {
	rows, err := ic.db.QueryContext(ic.ctx, `
		SELECT
			i.index_name,
			i.non_unique,
			GROUP_CONCAT(c.column_name ORDER BY c.seq_in_index SEPARATOR ', ')
		FROM information_schema.statistics i
		JOIN information_schema.statistics c
			ON i.table_schema = c.table_schema
			AND i.table_name = c.table_name
			AND i.index_name = c.index_name
		WHERE i.table_schema = DATABASE() AND i.table_name = ?
		GROUP BY i.index_name, i.non_unique
	`, t.Name)
	if err != nil {
		return &core.IntrospectionError{Dialect: core.DialectMySQL, Table: t.Name, Detail: "querying indexes", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var indexName, nonUnique, columns sql.NullString
		if err := rows.Scan(&indexName, &nonUnique, &columns); err != nil {
			return &core.IntrospectionError{Dialect: core.DialectMySQL, Table: t.Name, Detail: "scanning index", Err: err}
		}
		if indexName.String == "PRIMARY" {
			continue
		}

		idx := &core.Index{
			Name:   indexName.String,
			Unique: nonUnique.String == "0",
		}
		for _, col := range strings.Split(columns.String, ", ") {
			if col != "" {
				idx.Columns = append(idx.Columns, col)
			}
		}

		// Single-column unique indexes already surface as the column's Unique
		// flag; listing them twice would make the differ see phantom drift.
		if idx.Unique && len(idx.Columns) == 1 {
			if c := t.FindColumn(idx.Columns[0]); c != nil && c.Unique {
				continue
			}
		}

		t.Indexes = append(t.Indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return &core.IntrospectionError{Dialect: core.DialectMySQL, Table: t.Name, Detail: "iterating indexes", Err: err}
	}
	return nil
}
