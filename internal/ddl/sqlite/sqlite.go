// Package sqlite generates SQLite DDL. SQLite cannot alter a column's type or
// nullability and (before 3.35) cannot drop columns, so those operations run as
// a copy-swap-drop rebuild: create a shadow table with the target shape, copy
// the rows across with a projected SELECT, drop the original, and rename the
// shadow into place. Every statement runs inside the executor's transaction, so
// an interrupted rebuild rolls back to the original table.
package sqlite

import (
	"fmt"
	"strings"

	"driftsync/internal/core"
	"driftsync/internal/ddl"
)

func init() {
	ddl.Register(core.DialectSQLite, func() ddl.Generator { return New() })
}

// Generator produces SQLite statements.
type Generator struct{}

// New returns a SQLite generator.
func New() *Generator { return &Generator{} }

// Dialect returns the dialect this generator serves.
func (g *Generator) Dialect() core.Dialect { return core.DialectSQLite }

// QuoteIdentifier quotes a SQLite identifier with double quotes.
func (g *Generator) QuoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, `"`, `""`)
	return `"` + name + `"`
}

// Generate emits forward and rollback statements for one operation. Operations
// SQLite supports natively stay single statements; the rest become rebuilds.
func (g *Generator) Generate(req ddl.Request) (*ddl.Result, error) {
	op := req.Op
	switch op.Kind {
	case core.OpAddTable:
		return g.addTable(op)
	case core.OpDropTable:
		return g.dropTable(op)
	case core.OpAddColumn:
		return g.addColumn(op)
	case core.OpAddIndex:
		return g.addIndex(op)
	case core.OpDropIndex:
		return g.dropIndex(op)
	case core.OpDropColumn, core.OpAlterColumnType, core.OpAlterNullable:
		return g.rebuild(req)
	default:
		return nil, fmt.Errorf("sqlite generator: unsupported operation %s", op.Kind)
	}
}

func (g *Generator) addTable(op *core.ChangeOperation) (*ddl.Result, error) {
	t := op.TableDef
	if t == nil {
		return nil, fmt.Errorf("add-table %s: no table definition", op.Table)
	}
	up := []string{g.createTable(t.Name, t)}
	for _, idx := range t.Indexes {
		up = append(up, g.createIndex(t.Name, idx))
	}
	return &ddl.Result{
		Up:   up,
		Down: []string{fmt.Sprintf("DROP TABLE %s;", g.QuoteIdentifier(t.Name))},
	}, nil
}

func (g *Generator) dropTable(op *core.ChangeOperation) (*ddl.Result, error) {
	res := &ddl.Result{
		Up:       []string{fmt.Sprintf("DROP TABLE %s;", g.QuoteIdentifier(op.Table))},
		Warnings: []string{fmt.Sprintf("table %s will be dropped and its data lost", op.Table)},
	}
	if op.TableDef != nil {
		res.Down = []string{g.createTable(op.Table, op.TableDef)}
		for _, idx := range op.TableDef.Indexes {
			res.Down = append(res.Down, g.createIndex(op.Table, idx))
		}
	}
	return res, nil
}

func (g *Generator) addColumn(op *core.ChangeOperation) (*ddl.Result, error) {
	c := op.Column
	if c == nil {
		return nil, fmt.Errorf("add-column on %s: no column definition", op.Table)
	}
	// ALTER TABLE ADD COLUMN rejects NOT NULL without a default outright.
	if !c.Nullable && c.DefaultValue == nil {
		return nil, fmt.Errorf(
			"sqlite cannot add NOT NULL column %s.%s without a default; declare a default in the model or add it as nullable first",
			op.Table, c.Name)
	}
	table := g.QuoteIdentifier(op.Table)
	return &ddl.Result{
		Up:   []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", table, g.columnDefinition(c, false))},
		Down: []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, g.QuoteIdentifier(c.Name))},
	}, nil
}

func (g *Generator) addIndex(op *core.ChangeOperation) (*ddl.Result, error) {
	idx := op.Index
	if idx == nil {
		return nil, fmt.Errorf("add-index on %s: no index definition", op.Table)
	}
	return &ddl.Result{
		Up:   []string{g.createIndex(op.Table, idx)},
		Down: []string{fmt.Sprintf("DROP INDEX %s;", g.QuoteIdentifier(g.indexName(op.Table, idx)))},
	}, nil
}

func (g *Generator) dropIndex(op *core.ChangeOperation) (*ddl.Result, error) {
	idx := op.Index
	if idx == nil || strings.TrimSpace(idx.Name) == "" {
		return nil, fmt.Errorf("drop-index on %s: no index name", op.Table)
	}
	return &ddl.Result{
		Up:   []string{fmt.Sprintf("DROP INDEX %s;", g.QuoteIdentifier(idx.Name))},
		Down: []string{g.createIndex(op.Table, idx)},
	}, nil
}

// rebuild implements the copy-swap-drop sequence. req.Live is the table as it
// exists now and req.Target is the shape after this single operation; building
// the shadow from Target keeps unrelated columns intact.
func (g *Generator) rebuild(req ddl.Request) (*ddl.Result, error) {
	op := req.Op
	if req.Live == nil || req.Target == nil {
		return nil, fmt.Errorf("%s on %s: rebuild needs both live and target table definitions", op.Kind, op.Table)
	}

	up, err := g.rebuildStatements(op.Table, req.Live, req.Target)
	if err != nil {
		return nil, err
	}
	// The rollback rebuilds in the opposite direction. A dropped column comes
	// back as NULLs or its default; the values themselves are gone.
	down, err := g.rebuildStatements(op.Table, req.Target, req.Live)
	if err != nil {
		return nil, err
	}

	res := &ddl.Result{Up: up, Down: down}
	switch op.Kind {
	case core.OpDropColumn:
		if op.Column != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"column %s.%s is removed during the rebuild; the rollback restores the column but not its values", op.Table, op.Column.Name))
		}
	case core.OpAlterColumnType:
		if op.OldColumn != nil && op.NewColumn != nil && core.IsNarrowing(op.OldColumn.Type, op.NewColumn.Type) {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"narrowing %s.%s from %s to %s copies values through CAST and may lose precision; prefer the two-phase path (add new column, backfill, swap later)",
				op.Table, op.NewColumn.Name, op.OldColumn.Type, op.NewColumn.Type))
		}
	case core.OpAlterNullable:
		if op.NewColumn != nil && !op.NewColumn.Nullable {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"rows with NULL in %s.%s fail the rebuild unless a default exists to coalesce into", op.Table, op.NewColumn.Name))
		}
	}
	res.Warnings = append(res.Warnings, fmt.Sprintf(
		"table %s is rebuilt in place; writes against it block for the duration of the copy", op.Table))
	return res, nil
}

func (g *Generator) rebuildStatements(table string, from, to *core.Table) ([]string, error) {
	shadow := ddl.ShadowName(table)
	cols, exprs, err := g.projection(from, to)
	if err != nil {
		return nil, fmt.Errorf("rebuild of %s: %w", table, err)
	}

	stmts := []string{
		// foreign_keys is a no-op inside a transaction; deferral is not.
		"PRAGMA defer_foreign_keys = ON;",
		g.createTable(shadow, to),
		fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM %s;",
			g.QuoteIdentifier(shadow),
			strings.Join(cols, ", "),
			strings.Join(exprs, ", "),
			g.QuoteIdentifier(table)),
		fmt.Sprintf("DROP TABLE %s;", g.QuoteIdentifier(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", g.QuoteIdentifier(shadow), g.QuoteIdentifier(table)),
	}
	for _, idx := range to.Indexes {
		stmts = append(stmts, g.createIndex(table, idx))
	}
	stmts = append(stmts, "PRAGMA foreign_key_check;")
	return stmts, nil
}

// projection builds the column list and matching SELECT expressions that copy
// rows from the old shape into the new one. Columns absent from the source are
// filled from their default; a column tightening to NOT NULL coalesces NULLs
// into its default when one exists.
func (g *Generator) projection(from, to *core.Table) (cols, exprs []string, err error) {
	for _, target := range to.Columns {
		cols = append(cols, g.QuoteIdentifier(target.Name))

		src := from.FindColumn(target.Name)
		switch {
		case src == nil:
			if target.DefaultValue != nil {
				exprs = append(exprs, ddl.FormatDefault(*target.DefaultValue, ddl.QuoteSingle))
			} else if target.Nullable {
				exprs = append(exprs, "NULL")
			} else {
				return nil, nil, fmt.Errorf("new column %s is NOT NULL with no default to fill existing rows", target.Name)
			}
		case !target.Nullable && src.Nullable && target.DefaultValue != nil:
			exprs = append(exprs, fmt.Sprintf("COALESCE(%s, %s)",
				g.QuoteIdentifier(src.Name), ddl.FormatDefault(*target.DefaultValue, ddl.QuoteSingle)))
		case !strings.EqualFold(core.NormalizeType(src.Type), core.NormalizeType(target.Type)):
			exprs = append(exprs, fmt.Sprintf("CAST(%s AS %s)", g.QuoteIdentifier(src.Name), g.typeSpelling(target.Type)))
		default:
			exprs = append(exprs, g.QuoteIdentifier(src.Name))
		}
	}
	return cols, exprs, nil
}

func (g *Generator) createTable(name string, t *core.Table) string {
	var lines []string
	var pks []string
	for _, c := range t.Columns {
		// Single-column INTEGER primary keys get the rowid alias inline.
		inlinePK := c.PrimaryKey && len(primaryKeys(t)) == 1
		lines = append(lines, "  "+g.columnDefinition(c, inlinePK))
		if c.PrimaryKey && !inlinePK {
			pks = append(pks, c.Name)
		}
	}
	if len(pks) > 0 {
		lines = append(lines, "  PRIMARY KEY "+ddl.QuoteColumns(pks, g.QuoteIdentifier))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", g.QuoteIdentifier(name), strings.Join(lines, ",\n"))
}

func primaryKeys(t *core.Table) []string {
	var out []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			out = append(out, c.Name)
		}
	}
	return out
}

func (g *Generator) createIndex(table string, idx *core.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s %s;",
		unique, g.QuoteIdentifier(g.indexName(table, idx)), g.QuoteIdentifier(table), ddl.QuoteColumns(idx.Columns, g.QuoteIdentifier))
}

func (g *Generator) indexName(table string, idx *core.Index) string {
	if strings.TrimSpace(idx.Name) != "" {
		return idx.Name
	}
	return ddl.DefaultIndexName(table, idx.Columns)
}

// typeFor maps canonical snapshot types to SQLite affinities.
var typeFor = map[string]string{
	"BIGINT":      "INTEGER",
	"SMALLINT":    "INTEGER",
	"BOOLEAN":     "BOOLEAN",
	"DOUBLE":      "REAL",
	"FLOAT":       "REAL",
	"TIMESTAMP":   "TIMESTAMP",
	"TIMESTAMPTZ": "TIMESTAMP",
	"UUID":        "TEXT",
	"JSON":        "TEXT",
}

func (g *Generator) columnDefinition(c *core.Column, inlinePK bool) string {
	var b strings.Builder
	b.WriteString(g.QuoteIdentifier(c.Name))
	b.WriteByte(' ')
	b.WriteString(g.typeSpelling(c.Type))

	if inlinePK {
		b.WriteString(" PRIMARY KEY")
	}
	if !c.Nullable && !inlinePK {
		b.WriteString(" NOT NULL")
	}
	if c.DefaultValue != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(ddl.FormatDefault(*c.DefaultValue, ddl.QuoteSingle))
	}
	if c.Unique && !c.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

func (g *Generator) typeSpelling(canonical string) string {
	canonical = core.NormalizeType(canonical)
	if base, _, ok := core.TypeLength(canonical); ok && base == "VARCHAR" {
		// SQLite ignores lengths; keep them for round-trip fidelity.
		return canonical
	}
	if spelled, ok := typeFor[canonical]; ok {
		return spelled
	}
	return canonical
}
