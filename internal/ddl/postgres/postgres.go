// Package postgres generates PostgreSQL DDL using the native ALTER strategy.
// PostgreSQL DDL is transactional, so the executor wraps a whole plan in one
// transaction and the rollback statements exist only for the history record.
package postgres

import (
	"fmt"
	"strings"

	"driftsync/internal/core"
	"driftsync/internal/ddl"
)

func init() {
	ddl.Register(core.DialectPostgreSQL, func() ddl.Generator { return New() })
}

// Generator produces PostgreSQL statements.
type Generator struct{}

// New returns a PostgreSQL generator.
func New() *Generator { return &Generator{} }

// Dialect returns the dialect this generator serves.
func (g *Generator) Dialect() core.Dialect { return core.DialectPostgreSQL }

// QuoteIdentifier quotes a PostgreSQL identifier with double quotes.
func (g *Generator) QuoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, `"`, `""`)
	return `"` + name + `"`
}

// Generate emits forward and rollback statements for one operation.
func (g *Generator) Generate(req ddl.Request) (*ddl.Result, error) {
	op := req.Op
	switch op.Kind {
	case core.OpAddTable:
		return g.addTable(op)
	case core.OpDropTable:
		return g.dropTable(op)
	case core.OpAddColumn:
		return g.addColumn(op)
	case core.OpDropColumn:
		return g.dropColumn(op)
	case core.OpAlterColumnType:
		return g.alterColumnType(op)
	case core.OpAlterNullable:
		return g.alterNullable(op)
	case core.OpAddIndex:
		return g.addIndex(op)
	case core.OpDropIndex:
		return g.dropIndex(op)
	default:
		return nil, fmt.Errorf("postgres generator: unsupported operation %s", op.Kind)
	}
}

func (g *Generator) addTable(op *core.ChangeOperation) (*ddl.Result, error) {
	t := op.TableDef
	if t == nil {
		return nil, fmt.Errorf("add-table %s: no table definition", op.Table)
	}

	var lines []string
	var pks []string
	for _, c := range t.Columns {
		lines = append(lines, "  "+g.columnDefinition(c))
		if c.PrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	if len(pks) > 0 {
		lines = append(lines, "  PRIMARY KEY "+ddl.QuoteColumns(pks, g.QuoteIdentifier))
	}

	up := []string{fmt.Sprintf("CREATE TABLE %s (\n%s\n);", g.QuoteIdentifier(t.Name), strings.Join(lines, ",\n"))}
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
		// Best effort: the rollback recreates the shell, not the rows.
		if recreate, err := g.addTable(&core.ChangeOperation{Kind: core.OpAddTable, Table: op.Table, TableDef: op.TableDef}); err == nil {
			res.Down = recreate.Up
		}
	}
	return res, nil
}

func (g *Generator) addColumn(op *core.ChangeOperation) (*ddl.Result, error) {
	c := op.Column
	if c == nil {
		return nil, fmt.Errorf("add-column on %s: no column definition", op.Table)
	}
	table := g.QuoteIdentifier(op.Table)
	res := &ddl.Result{
		Up:   []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", table, g.columnDefinition(c))},
		Down: []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, g.QuoteIdentifier(c.Name))},
	}
	if !c.Nullable && c.DefaultValue == nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"adding NOT NULL column %s.%s without a default fails if the table has rows; add it as NULL first, backfill, then tighten", op.Table, c.Name))
	}
	return res, nil
}

func (g *Generator) dropColumn(op *core.ChangeOperation) (*ddl.Result, error) {
	c := op.Column
	if c == nil {
		return nil, fmt.Errorf("drop-column on %s: no column definition", op.Table)
	}
	table := g.QuoteIdentifier(op.Table)
	return &ddl.Result{
		Up:   []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, g.QuoteIdentifier(c.Name))},
		Down: []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", table, g.columnDefinition(c))},
		Warnings: []string{fmt.Sprintf(
			"column %s.%s will be dropped; the rollback recreates the column but not its data", op.Table, c.Name)},
	}, nil
}

func (g *Generator) alterColumnType(op *core.ChangeOperation) (*ddl.Result, error) {
	if op.OldColumn == nil || op.NewColumn == nil {
		return nil, fmt.Errorf("alter-column-type on %s: missing column definitions", op.Table)
	}
	table := g.QuoteIdentifier(op.Table)
	col := g.QuoteIdentifier(op.NewColumn.Name)
	newType := g.typeSpelling(op.NewColumn.Type)
	oldType := g.typeSpelling(op.OldColumn.Type)

	up := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;", table, col, newType, col, newType)
	down := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;", table, col, oldType, col, oldType)

	res := &ddl.Result{Up: []string{up}, Down: []string{down}}
	if core.IsNarrowing(op.OldColumn.Type, op.NewColumn.Type) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"narrowing %s.%s from %s to %s may truncate or reject values; prefer the two-phase path (add new column, backfill, swap later)",
			op.Table, op.NewColumn.Name, op.OldColumn.Type, op.NewColumn.Type))
	}
	return res, nil
}

func (g *Generator) alterNullable(op *core.ChangeOperation) (*ddl.Result, error) {
	if op.OldColumn == nil || op.NewColumn == nil {
		return nil, fmt.Errorf("alter-nullable on %s: missing column definitions", op.Table)
	}
	table := g.QuoteIdentifier(op.Table)
	col := g.QuoteIdentifier(op.NewColumn.Name)

	verb, reverse := "SET", "DROP"
	if op.NewColumn.Nullable {
		verb, reverse = "DROP", "SET"
	}
	res := &ddl.Result{
		Up:   []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s NOT NULL;", table, col, verb)},
		Down: []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s NOT NULL;", table, col, reverse)},
	}
	if !op.NewColumn.Nullable {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"backfill NULLs in %s.%s before enforcing NOT NULL or the migration fails", op.Table, op.NewColumn.Name))
	}
	return res, nil
}

func (g *Generator) addIndex(op *core.ChangeOperation) (*ddl.Result, error) {
	idx := op.Index
	if idx == nil {
		return nil, fmt.Errorf("add-index on %s: no index definition", op.Table)
	}
	name := g.indexName(op.Table, idx)
	return &ddl.Result{
		Up:   []string{g.createIndex(op.Table, idx)},
		Down: []string{fmt.Sprintf("DROP INDEX %s;", g.QuoteIdentifier(name))},
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

// typeFor maps canonical snapshot types to PostgreSQL spellings.
var typeFor = map[string]string{
	"DOUBLE":    "DOUBLE PRECISION",
	"BLOB":      "BYTEA",
	"JSON":      "JSONB",
	"TIMESTAMP": "TIMESTAMP",
	"FLOAT":     "REAL",
}

func (g *Generator) columnDefinition(c *core.Column) string {
	var b strings.Builder
	b.WriteString(g.QuoteIdentifier(c.Name))
	b.WriteByte(' ')
	b.WriteString(g.typeSpelling(c.Type))

	if !c.Nullable {
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
	if spelled, ok := typeFor[canonical]; ok {
		return spelled
	}
	return canonical
}
