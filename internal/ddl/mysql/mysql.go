// Package mysql generates MySQL DDL using the native in-place ALTER strategy.
// MySQL can modify and drop columns directly, so no rebuild is ever needed;
// what it cannot do is run DDL transactionally, which the executor compensates
// for with checkpoints.
package mysql

import (
	"fmt"
	"strings"

	"driftsync/internal/core"
	"driftsync/internal/ddl"
)

func init() {
	ddl.Register(core.DialectMySQL, func() ddl.Generator { return New() })
}

// Generator produces MySQL statements. With SafeDrops enabled (the default),
// a dropped table is renamed to a backup name instead of being deleted, so the
// rollback can restore it with its data.
type Generator struct {
	SafeDrops bool
}

// New returns a MySQL generator with safe drops enabled.
func New() *Generator {
	return &Generator{SafeDrops: true}
}

// Dialect returns the dialect this generator serves.
func (g *Generator) Dialect() core.Dialect { return core.DialectMySQL }

// QuoteIdentifier quotes a MySQL identifier with backticks.
func (g *Generator) QuoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "`", "``")
	return "`" + name + "`"
}

// Generate emits forward and rollback statements for one operation.
func (g *Generator) Generate(req ddl.Request) (*Result, error) {
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
	case core.OpAlterColumnType, core.OpAlterNullable:
		return g.alterColumn(op)
	case core.OpAddIndex:
		return g.addIndex(op)
	case core.OpDropIndex:
		return g.dropIndex(op)
	default:
		return nil, fmt.Errorf("mysql generator: unsupported operation %s", op.Kind)
	}
}

// Result aliases the shared result type so callers read naturally.
type Result = ddl.Result

func (g *Generator) addTable(op *core.ChangeOperation) (*Result, error) {
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
	for _, idx := range t.Indexes {
		kw := "KEY"
		if idx.Unique {
			kw = "UNIQUE KEY"
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s", kw, g.QuoteIdentifier(g.indexName(t.Name, idx)), ddl.QuoteColumns(idx.Columns, g.QuoteIdentifier)))
	}

	create := fmt.Sprintf("CREATE TABLE %s (\n%s\n) ENGINE=InnoDB;", g.QuoteIdentifier(t.Name), strings.Join(lines, ",\n"))
	return &Result{
		Up:   []string{create},
		Down: []string{fmt.Sprintf("DROP TABLE %s;", g.QuoteIdentifier(t.Name))},
	}, nil
}

func (g *Generator) dropTable(op *core.ChangeOperation) (*Result, error) {
	table := g.QuoteIdentifier(op.Table)
	if !g.SafeDrops {
		return &Result{
			Up:       []string{fmt.Sprintf("DROP TABLE %s;", table)},
			Down:     []string{fmt.Sprintf("-- cannot auto-restore dropped table %s; restore from backup", table)},
			Warnings: []string{fmt.Sprintf("table %s will be dropped and its data lost", op.Table)},
		}, nil
	}
	backup := g.QuoteIdentifier(ddl.BackupName(op.Table))
	return &Result{
		Up:   []string{fmt.Sprintf("RENAME TABLE %s TO %s;", table, backup)},
		Down: []string{fmt.Sprintf("RENAME TABLE %s TO %s;", backup, table)},
		Warnings: []string{fmt.Sprintf(
			"table %s is renamed to a backup instead of dropped; drop the backup manually once verified", op.Table)},
	}, nil
}

func (g *Generator) addColumn(op *core.ChangeOperation) (*Result, error) {
	c := op.Column
	if c == nil {
		return nil, fmt.Errorf("add-column on %s: no column definition", op.Table)
	}
	table := g.QuoteIdentifier(op.Table)
	res := &Result{
		Up:   []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", table, g.columnDefinition(c))},
		Down: []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, g.QuoteIdentifier(c.Name))},
	}
	if !c.Nullable && c.DefaultValue == nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"adding NOT NULL column %s.%s without a default fails if the table has rows; add it as NULL first, backfill, then tighten", op.Table, c.Name))
	}
	return res, nil
}

func (g *Generator) dropColumn(op *core.ChangeOperation) (*Result, error) {
	c := op.Column
	if c == nil {
		return nil, fmt.Errorf("drop-column on %s: no column definition", op.Table)
	}
	table := g.QuoteIdentifier(op.Table)
	return &Result{
		Up:   []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, g.QuoteIdentifier(c.Name))},
		Down: []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", table, g.columnDefinition(c))},
		Warnings: []string{fmt.Sprintf(
			"column %s.%s will be dropped; the rollback recreates the column but not its data", op.Table, c.Name)},
	}, nil
}

func (g *Generator) alterColumn(op *core.ChangeOperation) (*Result, error) {
	if op.OldColumn == nil || op.NewColumn == nil {
		return nil, fmt.Errorf("alter on %s: missing column definitions", op.Table)
	}
	table := g.QuoteIdentifier(op.Table)
	res := &Result{
		Up:   []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s;", table, g.columnDefinition(op.NewColumn))},
		Down: []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s;", table, g.columnDefinition(op.OldColumn))},
	}
	if op.Kind == core.OpAlterColumnType && core.IsNarrowing(op.OldColumn.Type, op.NewColumn.Type) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"narrowing %s.%s from %s to %s may truncate values; prefer the two-phase path (add new column, backfill, swap later)",
			op.Table, op.NewColumn.Name, op.OldColumn.Type, op.NewColumn.Type))
	}
	if op.Kind == core.OpAlterNullable && !op.NewColumn.Nullable {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"backfill NULLs in %s.%s before enforcing NOT NULL or the migration fails", op.Table, op.NewColumn.Name))
	}
	return res, nil
}

func (g *Generator) addIndex(op *core.ChangeOperation) (*Result, error) {
	idx := op.Index
	if idx == nil {
		return nil, fmt.Errorf("add-index on %s: no index definition", op.Table)
	}
	name := g.indexName(op.Table, idx)
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return &Result{
		Up: []string{fmt.Sprintf("CREATE %sINDEX %s ON %s %s;",
			unique, g.QuoteIdentifier(name), g.QuoteIdentifier(op.Table), ddl.QuoteColumns(idx.Columns, g.QuoteIdentifier))},
		Down: []string{fmt.Sprintf("DROP INDEX %s ON %s;", g.QuoteIdentifier(name), g.QuoteIdentifier(op.Table))},
	}, nil
}

func (g *Generator) dropIndex(op *core.ChangeOperation) (*Result, error) {
	idx := op.Index
	if idx == nil || strings.TrimSpace(idx.Name) == "" {
		return nil, fmt.Errorf("drop-index on %s: no index name", op.Table)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return &Result{
		Up: []string{fmt.Sprintf("DROP INDEX %s ON %s;", g.QuoteIdentifier(idx.Name), g.QuoteIdentifier(op.Table))},
		Down: []string{fmt.Sprintf("CREATE %sINDEX %s ON %s %s;",
			unique, g.QuoteIdentifier(idx.Name), g.QuoteIdentifier(op.Table), ddl.QuoteColumns(idx.Columns, g.QuoteIdentifier))},
	}, nil
}

func (g *Generator) indexName(table string, idx *core.Index) string {
	if strings.TrimSpace(idx.Name) != "" {
		return idx.Name
	}
	return ddl.DefaultIndexName(table, idx.Columns)
}

// typeFor maps canonical snapshot types to MySQL spellings.
var typeFor = map[string]string{
	"INTEGER":     "INT",
	"BOOLEAN":     "TINYINT(1)",
	"TIMESTAMP":   "DATETIME",
	"TIMESTAMPTZ": "TIMESTAMP",
	"UUID":        "CHAR(36)",
	"DOUBLE":      "DOUBLE",
	"BLOB":        "BLOB",
}

func (g *Generator) columnDefinition(c *core.Column) string {
	var b strings.Builder
	b.WriteString(g.QuoteIdentifier(c.Name))
	b.WriteByte(' ')
	b.WriteString(g.typeSpelling(c.Type))

	if c.Nullable {
		b.WriteString(" NULL")
	} else {
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
