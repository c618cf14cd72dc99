package executor

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // registers the parser's value driver
)

// WarningLevel grades preflight findings.
type WarningLevel string

const (
	WarnCaution WarningLevel = "CAUTION"
	WarnDanger  WarningLevel = "DANGER"
)

// Warning is one preflight finding tied to a concrete statement.
type Warning struct {
	Level   WarningLevel
	Message string
	SQL     string
}

// PreflightResult summarizes what executing a plan's SQL would do to a live
// server beyond the schema change itself.
type PreflightResult struct {
	Warnings        []Warning
	IsTransactional bool
	NonTxReasons    []string
}

// Destructive reports whether any finding is at the danger level.
func (r *PreflightResult) Destructive() bool {
	for _, w := range r.Warnings {
		if w.Level == WarnDanger {
			return true
		}
	}
	return false
}

// Analyzer inspects generated SQL through an AST parser before anything is
// executed. It is a second, independent check behind the risk classifier:
// the classifier judges operations, the analyzer judges the actual statements.
type Analyzer struct {
	parser *parser.Parser
}

// NewAnalyzer returns an AST-based statement analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{parser: parser.New()}
}

// Analyze inspects each statement and aggregates the findings.
func (a *Analyzer) Analyze(statements []string) *PreflightResult {
	result := &PreflightResult{IsTransactional: true}
	for _, stmt := range statements {
		a.analyzeStatement(result, stmt)
	}
	return result
}

func (a *Analyzer) analyzeStatement(result *PreflightResult, stmt string) {
	nodes, _, err := a.parser.Parse(stmt, "", "")
	if err != nil || len(nodes) == 0 {
		// Dialect-specific statements (PRAGMA, quoted rebuild DDL) fall back
		// to keyword checks.
		a.analyzeRaw(result, stmt)
		return
	}

	switch node := nodes[0].(type) {
	case *ast.DropTableStmt:
		result.Warnings = append(result.Warnings, Warning{
			Level:   WarnDanger,
			Message: "DROP TABLE permanently deletes the table and all its data",
			SQL:     stmt,
		})
		a.markNonTransactional(result, "DROP TABLE causes an implicit commit in MySQL", stmt)
	case *ast.TruncateTableStmt:
		result.Warnings = append(result.Warnings, Warning{
			Level:   WarnDanger,
			Message: "TRUNCATE TABLE deletes all rows",
			SQL:     stmt,
		})
		a.markNonTransactional(result, "TRUNCATE TABLE causes an implicit commit in MySQL", stmt)
	case *ast.AlterTableStmt:
		a.analyzeAlter(result, node, stmt)
		a.markNonTransactional(result, "ALTER TABLE causes an implicit commit in MySQL", stmt)
	case *ast.CreateIndexStmt:
		result.Warnings = append(result.Warnings, Warning{
			Level:   WarnCaution,
			Message: "CREATE INDEX may lock the table while the index builds",
			SQL:     stmt,
		})
		a.markNonTransactional(result, "CREATE INDEX causes an implicit commit in MySQL", stmt)
	case *ast.DropIndexStmt:
		a.markNonTransactional(result, "DROP INDEX causes an implicit commit in MySQL", stmt)
	case *ast.CreateTableStmt:
		a.markNonTransactional(result, "CREATE TABLE causes an implicit commit in MySQL", stmt)
	case *ast.RenameTableStmt:
		result.Warnings = append(result.Warnings, Warning{
			Level:   WarnCaution,
			Message: "RENAME TABLE takes an exclusive lock but is typically fast",
			SQL:     stmt,
		})
		a.markNonTransactional(result, "RENAME TABLE causes an implicit commit in MySQL", stmt)
	case *ast.DeleteStmt:
		result.Warnings = append(result.Warnings, Warning{
			Level:   WarnDanger,
			Message: "DELETE removes rows",
			SQL:     stmt,
		})
	}
}

func (a *Analyzer) analyzeAlter(result *PreflightResult, stmt *ast.AlterTableStmt, sql string) {
	for _, spec := range stmt.Specs {
		switch spec.Tp {
		case ast.AlterTableDropColumn:
			result.Warnings = append(result.Warnings, Warning{
				Level:   WarnDanger,
				Message: "DROP COLUMN permanently deletes the column and its data",
				SQL:     sql,
			})
		case ast.AlterTableModifyColumn, ast.AlterTableChangeColumn:
			result.Warnings = append(result.Warnings, Warning{
				Level:   WarnCaution,
				Message: "changing a column may rebuild and lock the table",
				SQL:     sql,
			})
		case ast.AlterTableAddColumns:
			result.Warnings = append(result.Warnings, Warning{
				Level:   WarnCaution,
				Message: "ADD COLUMN may rebuild the table depending on server version",
				SQL:     sql,
			})
		}
	}
}

// analyzeRaw covers statements the MySQL-grammar parser cannot read.
func (a *Analyzer) analyzeRaw(result *PreflightResult, stmt string) {
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	switch {
	case strings.HasPrefix(upper, "DROP TABLE"):
		result.Warnings = append(result.Warnings, Warning{
			Level:   WarnDanger,
			Message: "DROP TABLE permanently deletes the table and all its data",
			SQL:     stmt,
		})
	case strings.HasPrefix(upper, "DELETE "):
		result.Warnings = append(result.Warnings, Warning{
			Level:   WarnDanger,
			Message: "DELETE removes rows",
			SQL:     stmt,
		})
	case strings.HasPrefix(upper, "PRAGMA"):
		// sqlite housekeeping, harmless
	}
}

func (a *Analyzer) markNonTransactional(result *PreflightResult, reason, stmt string) {
	result.IsTransactional = false
	result.NonTxReasons = append(result.NonTxReasons, reason+": "+truncateSQL(stmt))
}

func truncateSQL(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if len(stmt) > 80 {
		return stmt[:77] + "..."
	}
	return stmt
}
