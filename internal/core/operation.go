package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// OpKind identifies what kind of change a single operation performs.
type OpKind string

const (
	OpAddTable        OpKind = "ADD_TABLE"
	OpDropTable       OpKind = "DROP_TABLE"
	OpAddColumn       OpKind = "ADD_COLUMN"
	OpDropColumn      OpKind = "DROP_COLUMN"
	OpAlterColumnType OpKind = "ALTER_COLUMN_TYPE"
	OpAlterNullable   OpKind = "ALTER_NULLABLE"
	OpAddIndex        OpKind = "ADD_INDEX"
	OpDropIndex       OpKind = "DROP_INDEX"
)

// ChangeOperation is one unit of schema drift. Each variant carries enough of
// the old and new definitions to generate both forward DDL and a best-effort
// rollback.
type ChangeOperation struct {
	Kind  OpKind `json:"kind"`
	Table string `json:"table"`

	// TableDef is set for ADD_TABLE and DROP_TABLE. For a drop it holds the
	// live definition so a rollback can recreate the table shell.
	TableDef *Table `json:"tableDef,omitempty"`

	// Column is set for ADD_COLUMN and DROP_COLUMN.
	Column *Column `json:"column,omitempty"`

	// OldColumn/NewColumn are set for ALTER_COLUMN_TYPE and ALTER_NULLABLE.
	OldColumn *Column `json:"oldColumn,omitempty"`
	NewColumn *Column `json:"newColumn,omitempty"`

	// Index is set for ADD_INDEX and DROP_INDEX.
	Index *Index `json:"index,omitempty"`
}

// Object returns the qualified name of the schema object the operation touches,
// for error messages and logs.
func (op *ChangeOperation) Object() string {
	switch op.Kind {
	case OpAddTable, OpDropTable:
		return op.Table
	case OpAddColumn, OpDropColumn:
		if op.Column != nil {
			return op.Table + "." + op.Column.Name
		}
	case OpAlterColumnType, OpAlterNullable:
		if op.NewColumn != nil {
			return op.Table + "." + op.NewColumn.Name
		}
	case OpAddIndex, OpDropIndex:
		if op.Index != nil {
			return op.Table + "." + op.Index.Name
		}
	}
	return op.Table
}

// String renders a short human-readable description of the operation.
func (op *ChangeOperation) String() string {
	switch op.Kind {
	case OpAlterColumnType:
		if op.OldColumn != nil && op.NewColumn != nil {
			return fmt.Sprintf("%s %s: %s -> %s", op.Kind, op.Object(), op.OldColumn.Type, op.NewColumn.Type)
		}
	case OpAlterNullable:
		if op.OldColumn != nil && op.NewColumn != nil {
			return fmt.Sprintf("%s %s: nullable %t -> %t", op.Kind, op.Object(), op.OldColumn.Nullable, op.NewColumn.Nullable)
		}
	}
	return fmt.Sprintf("%s %s", op.Kind, op.Object())
}

// RiskLevel classifies how likely an operation is to cause data loss or
// service disruption. The levels are totally ordered.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskModerate
	RiskDestructive
)

// String returns the display form of a risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "SAFE"
	case RiskModerate:
		return "MODERATE"
	case RiskDestructive:
		return "DESTRUCTIVE"
	default:
		return "UNKNOWN"
	}
}

// ParseRiskLevel converts a stored risk level string back into a RiskLevel.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MODERATE":
		return RiskModerate
	case "DESTRUCTIVE":
		return RiskDestructive
	default:
		return RiskSafe
	}
}

// PlannedOperation pairs a change operation with its classified risk and the
// generated forward and rollback statements for the target dialect.
type PlannedOperation struct {
	Op       ChangeOperation `json:"op"`
	Risk     RiskLevel       `json:"risk"`
	Up       []string        `json:"up"`
	Down     []string        `json:"down,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// MigrationPlan is an ordered list of planned operations against one dialect.
// The plan's content hash is its version.
type MigrationPlan struct {
	Version    string             `json:"version"`
	Dialect    Dialect            `json:"dialect"`
	Operations []PlannedOperation `json:"operations"`
	Risk       RiskLevel          `json:"risk"`
	DryRun     bool               `json:"dryRun,omitempty"`
}

// IsEmpty reports whether the plan contains no operations.
func (p *MigrationPlan) IsEmpty() bool {
	return len(p.Operations) == 0
}

// Statements returns the flattened forward SQL of the plan in execution order.
func (p *MigrationPlan) Statements() []string {
	var out []string
	for i := range p.Operations {
		out = append(out, p.Operations[i].Up...)
	}
	return out
}

// RollbackStatements returns the flattened rollback SQL in reverse operation
// order, so later structures are undone before the ones they depend on.
func (p *MigrationPlan) RollbackStatements() []string {
	var out []string
	for i := len(p.Operations) - 1; i >= 0; i-- {
		out = append(out, p.Operations[i].Down...)
	}
	return out
}

// RecomputeRisk sets the overall plan risk to the maximum over its operations.
// Adding a destructive operation can therefore never lower the plan risk.
func (p *MigrationPlan) RecomputeRisk() {
	risk := RiskSafe
	for i := range p.Operations {
		if p.Operations[i].Risk > risk {
			risk = p.Operations[i].Risk
		}
	}
	p.Risk = risk
}

// ComputeVersion derives the plan version from its operation descriptors and
// generated SQL, so identical drift always produces the same version string.
func (p *MigrationPlan) ComputeVersion() string {
	h := sha256.New()
	fmt.Fprintf(h, "dialect:%s\n", p.Dialect)
	for i := range p.Operations {
		po := &p.Operations[i]
		fmt.Fprintf(h, "op:%s\n", po.Op.String())
		for _, stmt := range po.Up {
			fmt.Fprintf(h, "up:%s\n", strings.TrimSpace(stmt))
		}
	}
	p.Version = hex.EncodeToString(h.Sum(nil))[:16]
	return p.Version
}

// Description summarizes the plan for history records and logs.
func (p *MigrationPlan) Description() string {
	if p.IsEmpty() {
		return "no changes"
	}
	parts := make([]string, 0, len(p.Operations))
	for i := range p.Operations {
		parts = append(parts, p.Operations[i].Op.String())
	}
	return strings.Join(parts, "; ")
}

// DestructiveOperations returns the subset of operations classified destructive.
func (p *MigrationPlan) DestructiveOperations() []PlannedOperation {
	var out []PlannedOperation
	for i := range p.Operations {
		if p.Operations[i].Risk == RiskDestructive {
			out = append(out, p.Operations[i])
		}
	}
	return out
}

// RecordStatus is the terminal state of a persisted migration.
type RecordStatus string

const (
	StatusApplied    RecordStatus = "applied"
	StatusRolledBack RecordStatus = "rolledback"
	StatusFailed     RecordStatus = "failed"
)

// MigrationRecord is one row of the append-only migration history.
type MigrationRecord struct {
	Version     string       `json:"version"`
	Description string       `json:"description"`
	AppliedAt   time.Time    `json:"appliedAt"`
	RollbackSQL string       `json:"rollbackSql,omitempty"`
	Risk        RiskLevel    `json:"riskLevel"`
	Status      RecordStatus `json:"status"`
}
