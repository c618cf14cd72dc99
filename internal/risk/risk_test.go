package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"driftsync/internal/core"
)

var sqliteCaps = core.CapabilitiesFor(core.DialectSQLite)

func classify(t *testing.T, op *core.ChangeOperation) core.RiskLevel {
	t.Helper()
	return NewClassifier(nil).Classify(op, sqliteCaps)
}

func TestClassifyDefaults(t *testing.T) {
	def := "0"
	tests := []struct {
		name string
		op   core.ChangeOperation
		want core.RiskLevel
	}{
		{
			name: "add table is safe",
			op:   core.ChangeOperation{Kind: core.OpAddTable, Table: "t"},
			want: core.RiskSafe,
		},
		{
			name: "add nullable column is safe",
			op: core.ChangeOperation{Kind: core.OpAddColumn, Table: "t",
				Column: &core.Column{Name: "c", Type: "TEXT", Nullable: true}},
			want: core.RiskSafe,
		},
		{
			name: "add required column with default is safe",
			op: core.ChangeOperation{Kind: core.OpAddColumn, Table: "t",
				Column: &core.Column{Name: "c", Type: "INTEGER", DefaultValue: &def}},
			want: core.RiskSafe,
		},
		{
			name: "add required column without default is moderate",
			op: core.ChangeOperation{Kind: core.OpAddColumn, Table: "t",
				Column: &core.Column{Name: "c", Type: "INTEGER"}},
			want: core.RiskModerate,
		},
		{
			name: "widening type change is moderate",
			op: core.ChangeOperation{Kind: core.OpAlterColumnType, Table: "t",
				OldColumn: &core.Column{Name: "c", Type: "VARCHAR(50)"},
				NewColumn: &core.Column{Name: "c", Type: "VARCHAR(100)"}},
			want: core.RiskModerate,
		},
		{
			name: "narrowing type change is destructive",
			op: core.ChangeOperation{Kind: core.OpAlterColumnType, Table: "t",
				OldColumn: &core.Column{Name: "c", Type: "VARCHAR(100)"},
				NewColumn: &core.Column{Name: "c", Type: "VARCHAR(50)"}},
			want: core.RiskDestructive,
		},
		{
			name: "cross-family type change is destructive",
			op: core.ChangeOperation{Kind: core.OpAlterColumnType, Table: "t",
				OldColumn: &core.Column{Name: "c", Type: "INTEGER"},
				NewColumn: &core.Column{Name: "c", Type: "TEXT"}},
			want: core.RiskDestructive,
		},
		{
			name: "tightening nullability is moderate",
			op: core.ChangeOperation{Kind: core.OpAlterNullable, Table: "t",
				OldColumn: &core.Column{Name: "c", Type: "TEXT", Nullable: true},
				NewColumn: &core.Column{Name: "c", Type: "TEXT", Nullable: false}},
			want: core.RiskModerate,
		},
		{
			name: "loosening nullability is safe",
			op: core.ChangeOperation{Kind: core.OpAlterNullable, Table: "t",
				OldColumn: &core.Column{Name: "c", Type: "TEXT", Nullable: false},
				NewColumn: &core.Column{Name: "c", Type: "TEXT", Nullable: true}},
			want: core.RiskSafe,
		},
		{
			name: "drop column is destructive",
			op: core.ChangeOperation{Kind: core.OpDropColumn, Table: "t",
				Column: &core.Column{Name: "c", Type: "TEXT"}},
			want: core.RiskDestructive,
		},
		{
			name: "drop table is destructive",
			op:   core.ChangeOperation{Kind: core.OpDropTable, Table: "t"},
			want: core.RiskDestructive,
		},
		{
			name: "add index is safe",
			op: core.ChangeOperation{Kind: core.OpAddIndex, Table: "t",
				Index: &core.Index{Name: "i", Columns: []string{"c"}}},
			want: core.RiskSafe,
		},
		{
			name: "drop plain index is safe",
			op: core.ChangeOperation{Kind: core.OpDropIndex, Table: "t",
				Index: &core.Index{Name: "i", Columns: []string{"c"}}},
			want: core.RiskSafe,
		},
		{
			name: "drop unique index is moderate",
			op: core.ChangeOperation{Kind: core.OpDropIndex, Table: "t",
				Index: &core.Index{Name: "i", Columns: []string{"c"}, Unique: true}},
			want: core.RiskModerate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(t, &tt.op))
		})
	}
}

func TestClassifyUnmatchedDefaultsToModerate(t *testing.T) {
	op := &core.ChangeOperation{Kind: core.OpKind("SOMETHING_NEW"), Table: "t"}
	assert.Equal(t, core.RiskModerate, classify(t, op))
}

func TestClassifyFailingRuleIsSkipped(t *testing.T) {
	c := NewClassifier(nil)
	c.AddRule(Rule{
		Name: "always-errors",
		Evaluate: func(*core.ChangeOperation, core.Capabilities) (core.RiskLevel, bool, error) {
			return 0, false, fmt.Errorf("rule is broken")
		},
	})

	op := &core.ChangeOperation{Kind: core.OpAddTable, Table: "t"}
	assert.Equal(t, core.RiskSafe, c.Classify(op, sqliteCaps),
		"a broken rule must not block classification")
}

func TestClassifyPanickingRuleIsContained(t *testing.T) {
	c := NewClassifier(nil)
	c.AddRule(Rule{
		Name: "always-panics",
		Evaluate: func(*core.ChangeOperation, core.Capabilities) (core.RiskLevel, bool, error) {
			panic("boom")
		},
	})

	op := &core.ChangeOperation{Kind: core.OpAddTable, Table: "t"}
	assert.NotPanics(t, func() {
		assert.Equal(t, core.RiskSafe, c.Classify(op, sqliteCaps))
	})
}

func TestClassifyTakesMaxAcrossRules(t *testing.T) {
	c := NewClassifier(nil)
	c.AddRule(Rule{
		Name: "escalate-adds",
		Evaluate: func(op *core.ChangeOperation, _ core.Capabilities) (core.RiskLevel, bool, error) {
			if op.Kind != core.OpAddTable {
				return 0, false, nil
			}
			return core.RiskDestructive, true, nil
		},
	})

	op := &core.ChangeOperation{Kind: core.OpAddTable, Table: "t"}
	assert.Equal(t, core.RiskDestructive, c.Classify(op, sqliteCaps),
		"the highest level among matching rules wins")
}
