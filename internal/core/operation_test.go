package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() *MigrationPlan {
	return &MigrationPlan{
		Dialect: DialectSQLite,
		Operations: []PlannedOperation{
			{
				Op:   ChangeOperation{Kind: OpAddTable, Table: "users"},
				Risk: RiskSafe,
				Up:   []string{"CREATE TABLE users (id INTEGER);"},
				Down: []string{"DROP TABLE users;"},
			},
			{
				Op:   ChangeOperation{Kind: OpAddIndex, Table: "users", Index: &Index{Name: "idx_users_id", Columns: []string{"id"}}},
				Risk: RiskSafe,
				Up:   []string{"CREATE INDEX idx_users_id ON users (id);"},
				Down: []string{"DROP INDEX idx_users_id;"},
			},
		},
	}
}

func TestComputeVersionDeterministic(t *testing.T) {
	a, b := samplePlan(), samplePlan()
	require.Equal(t, a.ComputeVersion(), b.ComputeVersion())
	assert.Len(t, a.Version, 16)

	b.Operations[0].Up[0] = "CREATE TABLE users (id BIGINT);"
	assert.NotEqual(t, a.ComputeVersion(), b.ComputeVersion())
}

func TestRecomputeRiskIsMax(t *testing.T) {
	p := samplePlan()
	p.RecomputeRisk()
	assert.Equal(t, RiskSafe, p.Risk)

	p.Operations = append(p.Operations, PlannedOperation{
		Op:   ChangeOperation{Kind: OpDropTable, Table: "old"},
		Risk: RiskDestructive,
	})
	p.RecomputeRisk()
	assert.Equal(t, RiskDestructive, p.Risk, "adding an operation can only raise plan risk")

	p.Operations = append(p.Operations, PlannedOperation{
		Op:   ChangeOperation{Kind: OpAddTable, Table: "new"},
		Risk: RiskSafe,
	})
	p.RecomputeRisk()
	assert.Equal(t, RiskDestructive, p.Risk, "a safe operation never lowers plan risk")
}

func TestRollbackStatementsReversed(t *testing.T) {
	p := samplePlan()
	got := p.RollbackStatements()
	require.Len(t, got, 2)
	assert.Equal(t, "DROP INDEX idx_users_id;", got[0], "later structures are undone first")
	assert.Equal(t, "DROP TABLE users;", got[1])
}

func TestRiskLevelOrdering(t *testing.T) {
	assert.True(t, RiskSafe < RiskModerate)
	assert.True(t, RiskModerate < RiskDestructive)
	assert.Equal(t, "DESTRUCTIVE", RiskDestructive.String())
	assert.Equal(t, RiskModerate, ParseRiskLevel("moderate"))
	assert.Equal(t, RiskSafe, ParseRiskLevel("garbage"))
}

func TestOperationString(t *testing.T) {
	op := &ChangeOperation{
		Kind:      OpAlterColumnType,
		Table:     "users",
		OldColumn: &Column{Name: "age", Type: "BIGINT"},
		NewColumn: &Column{Name: "age", Type: "INTEGER"},
	}
	assert.Equal(t, "ALTER_COLUMN_TYPE users.age: BIGINT -> INTEGER", op.String())

	drop := &ChangeOperation{Kind: OpDropTable, Table: "old"}
	assert.Equal(t, "DROP_TABLE old", drop.String())
}

func TestDestructiveOperations(t *testing.T) {
	p := samplePlan()
	assert.Empty(t, p.DestructiveOperations())

	p.Operations = append(p.Operations, PlannedOperation{
		Op:   ChangeOperation{Kind: OpDropColumn, Table: "users", Column: &Column{Name: "legacy"}},
		Risk: RiskDestructive,
	})
	got := p.DestructiveOperations()
	require.Len(t, got, 1)
	assert.Equal(t, OpDropColumn, got[0].Op.Kind)
}
