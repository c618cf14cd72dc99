package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsync/internal/core"
)

func snapshot(tables ...*core.Table) *core.Snapshot {
	s := core.NewSnapshot(core.DialectSQLite)
	for _, t := range tables {
		s.Tables[t.Name] = t
	}
	return s
}

func usersTable() *core.Table {
	return &core.Table{
		Name: "users",
		Columns: []*core.Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "email", Type: "VARCHAR(120)", Nullable: false},
		},
		Indexes: []*core.Index{
			{Name: "idx_users_email", Columns: []string{"email"}, Unique: true},
		},
	}
}

func TestDiffIdenticalSnapshotsIsEmpty(t *testing.T) {
	a := snapshot(usersTable())
	b := snapshot(usersTable())
	assert.Empty(t, Diff(a, b))
	assert.Empty(t, Diff(a, a))
}

func TestDiffAddAndDropTable(t *testing.T) {
	live := snapshot(&core.Table{Name: "legacy", Columns: []*core.Column{{Name: "id", Type: "INTEGER"}}})
	target := snapshot(usersTable())

	ops := Diff(live, target)
	require.Len(t, ops, 2)
	assert.Equal(t, core.OpAddTable, ops[0].Kind, "adds come before drops")
	assert.Equal(t, "users", ops[0].Table)
	require.NotNil(t, ops[0].TableDef)

	assert.Equal(t, core.OpDropTable, ops[1].Kind)
	assert.Equal(t, "legacy", ops[1].Table)
	require.NotNil(t, ops[1].TableDef, "drop carries the live definition for rollback")
}

func TestDiffColumnChanges(t *testing.T) {
	live := snapshot(&core.Table{
		Name: "users",
		Columns: []*core.Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "age", Type: "BIGINT", Nullable: true},
			{Name: "legacy", Type: "TEXT", Nullable: true},
		},
	})
	target := snapshot(&core.Table{
		Name: "users",
		Columns: []*core.Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "age", Type: "INTEGER", Nullable: false},
			{Name: "email", Type: "VARCHAR(120)", Nullable: true},
		},
	})

	ops := Diff(live, target)
	require.Len(t, ops, 4)

	// Adds, then alters, then drops.
	assert.Equal(t, core.OpAddColumn, ops[0].Kind)
	assert.Equal(t, "email", ops[0].Column.Name)

	assert.Equal(t, core.OpAlterColumnType, ops[1].Kind)
	assert.Equal(t, "BIGINT", ops[1].OldColumn.Type)
	assert.Equal(t, "INTEGER", ops[1].NewColumn.Type)

	assert.Equal(t, core.OpAlterNullable, ops[2].Kind)
	assert.True(t, ops[2].OldColumn.Nullable)
	assert.False(t, ops[2].NewColumn.Nullable)

	assert.Equal(t, core.OpDropColumn, ops[3].Kind)
	assert.Equal(t, "legacy", ops[3].Column.Name)
}

func TestDiffTypeAliasIsNotDrift(t *testing.T) {
	live := snapshot(&core.Table{
		Name:    "t",
		Columns: []*core.Column{{Name: "n", Type: "integer"}},
	})
	target := snapshot(&core.Table{
		Name:    "t",
		Columns: []*core.Column{{Name: "n", Type: "INTEGER"}},
	})
	assert.Empty(t, Diff(live, target))
}

func TestDiffChangedIndexIsDropThenAdd(t *testing.T) {
	live := snapshot(&core.Table{
		Name:    "users",
		Columns: []*core.Column{{Name: "email", Type: "TEXT"}},
		Indexes: []*core.Index{{Name: "idx_users_email", Columns: []string{"email"}, Unique: false}},
	})
	target := snapshot(&core.Table{
		Name:    "users",
		Columns: []*core.Column{{Name: "email", Type: "TEXT"}},
		Indexes: []*core.Index{{Name: "idx_users_email", Columns: []string{"email"}, Unique: true}},
	})

	ops := Diff(live, target)
	require.Len(t, ops, 2)
	assert.Equal(t, core.OpDropIndex, ops[0].Kind)
	assert.Equal(t, core.OpAddIndex, ops[1].Kind)
	assert.True(t, ops[1].Index.Unique)
}

func TestDiffSkipsIndexOverDroppedColumn(t *testing.T) {
	live := snapshot(&core.Table{
		Name: "users",
		Columns: []*core.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "legacy", Type: "TEXT", Nullable: true},
		},
		Indexes: []*core.Index{{Name: "idx_users_legacy", Columns: []string{"legacy"}}},
	})
	target := snapshot(&core.Table{
		Name:    "users",
		Columns: []*core.Column{{Name: "id", Type: "INTEGER"}},
	})

	ops := Diff(live, target)
	require.Len(t, ops, 1, "the index disappears with its column; no separate drop")
	assert.Equal(t, core.OpDropColumn, ops[0].Kind)
}

func TestDiffDeterministicOrdering(t *testing.T) {
	build := func() (*core.Snapshot, *core.Snapshot) {
		live := snapshot()
		target := snapshot(
			&core.Table{Name: "zebra", Columns: []*core.Column{{Name: "id", Type: "INTEGER"}}},
			&core.Table{Name: "alpha", Columns: []*core.Column{{Name: "id", Type: "INTEGER"}}},
		)
		return live, target
	}

	l1, t1 := build()
	l2, t2 := build()
	first := Describe(Diff(l1, t1))
	second := Describe(Diff(l2, t2))
	require.Equal(t, first, second)
	assert.Equal(t, "ADD_TABLE alpha", first[0], "ties break lexicographically")
	assert.Equal(t, "ADD_TABLE zebra", first[1])
}
