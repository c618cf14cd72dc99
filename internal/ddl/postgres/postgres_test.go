package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsync/internal/core"
	"driftsync/internal/ddl"
)

func generate(t *testing.T, op *core.ChangeOperation) *ddl.Result {
	t.Helper()
	res, err := New().Generate(ddl.Request{Op: op})
	require.NoError(t, err)
	return res
}

func TestAddTable(t *testing.T) {
	op := &core.ChangeOperation{
		Kind:  core.OpAddTable,
		Table: "events",
		TableDef: &core.Table{
			Name: "events",
			Columns: []*core.Column{
				{Name: "id", Type: "BIGINT", PrimaryKey: true},
				{Name: "payload", Type: "JSON", Nullable: true},
				{Name: "blob_data", Type: "BLOB", Nullable: true},
			},
			Indexes: []*core.Index{{Name: "idx_events_id", Columns: []string{"id"}}},
		},
	}

	res := generate(t, op)
	require.Len(t, res.Up, 2, "table plus one index")
	sql := res.Up[0]
	assert.Contains(t, sql, `CREATE TABLE "events"`)
	assert.Contains(t, sql, `"payload" JSONB`)
	assert.Contains(t, sql, `"blob_data" BYTEA`)
	assert.Contains(t, sql, `PRIMARY KEY ("id")`)
	assert.Contains(t, res.Up[1], `CREATE INDEX "idx_events_id" ON "events" ("id")`)
	assert.Equal(t, `DROP TABLE "events";`, res.Down[0])
}

func TestAlterColumnTypeUsesCast(t *testing.T) {
	op := &core.ChangeOperation{
		Kind:      core.OpAlterColumnType,
		Table:     "users",
		OldColumn: &core.Column{Name: "age", Type: "INTEGER", Nullable: true},
		NewColumn: &core.Column{Name: "age", Type: "BIGINT", Nullable: true},
	}

	res := generate(t, op)
	assert.Equal(t, `ALTER TABLE "users" ALTER COLUMN "age" TYPE BIGINT USING "age"::BIGINT;`, res.Up[0])
	assert.Equal(t, `ALTER TABLE "users" ALTER COLUMN "age" TYPE INTEGER USING "age"::INTEGER;`, res.Down[0])
	assert.Empty(t, res.Warnings, "widening carries no warning")
}

func TestAlterColumnTypeNarrowingWarns(t *testing.T) {
	op := &core.ChangeOperation{
		Kind:      core.OpAlterColumnType,
		Table:     "users",
		OldColumn: &core.Column{Name: "age", Type: "BIGINT", Nullable: true},
		NewColumn: &core.Column{Name: "age", Type: "INTEGER", Nullable: true},
	}

	res := generate(t, op)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "two-phase")
}

func TestAlterNullable(t *testing.T) {
	tighten := &core.ChangeOperation{
		Kind:      core.OpAlterNullable,
		Table:     "users",
		OldColumn: &core.Column{Name: "email", Type: "TEXT", Nullable: true},
		NewColumn: &core.Column{Name: "email", Type: "TEXT", Nullable: false},
	}
	res := generate(t, tighten)
	assert.Equal(t, `ALTER TABLE "users" ALTER COLUMN "email" SET NOT NULL;`, res.Up[0])
	assert.Equal(t, `ALTER TABLE "users" ALTER COLUMN "email" DROP NOT NULL;`, res.Down[0])
	assert.NotEmpty(t, res.Warnings)

	loosen := &core.ChangeOperation{
		Kind:      core.OpAlterNullable,
		Table:     "users",
		OldColumn: &core.Column{Name: "email", Type: "TEXT", Nullable: false},
		NewColumn: &core.Column{Name: "email", Type: "TEXT", Nullable: true},
	}
	res = generate(t, loosen)
	assert.Equal(t, `ALTER TABLE "users" ALTER COLUMN "email" DROP NOT NULL;`, res.Up[0])
	assert.Empty(t, res.Warnings)
}

func TestAddColumnRequiredWithoutDefaultWarns(t *testing.T) {
	op := &core.ChangeOperation{
		Kind:   core.OpAddColumn,
		Table:  "users",
		Column: &core.Column{Name: "tenant_id", Type: "UUID", Nullable: false},
	}
	res := generate(t, op)
	assert.Equal(t, `ALTER TABLE "users" ADD COLUMN "tenant_id" UUID NOT NULL;`, res.Up[0])
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "backfill")
}

func TestDropIndexHasNoTableQualifier(t *testing.T) {
	op := &core.ChangeOperation{
		Kind:  core.OpDropIndex,
		Table: "users",
		Index: &core.Index{Name: "idx_users_email", Columns: []string{"email"}, Unique: true},
	}
	res := generate(t, op)
	assert.Equal(t, `DROP INDEX "idx_users_email";`, res.Up[0])
	assert.Contains(t, res.Down[0], `CREATE UNIQUE INDEX "idx_users_email" ON "users" ("email")`)
}
