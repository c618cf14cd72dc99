package mysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsync/internal/core"
	"driftsync/internal/ddl"
)

func generate(t *testing.T, g *Generator, op *core.ChangeOperation) *ddl.Result {
	t.Helper()
	res, err := g.Generate(ddl.Request{Op: op})
	require.NoError(t, err)
	return res
}

func TestAddTable(t *testing.T) {
	def := "CURRENT_TIMESTAMP"
	op := &core.ChangeOperation{
		Kind:  core.OpAddTable,
		Table: "users",
		TableDef: &core.Table{
			Name: "users",
			Columns: []*core.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "email", Type: "VARCHAR(120)", Unique: true},
				{Name: "created_at", Type: "TIMESTAMP", DefaultValue: &def},
			},
			Indexes: []*core.Index{{Name: "idx_users_created", Columns: []string{"created_at"}}},
		},
	}

	res := generate(t, New(), op)
	require.Len(t, res.Up, 1)
	sql := res.Up[0]
	assert.Contains(t, sql, "CREATE TABLE `users`")
	assert.Contains(t, sql, "`id` INT NOT NULL")
	assert.Contains(t, sql, "`email` VARCHAR(120) NOT NULL UNIQUE")
	assert.Contains(t, sql, "`created_at` DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP")
	assert.Contains(t, sql, "PRIMARY KEY (`id`)")
	assert.Contains(t, sql, "KEY `idx_users_created` (`created_at`)")
	assert.Contains(t, sql, "ENGINE=InnoDB")

	require.Len(t, res.Down, 1)
	assert.Equal(t, "DROP TABLE `users`;", res.Down[0])
}

func TestDropTableSafeMode(t *testing.T) {
	op := &core.ChangeOperation{Kind: core.OpDropTable, Table: "legacy"}

	res := generate(t, New(), op)
	require.Len(t, res.Up, 1)
	assert.True(t, strings.HasPrefix(res.Up[0], "RENAME TABLE `legacy` TO `"+ddl.InternalPrefix),
		"safe mode renames instead of dropping: %s", res.Up[0])
	require.Len(t, res.Down, 1)
	assert.Contains(t, res.Down[0], "RENAME TABLE", "the rename is reversible")
	assert.NotEmpty(t, res.Warnings)
}

func TestDropTableUnsafe(t *testing.T) {
	g := &Generator{SafeDrops: false}
	op := &core.ChangeOperation{Kind: core.OpDropTable, Table: "legacy"}

	res := generate(t, g, op)
	assert.Equal(t, "DROP TABLE `legacy`;", res.Up[0])
	assert.True(t, strings.HasPrefix(res.Down[0], "--"), "no automatic rollback for a hard drop")
}

func TestAlterColumnTypeNarrowingWarns(t *testing.T) {
	op := &core.ChangeOperation{
		Kind:      core.OpAlterColumnType,
		Table:     "users",
		OldColumn: &core.Column{Name: "bio", Type: "TEXT", Nullable: true},
		NewColumn: &core.Column{Name: "bio", Type: "VARCHAR(100)", Nullable: true},
	}

	res := generate(t, New(), op)
	assert.Equal(t, "ALTER TABLE `users` MODIFY COLUMN `bio` VARCHAR(100) NULL;", res.Up[0])
	assert.Equal(t, "ALTER TABLE `users` MODIFY COLUMN `bio` TEXT NULL;", res.Down[0])
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "two-phase")
}

func TestAlterNullableTightenWarns(t *testing.T) {
	op := &core.ChangeOperation{
		Kind:      core.OpAlterNullable,
		Table:     "users",
		OldColumn: &core.Column{Name: "email", Type: "VARCHAR(120)", Nullable: true},
		NewColumn: &core.Column{Name: "email", Type: "VARCHAR(120)", Nullable: false},
	}

	res := generate(t, New(), op)
	assert.Contains(t, res.Up[0], "NOT NULL")
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "backfill")
}

func TestAddAndDropIndex(t *testing.T) {
	idx := &core.Index{Name: "idx_users_email", Columns: []string{"email"}, Unique: true}

	add := generate(t, New(), &core.ChangeOperation{Kind: core.OpAddIndex, Table: "users", Index: idx})
	assert.Equal(t, "CREATE UNIQUE INDEX `idx_users_email` ON `users` (`email`);", add.Up[0])
	assert.Equal(t, "DROP INDEX `idx_users_email` ON `users`;", add.Down[0])

	drop := generate(t, New(), &core.ChangeOperation{Kind: core.OpDropIndex, Table: "users", Index: idx})
	assert.Equal(t, "DROP INDEX `idx_users_email` ON `users`;", drop.Up[0])
	assert.Equal(t, "CREATE UNIQUE INDEX `idx_users_email` ON `users` (`email`);", drop.Down[0])
}

func TestTypeSpelling(t *testing.T) {
	g := New()
	assert.Equal(t, "INT", g.typeSpelling("INTEGER"))
	assert.Equal(t, "TINYINT(1)", g.typeSpelling("BOOLEAN"))
	assert.Equal(t, "DATETIME", g.typeSpelling("timestamp"))
	assert.Equal(t, "CHAR(36)", g.typeSpelling("UUID"))
	assert.Equal(t, "VARCHAR(50)", g.typeSpelling("varchar(50)"))
}

func TestQuoteIdentifierEscapesBackticks(t *testing.T) {
	assert.Equal(t, "`weird``name`", New().QuoteIdentifier("weird`name"))
}
