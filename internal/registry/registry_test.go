package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsync/internal/core"
)

const sampleModel = `
[registry]
name    = "shop"
dialect = "sqlite"

[[models]]
table = "users"

  [[models.columns]]
  name        = "id"
  type        = "integer"
  primary_key = true

  [[models.columns]]
  name   = "email"
  type   = "varchar(120)"
  unique = true

  [[models.columns]]
  name     = "active"
  type     = "boolean"
  default  = true

  [[models.indexes]]
  columns = ["email"]

[[models]]
table = "orders"

  [[models.columns]]
  name        = "id"
  type        = "integer"
  primary_key = true

  [[models.columns]]
  name     = "amount"
  type     = "decimal(10,2)"
  default  = 0
`

func TestParse(t *testing.T) {
	reg, err := Parse(strings.NewReader(sampleModel))
	require.NoError(t, err)

	assert.Equal(t, "shop", reg.Name)
	assert.Equal(t, core.DialectSQLite, reg.Dialect)
	require.Len(t, reg.Tables, 2)

	users := reg.Tables[0]
	assert.Equal(t, "users", users.Name)
	require.Len(t, users.Columns, 3)

	id := users.FindColumn("id")
	require.NotNil(t, id)
	assert.Equal(t, "INTEGER", id.Type, "types normalize on parse")
	assert.True(t, id.PrimaryKey)
	assert.False(t, id.Nullable, "primary keys are never nullable")

	email := users.FindColumn("email")
	require.NotNil(t, email)
	assert.Equal(t, "VARCHAR(120)", email.Type)
	assert.True(t, email.Unique)

	active := users.FindColumn("active")
	require.NotNil(t, active)
	require.NotNil(t, active.DefaultValue)
	assert.Equal(t, "TRUE", *active.DefaultValue, "booleans normalize to SQL keywords")

	require.Len(t, users.Indexes, 1)
	assert.Equal(t, "idx_users_email", users.Indexes[0].Name, "missing index names are generated deterministically")

	amount := reg.Tables[1].FindColumn("amount")
	require.NotNil(t, amount)
	assert.Equal(t, "DECIMAL(10,2)", amount.Type)
	require.NotNil(t, amount.DefaultValue)
	assert.Equal(t, "0", *amount.DefaultValue)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleModel), 0o644))

	reg, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, reg.Tables, 2)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseRejectsDuplicates(t *testing.T) {
	const dup = `
[[models]]
table = "users"
  [[models.columns]]
  name = "id"
  type = "integer"

[[models]]
table = "Users"
  [[models.columns]]
  name = "id"
  type = "integer"
`
	_, err := Parse(strings.NewReader(dup))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate table")
}

func TestParseRejectsDuplicateColumns(t *testing.T) {
	const dup = `
[[models]]
table = "users"
  [[models.columns]]
  name = "id"
  type = "integer"
  [[models.columns]]
  name = "ID"
  type = "integer"
`
	_, err := Parse(strings.NewReader(dup))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}

func TestParseRejectsReservedPrefix(t *testing.T) {
	const reserved = `
[[models]]
table = "__driftsync_new_users"
  [[models.columns]]
  name = "id"
  type = "integer"
`
	_, err := Parse(strings.NewReader(reserved))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestParseRejectsUnknownDialect(t *testing.T) {
	const bad = `
[registry]
dialect = "oracle"
`
	_, err := Parse(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dialect")
}

func TestParseRejectsIndexOnUnknownColumn(t *testing.T) {
	const bad = `
[[models]]
table = "users"
  [[models.columns]]
  name = "id"
  type = "integer"
  [[models.indexes]]
  name    = "idx_users_email"
  columns = ["email"]
`
	_, err := Parse(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")
}

func TestTargetSnapshot(t *testing.T) {
	reg, err := Parse(strings.NewReader(sampleModel))
	require.NoError(t, err)

	snap := reg.TargetSnapshot(core.DialectPostgreSQL)
	assert.Equal(t, core.DialectPostgreSQL, snap.Dialect)
	assert.Equal(t, []string{"orders", "users"}, snap.TableNames())
}
