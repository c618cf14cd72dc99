package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShadowAndBackupNames(t *testing.T) {
	shadow := ShadowName("users")
	backup := BackupName("users")

	assert.True(t, strings.HasPrefix(shadow, InternalPrefix))
	assert.True(t, strings.HasPrefix(backup, InternalPrefix))
	assert.NotEqual(t, shadow, backup)

	assert.Equal(t, shadow, ShadowName("users"), "names are deterministic")
	assert.NotEqual(t, ShadowName("users"), ShadowName("orders"))
}

func TestTaggedNameRespectsIdentifierLimit(t *testing.T) {
	long := strings.Repeat("a", 100)
	for _, name := range []string{ShadowName(long), BackupName(long)} {
		assert.LessOrEqual(t, len(name), 64)
		assert.True(t, strings.HasPrefix(name, InternalPrefix))
	}
	// Distinct long names keep distinct suffix hashes even after truncation.
	other := strings.Repeat("a", 99) + "b"
	assert.NotEqual(t, ShadowName(long), ShadowName(other))
}

func TestIsInternalTable(t *testing.T) {
	assert.True(t, IsInternalTable(ShadowName("users")))
	assert.True(t, IsInternalTable(BackupName("users")))
	assert.True(t, IsInternalTable("__DRIFTSYNC_new_x"))
	assert.False(t, IsInternalTable("users"))
	assert.False(t, IsInternalTable("driftsync_migrations"))
}

func TestDefaultIndexName(t *testing.T) {
	assert.Equal(t, "idx_users_email", DefaultIndexName("users", []string{"email"}))
	assert.Equal(t, "idx_orders_user_id_created", DefaultIndexName("Orders", []string{"user_id", "created"}))
}

func TestFormatDefault(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CURRENT_TIMESTAMP", "CURRENT_TIMESTAMP"},
		{"current_timestamp", "CURRENT_TIMESTAMP"},
		{"null", "NULL"},
		{"true", "TRUE"},
		{"42", "42"},
		{"3.14", "3.14"},
		{"active", "'active'"},
		{"it's", "'it''s'"},
		{"uuid()", "uuid()"},
		{"", "''"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDefault(tt.in, QuoteSingle), "FormatDefault(%q)", tt.in)
	}
}

func TestForDialectUnknown(t *testing.T) {
	_, err := ForDialect("oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no DDL generator registered")
}
