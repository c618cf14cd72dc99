package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"driftsync/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := New(db, core.DialectSQLite, nil)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func record(version string, at time.Time) *core.MigrationRecord {
	return &core.MigrationRecord{
		Version:     version,
		Description: "add users table",
		AppliedAt:   at,
		RollbackSQL: "DROP TABLE \"users\";",
		Risk:        core.RiskSafe,
		Status:      core.StatusApplied,
	}
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.EnsureSchema(context.Background()))
}

func TestRecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, record("aaaa000011112222", base)))
	require.NoError(t, s.Record(ctx, record("bbbb000011112222", base.Add(time.Hour))))

	recs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "bbbb000011112222", recs[0].Version, "newest first")
	assert.Equal(t, "aaaa000011112222", recs[1].Version)
	assert.Equal(t, "add users table", recs[0].Description)
	assert.Equal(t, "DROP TABLE \"users\";", recs[0].RollbackSQL)
	assert.Equal(t, core.RiskSafe, recs[0].Risk)
	assert.Equal(t, core.StatusApplied, recs[0].Status)
}

func TestRecordDuplicateVersionIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, record("cafe000011112222", at)))
	require.NoError(t, s.Record(ctx, record("cafe000011112222", at.Add(time.Minute))))

	recs, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRecordFillsAppliedAt(t *testing.T) {
	s := newTestStore(t)
	rec := record("dead000011112222", time.Time{})

	require.NoError(t, s.Record(context.Background(), rec))
	assert.False(t, rec.AppliedAt.IsZero())
}

func TestMarkStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, record("feed000011112222", time.Now().UTC())))
	require.NoError(t, s.MarkStatus(ctx, "feed000011112222", core.StatusRolledBack))

	recs, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, core.StatusRolledBack, recs[0].Status)

	err = s.MarkStatus(ctx, "0000000000000000", core.StatusApplied)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestHasApplied(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.HasApplied(ctx, "beef000011112222")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Record(ctx, record("beef000011112222", time.Now().UTC())))
	ok, err = s.HasApplied(ctx, "beef000011112222")
	require.NoError(t, err)
	assert.True(t, ok)

	// Rolled-back versions no longer count as applied.
	require.NoError(t, s.MarkStatus(ctx, "beef000011112222", core.StatusRolledBack))
	ok, err = s.HasApplied(ctx, "beef000011112222")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, v := range []string{"1111000011112222", "2222000011112222", "3333000011112222"} {
		require.NoError(t, s.Record(ctx, record(v, base.Add(time.Duration(i)*time.Hour))))
	}

	recs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "3333000011112222", recs[0].Version)
}

func TestLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec, "empty history has no latest record")

	require.NoError(t, s.Record(ctx, record("abcd000011112222", time.Now().UTC())))
	rec, err = s.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "abcd000011112222", rec.Version)
}
