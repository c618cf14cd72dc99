package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsync/internal/core"
)

func samplePlan() *core.MigrationPlan {
	p := &core.MigrationPlan{
		Dialect: core.DialectSQLite,
		Operations: []core.PlannedOperation{
			{
				Op:   core.ChangeOperation{Kind: core.OpAddTable, Table: "users"},
				Risk: core.RiskSafe,
				Up:   []string{`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY);`},
			},
			{
				Op:       core.ChangeOperation{Kind: core.OpDropTable, Table: "legacy"},
				Risk:     core.RiskDestructive,
				Up:       []string{`DROP TABLE "legacy";`},
				Warnings: []string{"dropping legacy deletes all its rows"},
			},
		},
	}
	p.RecomputeRisk()
	p.ComputeVersion()
	return p
}

func TestNewFormatter(t *testing.T) {
	for _, name := range []string{"", "text", "TEXT"} {
		f, err := NewFormatter(name)
		require.NoError(t, err)
		assert.IsType(t, textFormatter{}, f)
	}

	f, err := NewFormatter("json")
	require.NoError(t, err)
	assert.IsType(t, jsonFormatter{}, f)

	_, err = NewFormatter("yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestTextPlan(t *testing.T) {
	f, _ := NewFormatter("text")
	plan := samplePlan()

	out, err := f.FormatPlan(plan)
	require.NoError(t, err)

	assert.Contains(t, out, "Migration plan "+plan.Version)
	assert.Contains(t, out, "risk: DESTRUCTIVE")
	assert.Contains(t, out, "2 operation(s)")
	assert.Contains(t, out, "[SAFE] ADD_TABLE users")
	assert.Contains(t, out, "[DESTRUCTIVE] DROP_TABLE legacy")
	assert.Contains(t, out, "! dropping legacy deletes all its rows")
	assert.Contains(t, out, `   CREATE TABLE "users"`)
	assert.Contains(t, out, "1 destructive operation(s) require confirmation")
}

func TestTextPlanInSync(t *testing.T) {
	f, _ := NewFormatter("text")
	out, err := f.FormatPlan(&core.MigrationPlan{})
	require.NoError(t, err)
	assert.Contains(t, out, "in sync")
}

func TestJSONPlanRoundTrips(t *testing.T) {
	f, _ := NewFormatter("json")
	plan := samplePlan()

	out, err := f.FormatPlan(plan)
	require.NoError(t, err)

	var doc struct {
		Format     string `json:"format"`
		Version    string `json:"version"`
		Dialect    string `json:"dialect"`
		Operations []struct {
			Risk int      `json:"risk"`
			Up   []string `json:"up"`
		} `json:"operations"`
		Summary struct {
			Operations  int `json:"operations"`
			Destructive int `json:"destructive"`
			Statements  int `json:"statements"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	assert.Equal(t, "json", doc.Format)
	assert.Equal(t, plan.Version, doc.Version)
	assert.Equal(t, "sqlite", doc.Dialect)
	require.Len(t, doc.Operations, 2)
	assert.Equal(t, 2, doc.Summary.Operations)
	assert.Equal(t, 1, doc.Summary.Destructive)
	assert.Equal(t, 2, doc.Summary.Statements)
}

func TestTextHistory(t *testing.T) {
	f, _ := NewFormatter("text")

	out, err := f.FormatHistory(nil)
	require.NoError(t, err)
	assert.Contains(t, out, "No migrations recorded")

	records := []core.MigrationRecord{{
		Version:     "aaaa000011112222",
		Description: "ADD_TABLE users",
		AppliedAt:   time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Risk:        core.RiskSafe,
		Status:      core.StatusApplied,
	}}
	out, err = f.FormatHistory(records)
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "aaaa000011112222")
	assert.Contains(t, out, "2026-03-01 12:30:00")
	assert.Contains(t, out, "applied")
}

func TestJSONHistory(t *testing.T) {
	f, _ := NewFormatter("json")
	records := []core.MigrationRecord{{Version: "bbbb000011112222", Status: core.StatusFailed}}

	out, err := f.FormatHistory(records)
	require.NoError(t, err)

	var decoded []core.MigrationRecord
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "bbbb000011112222", decoded[0].Version)
	assert.Equal(t, core.StatusFailed, decoded[0].Status)
}
