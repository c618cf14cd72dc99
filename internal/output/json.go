package output

import (
	"encoding/json"
	"fmt"

	"driftsync/internal/core"
)

type jsonFormatter struct{}

type jsonPlan struct {
	Format string `json:"format"`
	*core.MigrationPlan
	Summary jsonPlanSummary `json:"summary"`
}

type jsonPlanSummary struct {
	Operations  int `json:"operations"`
	Destructive int `json:"destructive"`
	Statements  int `json:"statements"`
}

// FormatPlan renders the plan as indented JSON for tooling.
func (jsonFormatter) FormatPlan(plan *core.MigrationPlan) (string, error) {
	doc := jsonPlan{
		Format:        "json",
		MigrationPlan: plan,
		Summary: jsonPlanSummary{
			Operations:  len(plan.Operations),
			Destructive: len(plan.DestructiveOperations()),
			Statements:  len(plan.Statements()),
		},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding plan: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatHistory renders history rows as a JSON array.
func (jsonFormatter) FormatHistory(records []core.MigrationRecord) (string, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding history: %w", err)
	}
	return string(data) + "\n", nil
}
