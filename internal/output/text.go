package output

import (
	"fmt"
	"strings"

	"driftsync/internal/core"
)

type textFormatter struct{}

// FormatPlan renders a plan grouped by operation, with risk markers and the
// SQL that would run.
func (textFormatter) FormatPlan(plan *core.MigrationPlan) (string, error) {
	if plan.IsEmpty() {
		return "Schema is in sync. No changes to apply.\n", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Migration plan %s (%s, risk: %s)\n", plan.Version, plan.Dialect, plan.Risk)
	fmt.Fprintf(&sb, "%d operation(s):\n", len(plan.Operations))

	for i := range plan.Operations {
		po := &plan.Operations[i]
		fmt.Fprintf(&sb, "\n%d. [%s] %s\n", i+1, po.Risk, po.Op.String())
		for _, w := range po.Warnings {
			fmt.Fprintf(&sb, "   ! %s\n", w)
		}
		for _, stmt := range po.Up {
			writeIndented(&sb, stmt)
		}
	}

	if destructive := plan.DestructiveOperations(); len(destructive) > 0 {
		fmt.Fprintf(&sb, "\n%d destructive operation(s) require confirmation or --force-destructive.\n", len(destructive))
	}
	return sb.String(), nil
}

func writeIndented(sb *strings.Builder, stmt string) {
	for _, line := range strings.Split(strings.TrimRight(stmt, "\n"), "\n") {
		fmt.Fprintf(sb, "   %s\n", line)
	}
}

// FormatHistory renders history rows newest first.
func (textFormatter) FormatHistory(records []core.MigrationRecord) (string, error) {
	if len(records) == 0 {
		return "No migrations recorded.\n", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-18s %-22s %-12s %-11s %s\n", "VERSION", "APPLIED AT", "RISK", "STATUS", "DESCRIPTION")
	for i := range records {
		r := &records[i]
		desc := r.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		fmt.Fprintf(&sb, "%-18s %-22s %-12s %-11s %s\n",
			r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"), r.Risk, r.Status, desc)
	}
	return sb.String(), nil
}
