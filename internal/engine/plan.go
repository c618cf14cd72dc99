package engine

import (
	"fmt"
	"strings"

	"driftsync/internal/core"
	"driftsync/internal/ddl"
	"driftsync/internal/diff"
)

// buildPlan turns raw drift between two snapshots into an executable plan:
// each operation gets its risk level and its forward and rollback SQL.
//
// Each request sees the table shape stepped one operation at a time rather
// than the final target shape. A copy-swap-drop rebuild then carries over the
// indexes that still exist at its point in the plan, and the index operations
// diffed after it apply cleanly instead of double-creating or dropping
// indexes the rebuild already discarded.
func (e *Engine) buildPlan(live, target *core.Snapshot) (*core.MigrationPlan, error) {
	ops := diff.Diff(live, target)

	plan := &core.MigrationPlan{Dialect: e.dialect}
	caps := core.CapabilitiesFor(e.dialect)

	shapes := make(map[string]*core.Table)
	current := func(name string) *core.Table {
		if t, ok := shapes[strings.ToLower(name)]; ok {
			return t
		}
		return live.FindTable(name)
	}

	for i := range ops {
		op := &ops[i]
		before := current(op.Table)
		after := stepShape(before, op)

		res, err := e.generator.Generate(ddl.Request{Op: op, Live: before, Target: after})
		if err != nil {
			return nil, fmt.Errorf("generating DDL for %s: %w", op.String(), err)
		}
		shapes[strings.ToLower(op.Table)] = after

		plan.Operations = append(plan.Operations, core.PlannedOperation{
			Op:       *op,
			Risk:     e.classifier.Classify(op, caps),
			Up:       res.Up,
			Down:     res.Down,
			Warnings: res.Warnings,
		})
	}

	plan.RecomputeRisk()
	plan.ComputeVersion()
	return plan, nil
}

// stepShape returns the shape a table has once one operation ran against it.
// A dropped table steps to nil; dropping a column also drops the indexes that
// reference it, since that is what every dialect's drop does.
func stepShape(before *core.Table, op *core.ChangeOperation) *core.Table {
	switch op.Kind {
	case core.OpAddTable:
		return op.TableDef.Clone()
	case core.OpDropTable:
		return nil
	}
	if before == nil {
		return nil
	}

	after := before.Clone()
	switch op.Kind {
	case core.OpAddColumn:
		after.Columns = append(after.Columns, op.Column.Clone())
	case core.OpDropColumn:
		after.Columns = withoutColumn(after.Columns, op.Column.Name)
		after.Indexes = withoutIndexesOn(after.Indexes, op.Column.Name)
	case core.OpAlterColumnType, core.OpAlterNullable:
		for i, c := range after.Columns {
			if strings.EqualFold(c.Name, op.NewColumn.Name) {
				after.Columns[i] = op.NewColumn.Clone()
			}
		}
	case core.OpAddIndex:
		after.Indexes = append(after.Indexes, op.Index.Clone())
	case core.OpDropIndex:
		kept := after.Indexes[:0]
		for _, idx := range after.Indexes {
			if !strings.EqualFold(idx.Name, op.Index.Name) {
				kept = append(kept, idx)
			}
		}
		after.Indexes = kept
	}
	return after
}

func withoutColumn(cols []*core.Column, name string) []*core.Column {
	kept := cols[:0]
	for _, c := range cols {
		if !strings.EqualFold(c.Name, name) {
			kept = append(kept, c)
		}
	}
	return kept
}

func withoutIndexesOn(indexes []*core.Index, column string) []*core.Index {
	kept := indexes[:0]
	for _, idx := range indexes {
		covers := false
		for _, c := range idx.Columns {
			if strings.EqualFold(c, column) {
				covers = true
				break
			}
		}
		if !covers {
			kept = append(kept, idx)
		}
	}
	return kept
}
