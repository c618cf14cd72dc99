// Package diff compares two schema snapshots and produces the ordered list of
// change operations that transforms the live schema into the target schema.
package diff

import (
	"sort"
	"strings"

	"driftsync/internal/core"
)

// Diff returns the operations needed to converge live onto target.
//
// The order is deterministic: table adds, then column operations, then index
// operations, then table drops, so later operations never reference structures
// that do not exist yet. Ties are broken by table then column name,
// lexicographic, which keeps plan hashes reproducible. Equal definitions never
// produce an operation, so Diff(a, a) is always empty.
func Diff(live, target *core.Snapshot) []core.ChangeOperation {
	var ops []core.ChangeOperation

	added, common, removed := splitTables(live, target)

	for _, name := range added {
		ops = append(ops, core.ChangeOperation{
			Kind:     core.OpAddTable,
			Table:    name,
			TableDef: target.Tables[name],
		})
	}

	for _, name := range common {
		ops = append(ops, diffColumns(live.Tables[name], target.Tables[name])...)
	}
	for _, name := range common {
		ops = append(ops, diffIndexes(live.Tables[name], target.Tables[name])...)
	}

	for _, name := range removed {
		ops = append(ops, core.ChangeOperation{
			Kind:     core.OpDropTable,
			Table:    name,
			TableDef: live.Tables[name],
		})
	}

	return ops
}

// splitTables partitions table names into target-only, both, and live-only,
// each lexicographically sorted.
func splitTables(live, target *core.Snapshot) (added, common, removed []string) {
	liveNames := lowerSet(live)
	targetNames := lowerSet(target)

	for _, name := range target.TableNames() {
		if _, ok := liveNames[strings.ToLower(name)]; ok {
			common = append(common, name)
		} else {
			added = append(added, name)
		}
	}
	for _, name := range live.TableNames() {
		if _, ok := targetNames[strings.ToLower(name)]; !ok {
			removed = append(removed, name)
		}
	}
	return added, common, removed
}

func lowerSet(s *core.Snapshot) map[string]struct{} {
	out := make(map[string]struct{}, len(s.Tables))
	for name := range s.Tables {
		out[strings.ToLower(name)] = struct{}{}
	}
	return out
}

// diffColumns emits column-level operations for one table: adds, then type and
// nullability alterations, then drops, each sorted by column name. A column
// present live but absent from the target is a drop candidate and is always
// classified destructive downstream.
func diffColumns(live, target *core.Table) []core.ChangeOperation {
	var ops []core.ChangeOperation

	for _, c := range sortedColumns(target) {
		if live.FindColumn(c.Name) == nil {
			ops = append(ops, core.ChangeOperation{Kind: core.OpAddColumn, Table: target.Name, Column: c})
		}
	}

	for _, tc := range sortedColumns(target) {
		lc := live.FindColumn(tc.Name)
		if lc == nil || lc.Equal(tc) {
			continue
		}
		if !strings.EqualFold(lc.Type, tc.Type) {
			ops = append(ops, core.ChangeOperation{
				Kind: core.OpAlterColumnType, Table: target.Name, OldColumn: lc, NewColumn: tc,
			})
		}
		if lc.Nullable != tc.Nullable {
			ops = append(ops, core.ChangeOperation{
				Kind: core.OpAlterNullable, Table: target.Name, OldColumn: lc, NewColumn: tc,
			})
		}
	}

	for _, c := range sortedColumns(live) {
		if target.FindColumn(c.Name) == nil {
			ops = append(ops, core.ChangeOperation{Kind: core.OpDropColumn, Table: target.Name, Column: c})
		}
	}

	return ops
}

// diffIndexes emits index operations for one table. A changed index definition
// becomes a drop followed by an add of the new shape.
func diffIndexes(live, target *core.Table) []core.ChangeOperation {
	var ops []core.ChangeOperation

	for _, idx := range sortedIndexes(target) {
		existing := live.FindIndex(idx.Name)
		if existing != nil && existing.Equal(idx) {
			continue
		}
		if existing != nil {
			ops = append(ops, core.ChangeOperation{Kind: core.OpDropIndex, Table: target.Name, Index: existing})
		}
		ops = append(ops, core.ChangeOperation{Kind: core.OpAddIndex, Table: target.Name, Index: idx})
	}

	for _, idx := range sortedIndexes(live) {
		if target.FindIndex(idx.Name) != nil {
			continue
		}
		// An index over a column that is itself being dropped goes away with
		// the column; an explicit DROP INDEX afterwards would fail.
		if coversDroppedColumn(idx, target) {
			continue
		}
		ops = append(ops, core.ChangeOperation{Kind: core.OpDropIndex, Table: target.Name, Index: idx})
	}

	return ops
}

func coversDroppedColumn(idx *core.Index, target *core.Table) bool {
	for _, col := range idx.Columns {
		if target.FindColumn(col) == nil {
			return true
		}
	}
	return false
}

func sortedColumns(t *core.Table) []*core.Column {
	out := make([]*core.Column, len(t.Columns))
	copy(out, t.Columns)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func sortedIndexes(t *core.Table) []*core.Index {
	out := make([]*core.Index, len(t.Indexes))
	copy(out, t.Indexes)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Describe renders operations as short strings, used by verification errors
// and status output.
func Describe(ops []core.ChangeOperation) []string {
	out := make([]string, 0, len(ops))
	for i := range ops {
		out = append(out, ops[i].String())
	}
	return out
}
