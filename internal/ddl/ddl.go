// Package ddl turns change operations into executable statements for a target
// dialect. Generators are selected through a capability-keyed registry rather
// than subclassing; each strategy is a pure function of (operation, dialect).
package ddl

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"driftsync/internal/core"
)

// InternalPrefix marks tables driftsync creates for its own purposes: shadow
// tables during a rebuild and backup tables from safe-mode drops. Snapshot
// builders ignore tables carrying this prefix.
const InternalPrefix = "__driftsync_"

// ShadowSuffix and BackupSuffix distinguish the two internal table roles.
const (
	shadowTag = InternalPrefix + "new_"
	backupTag = InternalPrefix + "backup_"
)

const maxIdentLen = 64

// Request carries one operation plus the table's shape before and after it
// runs. Target reflects only this operation's change, never the final model
// shape: a rebuild must not absorb index changes that later operations in the
// same plan still apply.
type Request struct {
	Op     *core.ChangeOperation
	Live   *core.Table
	Target *core.Table
}

// Result holds the generated forward and rollback statements for one operation.
type Result struct {
	Up       []string
	Down     []string
	Warnings []string
}

// Generator produces dialect-appropriate DDL for a single change operation.
type Generator interface {
	Dialect() core.Dialect
	Generate(req Request) (*Result, error)
	QuoteIdentifier(name string) string
}

var (
	registry   = make(map[core.Dialect]func() Generator)
	registryMu sync.RWMutex
)

// Register adds a generator constructor for a dialect.
func Register(d core.Dialect, ctor func() Generator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d] = ctor
}

// ForDialect returns a generator for the dialect or an error when none is
// registered.
func ForDialect(d core.Dialect) (Generator, error) {
	registryMu.RLock()
	ctor, ok := registry[d]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no DDL generator registered for dialect %q", d)
	}
	return ctor(), nil
}

// ShadowName derives the shadow table name used while rebuilding a table.
func ShadowName(table string) string {
	return taggedName(shadowTag, table)
}

// BackupName derives the backup table name used by safe-mode drops. The FNV-1a
// suffix keeps renames of same-named tables from colliding while staying inside
// identifier length limits.
func BackupName(table string) string {
	return taggedName(backupTag, table)
}

func taggedName(tag, table string) string {
	base := strings.TrimSpace(table)
	h := fnv.New64a()
	_, _ = h.Write([]byte(base))
	name := fmt.Sprintf("%s%s_%08x", tag, base, h.Sum64()&0xffffffff)
	if len(name) > maxIdentLen {
		keep := maxIdentLen - len(tag) - 9
		if keep < 1 {
			keep = 1
		}
		name = fmt.Sprintf("%s%s_%08x", tag, base[:keep], h.Sum64()&0xffffffff)
	}
	return name
}

// IsInternalTable reports whether a table name belongs to driftsync itself.
func IsInternalTable(name string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), InternalPrefix)
}

// DefaultIndexName builds a deterministic index name when the registry did not
// declare one.
func DefaultIndexName(table string, columns []string) string {
	return fmt.Sprintf("idx_%s_%s", strings.ToLower(table), strings.ToLower(strings.Join(columns, "_")))
}
