package core

// LockStrategy names the locking primitive a dialect offers for cross-process
// mutual exclusion.
type LockStrategy string

const (
	// LockAdvisory uses a session-scoped server-side advisory lock
	// (pg_try_advisory_lock).
	LockAdvisory LockStrategy = "advisory"
	// LockNamed uses a named server-side lock function (GET_LOCK).
	LockNamed LockStrategy = "named"
	// LockFile falls back to a heartbeat-carrying lock file next to the
	// database when the server has no lock primitive.
	LockFile LockStrategy = "file"
)

// Capabilities describes what a dialect can do in place. DDL strategy and lock
// provider selection key off this table instead of per-dialect subclassing.
type Capabilities struct {
	// TransactionalDDL is true when DDL participates in transactions and a
	// whole plan can be applied all-or-nothing.
	TransactionalDDL bool
	// NativeAlterColumn is true when the dialect can change a column's type
	// or nullability in place.
	NativeAlterColumn bool
	// NativeDropColumn is true when the dialect can drop a column in place.
	NativeDropColumn bool
	// Lock selects the lock provider for this dialect.
	Lock LockStrategy
}

// NeedsRebuild reports whether the operation kind requires the copy-swap-drop
// strategy on this dialect.
func (c Capabilities) NeedsRebuild(kind OpKind) bool {
	switch kind {
	case OpAlterColumnType, OpAlterNullable:
		return !c.NativeAlterColumn
	case OpDropColumn:
		return !c.NativeDropColumn
	default:
		return false
	}
}

var capabilityTable = map[Dialect]Capabilities{
	DialectMySQL: {
		TransactionalDDL:  false, // DDL causes implicit commits
		NativeAlterColumn: true,
		NativeDropColumn:  true,
		Lock:              LockNamed,
	},
	DialectPostgreSQL: {
		TransactionalDDL:  true,
		NativeAlterColumn: true,
		NativeDropColumn:  true,
		Lock:              LockAdvisory,
	},
	DialectSQLite: {
		TransactionalDDL:  true,
		NativeAlterColumn: false, // no MODIFY COLUMN; rebuild required
		NativeDropColumn:  false,
		Lock:              LockFile,
	},
}

// CapabilitiesFor returns the capability row for a dialect. Unknown dialects
// get the most conservative profile: nothing in place, file locking.
func CapabilitiesFor(d Dialect) Capabilities {
	if caps, ok := capabilityTable[d]; ok {
		return caps
	}
	return Capabilities{Lock: LockFile}
}
