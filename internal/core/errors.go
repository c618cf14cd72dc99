package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConnectivityError reports an unreachable database. Fatal.
type ConnectivityError struct {
	Target string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cannot reach database %q: %v; check the DSN and that the server accepts connections", e.Target, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IntrospectionError reports malformed dialect metadata. Fatal.
type IntrospectionError struct {
	Dialect Dialect
	Table   string
	Detail  string
	Err     error
}

func (e *IntrospectionError) Error() string {
	loc := string(e.Dialect)
	if e.Table != "" {
		loc += " table " + e.Table
	}
	msg := fmt.Sprintf("introspection failed for %s: %s", loc, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + "; the catalog metadata may be corrupt or the dialect version unsupported"
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// LockTimeoutError means another process holds the migration lock. Recoverable:
// the instance skips migration and continues startup.
type LockTimeoutError struct {
	Key     string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("could not acquire migration lock %q within %s: another process is migrating; this instance will skip and rely on the lock holder to converge the schema", e.Key, e.Timeout)
}

// RiskRefusedError blocks a destructive change that was not explicitly
// confirmed. Recoverable: re-run with the destructive override.
type RiskRefusedError struct {
	Operations []string
}

func (e *RiskRefusedError) Error() string {
	return fmt.Sprintf("refusing %d destructive operation(s): %s; re-run apply with --force-destructive (or approve via confirmation hook) to proceed",
		len(e.Operations), strings.Join(e.Operations, "; "))
}

// VerificationError means drift remained after a plan was applied. Fatal; it
// signals a generator defect rather than an operator mistake.
type VerificationError struct {
	PlanVersion string
	Remaining   []string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("schema still diverges after applying plan %s (%d remaining: %s); this indicates a DDL generation defect, please report it with the plan output",
		e.PlanVersion, len(e.Remaining), strings.Join(e.Remaining, "; "))
}

// PartialApplyError means a non-transactional dialect failed mid-plan. Fatal
// but resumable: Checkpoint is the index of the last operation that fully
// applied.
type PartialApplyError struct {
	PlanVersion string
	Checkpoint  int
	FailedOp    string
	Err         error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("plan %s failed at %s after %d operation(s) were already applied: %v; fix the cause and re-run apply to resume from the checkpoint",
		e.PlanVersion, e.FailedOp, e.Checkpoint+1, e.Err)
}

func (e *PartialApplyError) Unwrap() error { return e.Err }

// IsRecoverable reports whether the error lets an instance continue startup
// without the schema change having been applied by this process.
func IsRecoverable(err error) bool {
	var lockErr *LockTimeoutError
	var riskErr *RiskRefusedError
	return errors.As(err, &lockErr) || errors.As(err, &riskErr)
}
