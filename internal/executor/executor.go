// Package executor runs migration plans against a live database. Dialects with
// transactional DDL get all-or-nothing applies; the rest run operation by
// operation with checkpoints, so a failure reports exactly how far the plan
// got and a re-run picks up the remaining drift.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"driftsync/internal/core"
	"driftsync/internal/history"
)

// Executor applies plans.
type Executor struct {
	db       *sql.DB
	caps     core.Capabilities
	history  *history.Store
	analyzer *Analyzer
	log      *logrus.Entry

	// HeartbeatInterval is how often a long-running apply logs progress.
	HeartbeatInterval time.Duration
}

// New returns an executor for one database.
func New(db *sql.DB, caps core.Capabilities, hist *history.Store, log *logrus.Entry) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{
		db:                db,
		caps:              caps,
		history:           hist,
		analyzer:          NewAnalyzer(),
		log:               log,
		HeartbeatInterval: 5 * time.Second,
	}
}

// Preflight analyzes a plan's SQL without executing anything.
func (e *Executor) Preflight(plan *core.MigrationPlan) *PreflightResult {
	return e.analyzer.Analyze(plan.Statements())
}

// Apply executes the plan and records the outcome in history. The returned
// error is a PartialApplyError when a non-transactional dialect failed
// mid-plan.
func (e *Executor) Apply(ctx context.Context, plan *core.MigrationPlan) error {
	if plan.IsEmpty() {
		return nil
	}

	log := e.log.WithFields(logrus.Fields{
		"plan":       plan.Version,
		"operations": len(plan.Operations),
		"risk":       plan.Risk.String(),
	})

	stop := e.startHeartbeat(log, plan)
	defer stop()

	var err error
	if e.caps.TransactionalDDL {
		err = e.applyTransactional(ctx, plan, log)
	} else {
		err = e.applyCheckpointed(ctx, plan, log)
	}

	e.record(ctx, plan, err)
	return err
}

func (e *Executor) applyTransactional(ctx context.Context, plan *core.MigrationPlan, log *logrus.Entry) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}

	statements := plan.Statements()
	for i, stmt := range statements {
		log.WithField("statement", fmt.Sprintf("%d/%d", i+1, len(statements))).Debug("executing")
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("statement failed: %w; rollback also failed: %v", err, rbErr)
			}
			return fmt.Errorf("statement failed (rolled back): %w\n  statement: %s", err, truncateSQL(stmt))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	log.WithField("statements", len(statements)).Info("plan applied transactionally")
	return nil
}

// applyCheckpointed executes one operation at a time. Operations already fully
// applied stay applied on failure; re-running apply re-detects only the
// remaining drift, which is how a resume works.
func (e *Executor) applyCheckpointed(ctx context.Context, plan *core.MigrationPlan, log *logrus.Entry) error {
	for i := range plan.Operations {
		po := &plan.Operations[i]
		opLog := log.WithFields(logrus.Fields{
			"operation":  po.Op.String(),
			"checkpoint": fmt.Sprintf("%d/%d", i+1, len(plan.Operations)),
		})
		opLog.Debug("executing operation")

		for _, stmt := range po.Up {
			if _, err := e.db.ExecContext(ctx, stmt); err != nil {
				return &core.PartialApplyError{
					PlanVersion: plan.Version,
					Checkpoint:  i - 1,
					FailedOp:    po.Op.String(),
					Err:         fmt.Errorf("%w\n  statement: %s", err, truncateSQL(stmt)),
				}
			}
		}
		opLog.Debug("operation applied")
	}
	log.WithField("operations", len(plan.Operations)).Info("plan applied with checkpoints")
	return nil
}

// record persists the outcome. History failures are logged, never fatal: the
// schema change already happened and must not be reported as failed because
// bookkeeping did not.
func (e *Executor) record(ctx context.Context, plan *core.MigrationPlan, applyErr error) {
	if e.history == nil {
		return
	}

	status := core.StatusApplied
	if applyErr != nil {
		status = core.StatusFailed
	}
	rec := &core.MigrationRecord{
		Version:     plan.Version,
		Description: plan.Description(),
		AppliedAt:   time.Now().UTC(),
		RollbackSQL: strings.Join(plan.RollbackStatements(), "\n"),
		Risk:        plan.Risk,
		Status:      status,
	}
	if err := e.history.Record(ctx, rec); err != nil {
		e.log.WithField("plan", plan.Version).WithError(err).Warn("failed to record migration history")
	}
}

// startHeartbeat logs periodic progress so operators can tell a long rebuild
// from a hang. The returned func stops the ticker.
func (e *Executor) startHeartbeat(log *logrus.Entry, plan *core.MigrationPlan) func() {
	if e.HeartbeatInterval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	started := time.Now()
	go func() {
		defer close(done)
		ticker := time.NewTicker(e.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				log.WithField("elapsed", time.Since(started).Round(time.Second)).Info("migration still running")
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

// Rollback executes a previously recorded rollback script and marks the
// migration rolled back.
func (e *Executor) Rollback(ctx context.Context, rec *core.MigrationRecord) error {
	if strings.TrimSpace(rec.RollbackSQL) == "" {
		return fmt.Errorf("migration %s recorded no rollback SQL", rec.Version)
	}

	statements := splitStatements(rec.RollbackSQL)
	log := e.log.WithField("plan", rec.Version)
	for i, stmt := range statements {
		log.WithField("statement", fmt.Sprintf("%d/%d", i+1, len(statements))).Debug("executing rollback")
		if strings.HasPrefix(strings.TrimSpace(stmt), "--") {
			continue
		}
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rollback statement failed: %w\n  statement: %s", err, truncateSQL(stmt))
		}
	}

	if e.history != nil {
		if err := e.history.MarkStatus(ctx, rec.Version, core.StatusRolledBack); err != nil {
			log.WithError(err).Warn("failed to mark migration rolled back")
		}
	}
	log.Info("migration rolled back")
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, line := range strings.Split(script, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}
