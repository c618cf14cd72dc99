// Package engine orchestrates drift detection and repair: snapshot the live
// schema, diff it against the declared model, classify and gate the resulting
// plan, and apply it under a cross-process lock with history bookkeeping.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/sirupsen/logrus"

	"driftsync/internal/core"
	"driftsync/internal/ddl"
	"driftsync/internal/diff"
	"driftsync/internal/executor"
	"driftsync/internal/history"
	"driftsync/internal/introspect"
	"driftsync/internal/lock"
	"driftsync/internal/registry"
	"driftsync/internal/risk"
)

// DefaultLockKey is the lock name used when the configuration does not set one.
const DefaultLockKey = "driftsync.migrate"

// Config carries everything the engine needs beyond the open connection.
type Config struct {
	Dialect core.Dialect
	// DSN identifies the connection for cache scoping and error messages; the
	// engine never dials with it.
	DSN string
	// DatabasePath locates the sqlite file for file locking; ignored by
	// server dialects.
	DatabasePath string

	LockKey  string
	LockWait time.Duration

	// ForceDestructive lets destructive plans through without a confirmation
	// hook approving them.
	ForceDestructive bool

	// SnapshotTTL bounds how long a cached live snapshot may serve Plan and
	// Status calls. Zero disables caching.
	SnapshotTTL time.Duration
}

// Confirm decides interactively whether a destructive plan may proceed.
type Confirm func(plan *core.MigrationPlan) (bool, error)

// Engine wires the pipeline together for one database.
type Engine struct {
	cfg        Config
	dialect    core.Dialect
	db         *sql.DB
	reg        *registry.Registry
	intro      introspect.Introspecter
	generator  ddl.Generator
	classifier *risk.Classifier
	hist       *history.Store
	exec       *executor.Executor
	lockProv   lock.Provider
	hooks      []Hook
	confirm    Confirm
	cache      gcache.Cache
	log        *logrus.Entry
}

// New builds an engine over an already-open database. The registry supplies
// the desired schema.
func New(cfg Config, db *sql.DB, reg *registry.Registry, log *logrus.Entry) (*Engine, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = reg.Dialect
	}
	if dialect == "" {
		return nil, fmt.Errorf("no dialect configured and the model registry declares none")
	}
	if cfg.LockKey == "" {
		cfg.LockKey = DefaultLockKey
	}

	intro, err := introspect.NewIntrospecter(dialect)
	if err != nil {
		return nil, err
	}
	gen, err := ddl.ForDialect(dialect)
	if err != nil {
		return nil, err
	}

	caps := core.CapabilitiesFor(dialect)
	prov, err := lock.ProviderFor(caps.Lock, db, cfg.DatabasePath, log)
	if err != nil {
		return nil, err
	}

	hist := history.New(db, dialect, log)
	e := &Engine{
		cfg:        cfg,
		dialect:    dialect,
		db:         db,
		reg:        reg,
		intro:      intro,
		generator:  gen,
		classifier: risk.NewClassifier(log),
		hist:       hist,
		exec:       executor.New(db, caps, hist, log),
		lockProv:   prov,
		log:        log.WithField("dialect", string(dialect)),
	}
	if cfg.SnapshotTTL > 0 {
		e.cache = gcache.New(16).LRU().Expiration(cfg.SnapshotTTL).Build()
	}
	return e, nil
}

// SetConfirm installs the destructive-plan confirmation callback.
func (e *Engine) SetConfirm(fn Confirm) { e.confirm = fn }

// History exposes the underlying history store.
func (e *Engine) History() *history.Store { return e.hist }

// cacheKey scopes cached snapshots to one connection identity, so two engines
// against different databases never share entries.
func (e *Engine) cacheKey() string {
	return string(e.dialect) + "|" + e.cfg.DSN
}

// liveSnapshot introspects the database, consulting the cache unless fresh is
// set. The history table is part of driftsync's own footprint and is removed
// before comparison.
func (e *Engine) liveSnapshot(ctx context.Context, fresh bool) (*core.Snapshot, error) {
	if !fresh && e.cache != nil {
		if v, err := e.cache.Get(e.cacheKey()); err == nil {
			if snap, ok := v.(*core.Snapshot); ok {
				e.log.Debug("using cached schema snapshot")
				return snap, nil
			}
		}
	}

	snap, err := e.intro.Snapshot(ctx, e.db)
	if err != nil {
		return nil, err
	}
	delete(snap.Tables, history.TableName)

	if e.cache != nil {
		_ = e.cache.Set(e.cacheKey(), snap)
	}
	return snap, nil
}

// invalidateSnapshot drops the cached snapshot after anything mutated the
// schema.
func (e *Engine) invalidateSnapshot() {
	if e.cache != nil {
		e.cache.Remove(e.cacheKey())
	}
}

// Plan computes the migration plan that would bring the live schema in line
// with the model registry. It performs no writes.
func (e *Engine) Plan(ctx context.Context) (*core.MigrationPlan, error) {
	_ = e.runHooks(ctx, PhaseBeforePlan, nil)

	live, err := e.liveSnapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	plan, err := e.buildPlan(live, e.reg.TargetSnapshot(e.dialect))
	if err != nil {
		return nil, err
	}

	_ = e.runHooks(ctx, PhaseAfterPlan, plan)
	return plan, nil
}

// ApplyResult reports what an apply did.
type ApplyResult struct {
	Plan     *core.MigrationPlan
	Applied  bool
	Skipped  string
	Warnings []executor.Warning
}

// Apply detects drift and repairs it. The whole sequence runs under the
// migration lock; when another process holds it, the returned error is a
// recoverable lock timeout.
func (e *Engine) Apply(ctx context.Context) (*ApplyResult, error) {
	coord := lock.NewCoordinator(e.lockProv, e.cfg.LockKey, lock.Options{Wait: e.cfg.LockWait}, e.log)
	if err := coord.Acquire(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := coord.Release(context.WithoutCancel(ctx)); err != nil {
			e.log.WithError(err).Warn("failed to release migration lock")
		}
	}()

	if err := e.hist.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	// Always plan from a fresh snapshot under the lock: the previous holder
	// may have changed the schema while we waited.
	live, err := e.liveSnapshot(ctx, true)
	if err != nil {
		return nil, err
	}
	target := e.reg.TargetSnapshot(e.dialect)
	plan, err := e.buildPlan(live, target)
	if err != nil {
		return nil, err
	}

	if plan.IsEmpty() {
		e.log.Info("schema is in sync, nothing to apply")
		return &ApplyResult{Plan: plan, Skipped: "no drift"}, nil
	}

	if err := e.gateDestructive(plan); err != nil {
		return nil, err
	}

	preflight := e.exec.Preflight(plan)
	for _, w := range preflight.Warnings {
		e.log.WithFields(logrus.Fields{"level": string(w.Level), "sql": truncate(w.SQL)}).Warn(w.Message)
	}

	if err := e.runHooks(ctx, PhaseBeforeApply, plan); err != nil {
		return nil, err
	}

	if err := e.exec.Apply(ctx, plan); err != nil {
		return nil, err
	}
	e.invalidateSnapshot()

	if err := e.verify(ctx, plan); err != nil {
		return nil, err
	}

	_ = e.runHooks(ctx, PhaseAfterApply, plan)

	return &ApplyResult{Plan: plan, Applied: true, Warnings: preflight.Warnings}, nil
}

// gateDestructive blocks destructive plans unless forced or confirmed.
func (e *Engine) gateDestructive(plan *core.MigrationPlan) error {
	if plan.Risk < core.RiskDestructive || e.cfg.ForceDestructive {
		return nil
	}
	if e.confirm != nil {
		ok, err := e.confirm(plan)
		if err != nil {
			return fmt.Errorf("confirmation hook: %w", err)
		}
		if ok {
			return nil
		}
	}

	var names []string
	for _, po := range plan.DestructiveOperations() {
		names = append(names, po.Op.String())
	}
	return &core.RiskRefusedError{Operations: names}
}

// verify re-introspects after an apply and confirms the drift is gone.
func (e *Engine) verify(ctx context.Context, plan *core.MigrationPlan) error {
	live, err := e.liveSnapshot(ctx, true)
	if err != nil {
		return fmt.Errorf("post-apply verification: %w", err)
	}
	remaining := diff.Diff(live, e.reg.TargetSnapshot(e.dialect))
	if len(remaining) == 0 {
		return nil
	}
	return &core.VerificationError{PlanVersion: plan.Version, Remaining: diff.Describe(remaining)}
}

// Rollback undoes a previously applied migration from its recorded SQL, under
// the migration lock. An empty version targets the most recent record.
func (e *Engine) Rollback(ctx context.Context, version string) (*core.MigrationRecord, error) {
	coord := lock.NewCoordinator(e.lockProv, e.cfg.LockKey, lock.Options{Wait: e.cfg.LockWait}, e.log)
	if err := coord.Acquire(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := coord.Release(context.WithoutCancel(ctx)); err != nil {
			e.log.WithError(err).Warn("failed to release migration lock")
		}
	}()

	rec, err := e.findRecord(ctx, version)
	if err != nil {
		return nil, err
	}
	if rec.Status != core.StatusApplied {
		return nil, fmt.Errorf("migration %s is %s; only applied migrations can be rolled back", rec.Version, rec.Status)
	}

	if err := e.exec.Rollback(ctx, rec); err != nil {
		return nil, err
	}
	e.invalidateSnapshot()
	return rec, nil
}

func (e *Engine) findRecord(ctx context.Context, version string) (*core.MigrationRecord, error) {
	if version == "" {
		rec, err := e.hist.Latest(ctx)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("no migrations recorded")
		}
		return rec, nil
	}

	recs, err := e.hist.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Version == version {
			return &recs[i], nil
		}
	}
	return nil, fmt.Errorf("migration %s not found in history", version)
}

// Status describes where the live schema stands relative to the model.
type Status struct {
	Dialect      core.Dialect          `json:"dialect"`
	InSync       bool                  `json:"inSync"`
	PendingOps   int                   `json:"pendingOps"`
	PendingRisk  core.RiskLevel        `json:"pendingRisk"`
	PlanVersion  string                `json:"planVersion,omitempty"`
	SnapshotHash string                `json:"snapshotHash"`
	LastApplied  *core.MigrationRecord `json:"lastApplied,omitempty"`
}

// Status computes current drift and the most recent history entry without
// taking the lock or writing anything.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	live, err := e.liveSnapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	plan, err := e.buildPlan(live, e.reg.TargetSnapshot(e.dialect))
	if err != nil {
		return nil, err
	}

	st := &Status{
		Dialect:      e.dialect,
		InSync:       plan.IsEmpty(),
		PendingOps:   len(plan.Operations),
		PendingRisk:  plan.Risk,
		SnapshotHash: live.Hash(),
	}
	if !plan.IsEmpty() {
		st.PlanVersion = plan.Version
	}

	if last, err := e.hist.Latest(ctx); err == nil {
		st.LastApplied = last
	} else {
		// History table may not exist before the first apply.
		e.log.WithError(err).Debug("no migration history available")
	}
	return st, nil
}

func truncate(s string) string {
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}
