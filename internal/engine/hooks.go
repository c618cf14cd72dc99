package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"driftsync/internal/core"
)

// Phase names the point in the apply lifecycle a hook fires at.
type Phase string

const (
	PhaseBeforePlan  Phase = "before-plan"
	PhaseAfterPlan   Phase = "after-plan"
	PhaseBeforeApply Phase = "before-apply"
	PhaseAfterApply  Phase = "after-apply"
)

// Event is what hooks receive. The plan is the one about to be (or just)
// applied; hooks must not mutate it.
type Event struct {
	Phase   Phase
	Plan    *core.MigrationPlan
	Dialect core.Dialect
}

// Hook is a named callback. Returning an error from a before-apply hook aborts
// the apply; errors from after-apply hooks are logged but do not undo the
// migration.
type Hook struct {
	Name   string
	Phases []Phase
	Fn     func(ctx context.Context, ev *Event) error
}

func (h *Hook) firesAt(phase Phase) bool {
	if len(h.Phases) == 0 {
		return true
	}
	for _, p := range h.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// AddHook registers a hook. Hooks run in registration order.
func (e *Engine) AddHook(h Hook) {
	e.hooks = append(e.hooks, h)
}

// runHooks fires every hook registered for the phase, in order. A panicking
// hook is contained and logged rather than crashing the engine; only an
// explicit error return aborts.
func (e *Engine) runHooks(ctx context.Context, phase Phase, plan *core.MigrationPlan) error {
	ev := &Event{Phase: phase, Plan: plan, Dialect: e.dialect}
	for i := range e.hooks {
		h := &e.hooks[i]
		if !h.firesAt(phase) {
			continue
		}
		err := e.runHook(ctx, h, ev)
		if err == nil {
			continue
		}
		if phase == PhaseBeforeApply {
			return fmt.Errorf("hook %q aborted apply: %w", h.Name, err)
		}
		e.log.WithFields(logrus.Fields{"hook": h.Name, "phase": phase}).WithError(err).Warn("hook failed")
	}
	return nil
}

func (e *Engine) runHook(ctx context.Context, h *Hook, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{"hook": h.Name, "phase": ev.Phase}).
				Warnf("hook panicked: %v", r)
			err = nil
		}
	}()
	return h.Fn(ctx, ev)
}
