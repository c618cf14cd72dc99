// Package risk assigns a risk level to each change operation through an ordered
// rule set. One broken rule must not block all migrations: a rule that fails is
// logged and skipped, and evaluation continues with the remaining rules.
package risk

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"driftsync/internal/core"
)

// Rule is a single classification rule. Evaluate returns the level it assigns
// and whether it matched the operation at all.
type Rule struct {
	Name     string
	Evaluate func(op *core.ChangeOperation, caps core.Capabilities) (core.RiskLevel, bool, error)
}

// Classifier evaluates operations against its rule set.
type Classifier struct {
	rules []Rule
	log   *logrus.Entry
}

// NewClassifier returns a classifier with the default rule set.
func NewClassifier(log *logrus.Entry) *Classifier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Classifier{rules: defaultRules(), log: log}
}

// AddRule appends a custom rule evaluated after the defaults.
func (c *Classifier) AddRule(r Rule) {
	c.rules = append(c.rules, r)
}

// Classify returns the risk level of one operation: the maximum level over all
// matching rules. Operations no rule recognizes default to moderate rather than
// blocking the plan outright.
func (c *Classifier) Classify(op *core.ChangeOperation, caps core.Capabilities) core.RiskLevel {
	level := core.RiskSafe
	matched := false
	for i := range c.rules {
		rule := &c.rules[i]
		ruleLevel, ok, err := c.evaluate(rule, op, caps)
		if err != nil {
			c.log.WithFields(logrus.Fields{
				"rule":      rule.Name,
				"operation": op.String(),
			}).WithError(err).Warn("risk rule failed, skipping")
			continue
		}
		if !ok {
			continue
		}
		matched = true
		if ruleLevel > level {
			level = ruleLevel
		}
	}
	if !matched {
		return core.RiskModerate
	}
	return level
}

// evaluate shields the classifier from rules that panic.
func (c *Classifier) evaluate(rule *Rule, op *core.ChangeOperation, caps core.Capabilities) (level core.RiskLevel, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			level, ok = core.RiskSafe, false
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return rule.Evaluate(op, caps)
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name: "add-table",
			Evaluate: func(op *core.ChangeOperation, _ core.Capabilities) (core.RiskLevel, bool, error) {
				if op.Kind != core.OpAddTable {
					return 0, false, nil
				}
				return core.RiskSafe, true, nil
			},
		},
		{
			Name: "add-column",
			Evaluate: func(op *core.ChangeOperation, _ core.Capabilities) (core.RiskLevel, bool, error) {
				if op.Kind != core.OpAddColumn {
					return 0, false, nil
				}
				if op.Column == nil {
					return 0, false, fmt.Errorf("add-column operation on %s carries no column definition", op.Table)
				}
				// A required column without a default fails on populated tables.
				if !op.Column.Nullable && op.Column.DefaultValue == nil {
					return core.RiskModerate, true, nil
				}
				return core.RiskSafe, true, nil
			},
		},
		{
			Name: "add-index",
			Evaluate: func(op *core.ChangeOperation, _ core.Capabilities) (core.RiskLevel, bool, error) {
				if op.Kind != core.OpAddIndex {
					return 0, false, nil
				}
				return core.RiskSafe, true, nil
			},
		},
		{
			Name: "drop-index",
			Evaluate: func(op *core.ChangeOperation, _ core.Capabilities) (core.RiskLevel, bool, error) {
				if op.Kind != core.OpDropIndex {
					return 0, false, nil
				}
				// Dropping a unique index silently starts admitting duplicates.
				if op.Index != nil && op.Index.Unique {
					return core.RiskModerate, true, nil
				}
				return core.RiskSafe, true, nil
			},
		},
		{
			Name: "alter-nullable",
			Evaluate: func(op *core.ChangeOperation, _ core.Capabilities) (core.RiskLevel, bool, error) {
				if op.Kind != core.OpAlterNullable {
					return 0, false, nil
				}
				if op.OldColumn == nil || op.NewColumn == nil {
					return 0, false, fmt.Errorf("alter-nullable operation on %s is missing column definitions", op.Table)
				}
				if op.OldColumn.Nullable && !op.NewColumn.Nullable {
					return core.RiskModerate, true, nil
				}
				return core.RiskSafe, true, nil
			},
		},
		{
			Name: "alter-column-type",
			Evaluate: func(op *core.ChangeOperation, _ core.Capabilities) (core.RiskLevel, bool, error) {
				if op.Kind != core.OpAlterColumnType {
					return 0, false, nil
				}
				if op.OldColumn == nil || op.NewColumn == nil {
					return 0, false, fmt.Errorf("alter-column-type operation on %s is missing column definitions", op.Table)
				}
				if core.IsWidening(op.OldColumn.Type, op.NewColumn.Type) {
					return core.RiskModerate, true, nil
				}
				if core.IsNarrowing(op.OldColumn.Type, op.NewColumn.Type) {
					return core.RiskDestructive, true, nil
				}
				// Same family, neither clearly wider nor narrower.
				return core.RiskModerate, true, nil
			},
		},
		{
			Name: "drop-column",
			Evaluate: func(op *core.ChangeOperation, _ core.Capabilities) (core.RiskLevel, bool, error) {
				if op.Kind != core.OpDropColumn {
					return 0, false, nil
				}
				return core.RiskDestructive, true, nil
			},
		},
		{
			Name: "drop-table",
			Evaluate: func(op *core.ChangeOperation, _ core.Capabilities) (core.RiskLevel, bool, error) {
				if op.Kind != core.OpDropTable {
					return 0, false, nil
				}
				return core.RiskDestructive, true, nil
			},
		},
	}
}
