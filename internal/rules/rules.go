package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Action is a gate action produced by rule evaluation.
type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)

// Rule maps a set of required detection labels to a gate action.
// A rule matches when every one of its trigger labels is present in the
// detection set; extra detected labels are ignored.
type Rule struct {
	Name          string   `yaml:"name"`
	TriggerLabels []string `yaml:"trigger_labels"`
	Action        Action   `yaml:"action"`
}

// ruleFile is the on-disk shape of the rules configuration.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Engine evaluates detection sets against an immutable ruleset.
type Engine struct {
	rules    []Rule
	triggers []map[string]struct{} // precomputed label sets, same index as rules
}

// New builds an engine from an in-memory ruleset. Rules are copied; the
// caller's slice is not retained.
func New(ruleset []Rule) *Engine {
	e := &Engine{
		rules:    make([]Rule, len(ruleset)),
		triggers: make([]map[string]struct{}, len(ruleset)),
	}
	copy(e.rules, ruleset)
	for i, r := range e.rules {
		set := make(map[string]struct{}, len(r.TriggerLabels))
		for _, label := range r.TriggerLabels {
			set[strings.TrimSpace(label)] = struct{}{}
		}
		e.triggers[i] = set
	}
	return e
}

// Load reads and validates the YAML rules file and returns a ready engine.
// Degenerate rules (no trigger labels) and unknown actions are configuration
// errors rejected here, before the process starts driving the gate.
func Load(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no rules", path)
	}

	for i, r := range file.Rules {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Name, err)
		}
	}

	return New(file.Rules), nil
}

// validate rejects rules that must never reach evaluation.
func (r Rule) validate() error {
	if len(r.TriggerLabels) == 0 {
		return fmt.Errorf("no trigger labels configured")
	}
	for _, label := range r.TriggerLabels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("empty trigger label")
		}
	}
	if r.Action != ActionOpen && r.Action != ActionClose {
		return fmt.Errorf("unknown action %q (must be %s or %s)", r.Action, ActionOpen, ActionClose)
	}
	return nil
}

// Evaluate resolves the detected labels to a gate action. It returns false
// when no rule matches: silence never forces an actuation. When matching
// rules disagree, CLOSE wins over OPEN, regardless of rule order.
func (e *Engine) Evaluate(labels []string) (Action, bool) {
	if len(labels) == 0 {
		return "", false
	}

	detected := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		detected[label] = struct{}{}
	}

	matched := false
	action := ActionOpen

	for i := range e.rules {
		trigger := e.triggers[i]
		// New accepts arbitrary input; an empty trigger set matches nothing.
		if len(trigger) == 0 {
			continue
		}
		if !subset(trigger, detected) {
			continue
		}
		if e.rules[i].Action == ActionClose {
			return ActionClose, true
		}
		matched = true
	}

	if !matched {
		return "", false
	}
	return action, true
}

// Rules returns a copy of the configured ruleset, for status reporting.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// subset reports whether every key of want is present in have.
func subset(want, have map[string]struct{}) bool {
	for label := range want {
		if _, ok := have[label]; !ok {
			return false
		}
	}
	return true
}
