package policy

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no rule covers an action id. Unknown action
// ids are implicitly disallowed.
var ErrNotFound = errors.New("no policy for action")

// ConfigError reports a malformed policy source. Loading never partially
// applies: on error the previously loaded set stays in effect.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Set is an immutable collection of rules keyed by action id.
type Set struct {
	rules map[string]Rule
}

// Lookup returns the rule for an action id.
func (s *Set) Lookup(actionID string) (Rule, error) {
	if s == nil {
		return Rule{}, ErrNotFound
	}
	rule, ok := s.rules[actionID]
	if !ok {
		return Rule{}, ErrNotFound
	}
	return rule, nil
}

// Rules returns all rules. The returned slice is a copy.
func (s *Set) Rules() []Rule {
	if s == nil {
		return nil
	}
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out
}

// Len returns the number of loaded rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Parse validates raw YAML into an immutable Set.
func Parse(raw []byte) (*Set, error) {
	var rules []Rule
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, configErrorf("parse policy yaml: %v", err)
	}

	set := &Set{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		if rule.ActionID == "" {
			return nil, configErrorf("policy rule missing action_id")
		}
		if _, dup := set.rules[rule.ActionID]; dup {
			return nil, configErrorf("duplicate policy for action %q", rule.ActionID)
		}
		if rule.CooldownSeconds < 0 {
			return nil, configErrorf("negative cooldown for action %q", rule.ActionID)
		}
		set.rules[rule.ActionID] = rule
	}
	return set, nil
}

// Store holds the current policy set and swaps it atomically on reload.
// Readers never observe a partially applied set.
type Store struct {
	path    string
	current atomic.Pointer[Set]
}

// NewStore loads the policy file at path. A missing file yields an empty set
// so the agent can boot before any policy is written.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	s.current.Store(&Set{rules: map[string]Rule{}})
	if err := s.Reload(); err != nil {
		if os.IsNotExist(errors.Unwrap(err)) {
			return s, nil
		}
		return nil, err
	}
	return s, nil
}

// Reload re-reads the policy file and swaps the active set. On any error the
// active set is left untouched.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	set, err := Parse(raw)
	if err != nil {
		return err
	}
	s.current.Store(set)
	return nil
}

// Current returns the active policy set.
func (s *Store) Current() *Set {
	return s.current.Load()
}

// Lookup returns the active rule for an action id.
func (s *Store) Lookup(actionID string) (Rule, error) {
	return s.Current().Lookup(actionID)
}
