package policy

import (
	"fmt"
	"strings"
)

// Rule describes permissions and restrictions for a single action id.
type Rule struct {
	ActionID        string   `yaml:"action_id"`
	Allowed         bool     `yaml:"allowed"`
	Conditions      []string `yaml:"conditions"`
	CooldownSeconds int      `yaml:"cooldown_seconds"`
	RequireApproval bool     `yaml:"require_approval"`
}

// Decision is the outcome of evaluating a rule against a proposal context.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluate checks a rule against proposal parameters. A rule with
// allowed=false denies before any condition is looked at. Conditions are
// ordered predicates over the parameter map; all must hold.
//
// Supported predicate forms:
//
//	key == value
//	key != value
//	key exists
func Evaluate(rule Rule, params map[string]string) Decision {
	if !rule.Allowed {
		return Decision{Allowed: false, Reason: "action disallowed by policy"}
	}
	for _, cond := range rule.Conditions {
		ok, err := evalCondition(cond, params)
		if err != nil {
			return Decision{Allowed: false, Reason: fmt.Sprintf("invalid condition %q: %v", cond, err)}
		}
		if !ok {
			return Decision{Allowed: false, Reason: fmt.Sprintf("condition not met: %s", cond)}
		}
	}
	return Decision{Allowed: true}
}

func evalCondition(cond string, params map[string]string) (bool, error) {
	fields := strings.Fields(cond)
	switch {
	case len(fields) == 2 && fields[1] == "exists":
		_, ok := params[fields[0]]
		return ok, nil
	case len(fields) == 3 && fields[1] == "==":
		return params[fields[0]] == fields[2], nil
	case len(fields) == 3 && fields[1] == "!=":
		val, ok := params[fields[0]]
		return ok && val != fields[2], nil
	}
	return false, fmt.Errorf("unrecognized predicate")
}
