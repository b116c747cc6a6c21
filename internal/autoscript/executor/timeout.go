package executor

import (
	"strings"

	"github.com/autoscript/runtime/internal/autoscript/model"
)

// navigationActions are the actions the pacing wait and the 45s timeout
// default treat as "navigational". Note "back" is also listed among the
// 30s-default actions below — the explicit 30s list takes precedence over
// this set when resolving a default timeout, but "back" still counts as
// navigational for the navigation-cooldown pacing wait.
var navigationActions = map[string]bool{
	"goto":                     true,
	"back":                     true,
	"new_page":                 true,
	"switch_page":              true,
	"ensure_tab_pool":          true,
	"tab_pool_switch_next":     true,
	"tab_pool_switch_slot":     true,
}

// IsNavigationAction reports whether action is subject to the
// navigation-cooldown pacing wait.
func IsNavigationAction(action string) bool {
	return navigationActions[action]
}

var thirtySecondActions = map[string]bool{
	"click":           true,
	"type":            true,
	"back":            true,
	"press_key":       true,
	"get_current_url": true,
	"raise_error":     true,
}

func isThirtySecondAction(action string) bool {
	return thirtySecondActions[action] || strings.HasPrefix(action, "scroll")
}

func isVerificationAction(action string) bool {
	return strings.HasPrefix(action, "verify")
}

// resolveTimeoutMs computes the effective timeout for one attempt, checked
// in order: explicit disable, explicit op override, script-wide disable,
// pacing default, then a per-action default.
func resolveTimeoutMs(op model.Operation, defaults model.Defaults) int64 {
	if op.DisableTimeout {
		return 0
	}
	if op.TimeoutMs > 0 {
		return op.TimeoutMs
	}
	if defaults.DisableTimeout {
		return 0
	}
	if op.Pacing.TimeoutMs > 0 {
		return op.Pacing.TimeoutMs
	}

	if op.Action == "wait" {
		ms := int64(0)
		if v, ok := op.Params["ms"]; ok {
			ms = toInt64(v)
		}
		base := ms + 5000
		if base < 30000 {
			return 30000
		}
		return base
	}

	if isThirtySecondAction(op.Action) {
		return 30000
	}

	if op.Action == "evaluate" || navigationActions[op.Action] || isVerificationAction(op.Action) {
		return 45000
	}

	return 20000
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
