// Package validate implements the static validator: duplicate-ID,
// dangling-reference and dependency-cycle checks over a normalized script,
// plus a best-effort topological order for the operation graph.
package validate

import (
	"fmt"

	"github.com/autoscript/runtime/internal/autoscript/model"
)

// Result is the outcome of validating a script.
type Result struct {
	OK               bool
	Errors           []string
	Warnings         []string
	TopologicalOrder []string
}

type nodeColor int

const (
	white nodeColor = iota
	gray
	black
)

// Validate checks s for duplicate IDs, dangling references, unsupported
// trigger shapes and dependency cycles, and computes a topological order
// for the operations outside any cycle.
func Validate(s model.Script) Result {
	r := Result{}

	subIDs := map[string]bool{}
	for _, sub := range s.Subscriptions {
		if subIDs[sub.ID] {
			r.Errors = append(r.Errors, fmt.Sprintf("duplicate subscription id %q", sub.ID))
			continue
		}
		subIDs[sub.ID] = true
	}

	opIDs := map[string]bool{}
	opIndex := map[string]int{}
	for i, op := range s.Operations {
		if opIDs[op.ID] {
			r.Errors = append(r.Errors, fmt.Sprintf("duplicate operation id %q", op.ID))
			continue
		}
		opIDs[op.ID] = true
		opIndex[op.ID] = i
	}

	for _, op := range s.Operations {
		if !op.Enabled {
			r.Warnings = append(r.Warnings, fmt.Sprintf("operation %q is disabled", op.ID))
		}

		switch op.Trigger.Kind {
		case model.TriggerStartup, model.TriggerManual, model.TriggerCron:
			// always supported
		case model.TriggerSubscriptionEvent:
			if !subIDs[op.Trigger.SubscriptionID] {
				r.Errors = append(r.Errors, fmt.Sprintf("operation %q trigger references unknown subscription %q", op.ID, op.Trigger.SubscriptionID))
			}
		default:
			r.Errors = append(r.Errors, fmt.Sprintf("operation %q has unsupported trigger shape %q", op.ID, op.Trigger.Raw))
		}

		for _, dep := range op.DependsOn {
			if !opIDs[dep] {
				r.Errors = append(r.Errors, fmt.Sprintf("operation %q depends on unknown operation %q", op.ID, dep))
			}
		}

		for _, cond := range op.Conditions {
			switch cond.Kind {
			case model.ConditionOperationDone:
				if !opIDs[cond.OperationID] {
					r.Errors = append(r.Errors, fmt.Sprintf("operation %q condition references unknown operation %q", op.ID, cond.OperationID))
				}
			case model.ConditionSubscriptionExist, model.ConditionSubscriptionAppear:
				if !subIDs[cond.SubscriptionID] {
					r.Errors = append(r.Errors, fmt.Sprintf("operation %q condition references unknown subscription %q", op.ID, cond.SubscriptionID))
				}
			default:
				r.Errors = append(r.Errors, fmt.Sprintf("operation %q has unsupported condition kind %q", op.ID, cond.Kind))
			}
		}
	}

	for _, sub := range s.Subscriptions {
		for _, dep := range sub.DependsOn {
			if !subIDs[dep] {
				r.Errors = append(r.Errors, fmt.Sprintf("subscription %q depends on unknown subscription %q", sub.ID, dep))
			}
		}
	}

	order, cycles := topoSort(s.Operations, opIDs)
	for _, cyc := range cycles {
		r.Errors = append(r.Errors, fmt.Sprintf("dependency cycle detected: %s", formatPath(cyc)))
	}
	r.TopologicalOrder = order

	r.OK = len(r.Errors) == 0
	return r
}

func formatPath(path []string) string {
	out := ""
	for i, id := range path {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}

// topoSort performs a depth-first topological sort over the operation
// dependency graph. Operations involved in a cycle are excluded from the
// returned order; each cycle is reported as the offending path.
func topoSort(ops []model.Operation, knownIDs map[string]bool) ([]string, [][]string) {
	depsByID := map[string][]string{}
	for _, op := range ops {
		deps := make([]string, 0, len(op.DependsOn))
		for _, d := range op.DependsOn {
			if knownIDs[d] {
				deps = append(deps, d)
			}
		}
		depsByID[op.ID] = deps
	}

	color := map[string]nodeColor{}
	var order []string
	var cycles [][]string
	inCycle := map[string]bool{}

	var stack []string
	var visit func(id string)
	visit = func(id string) {
		if color[id] == black || inCycle[id] {
			return
		}
		if color[id] == gray {
			cycleStart := 0
			for i, s := range stack {
				if s == id {
					cycleStart = i
					break
				}
			}
			cyc := append([]string{}, stack[cycleStart:]...)
			cyc = append(cyc, id)
			cycles = append(cycles, cyc)
			for _, c := range cyc {
				inCycle[c] = true
			}
			return
		}
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range depsByID[id] {
			visit(dep)
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		if !inCycle[id] {
			order = append(order, id)
		}
	}

	for _, op := range ops {
		if color[op.ID] == white {
			visit(op.ID)
		}
	}

	return order, cycles
}
