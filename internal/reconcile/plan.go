// Package reconcile converges actual group membership toward the state
// desired by the rule evaluator: read, diff, apply, repeatedly and
// idempotently.
package reconcile

import (
	"sort"

	"idflow/internal/domain"
	"idflow/internal/rules"
)

// Operation is the type of a planned membership change.
type Operation string

const (
	OpAdd    Operation = "add"
	OpRemove Operation = "remove"
)

// Action is a single planned membership operation. Each action maps to
// exactly one provisioner call, so a cancelled tick never leaves a
// half-applied multi-step transaction behind.
type Action struct {
	Operation   Operation
	PrincipalID string
	GroupID     string
	SourceTag   string
}

// Plan is the ordered set of actions for one principal. Removes sort before
// adds so that re-tagging an edge (remove old rule tag, add new) works with
// provisioners keyed on the (principal, group) pair.
type Plan struct {
	Actions []Action
}

// HasChanges reports whether the plan contains any operations.
func (p *Plan) HasChanges() bool { return len(p.Actions) > 0 }

// Summary holds counts of planned operations.
type Summary struct {
	Adds    int `json:"adds"`
	Removes int `json:"removes"`
}

// Summarize counts the plan's operations.
func (p *Plan) Summarize() Summary {
	var s Summary
	for _, a := range p.Actions {
		switch a.Operation {
		case OpAdd:
			s.Adds++
		case OpRemove:
			s.Removes++
		}
	}
	return s
}

// Diff computes the minimal membership operations for one principal:
// desired minus actual to add, actual minus desired to remove.
//
// Only rule-managed groups are considered on either side; manual edges and
// edges in manually-managed groups are never touched. A membership that is
// already present manually is treated as satisfied rather than duplicated.
// A rule-sourced edge whose owning rule changed is re-tagged (remove + add).
func Diff(principalID string, desired []rules.Assignment, actual []domain.MembershipEdge, groups map[string]domain.Group) *Plan {
	ruleManaged := func(groupID string) bool {
		g, ok := groups[groupID]
		return ok && g.Mode == domain.GroupRuleManaged
	}

	want := make(map[string]string, len(desired)) // group → owning rule
	for _, a := range desired {
		if ruleManaged(a.GroupID) {
			want[a.GroupID] = a.RuleID
		}
	}

	manual := make(map[string]bool)
	have := make(map[string]string) // group → current rule tag
	for _, e := range actual {
		if !ruleManaged(e.GroupID) {
			continue
		}
		if e.RuleSourced() {
			have[e.GroupID] = e.SourceTag
		} else {
			manual[e.GroupID] = true
		}
	}

	plan := &Plan{}
	for group, tag := range have {
		ruleID, stillWanted := want[group]
		if stillWanted && tag == domain.RuleSourceTag(ruleID) {
			continue
		}
		// Either no longer desired, or owned by a different rule now.
		plan.Actions = append(plan.Actions, Action{
			Operation:   OpRemove,
			PrincipalID: principalID,
			GroupID:     group,
			SourceTag:   tag,
		})
	}
	for group, ruleID := range want {
		if manual[group] {
			continue
		}
		if tag, ok := have[group]; ok && tag == domain.RuleSourceTag(ruleID) {
			continue
		}
		plan.Actions = append(plan.Actions, Action{
			Operation:   OpAdd,
			PrincipalID: principalID,
			GroupID:     group,
			SourceTag:   domain.RuleSourceTag(ruleID),
		})
	}

	sort.SliceStable(plan.Actions, func(i, j int) bool {
		ai, aj := plan.Actions[i], plan.Actions[j]
		if ai.Operation != aj.Operation {
			return ai.Operation == OpRemove
		}
		return ai.GroupID < aj.GroupID
	})
	return plan
}
