package domain

// GroupMode controls who owns a group's membership.
type GroupMode string

const (
	// GroupRuleManaged means membership is fully owned by the rule
	// evaluator and reconciler. Manual edges in such a group survive,
	// but rule-sourced edges are added and removed freely.
	GroupRuleManaged GroupMode = "rule-managed"

	// GroupManuallyManaged groups are never touched by the reconciler.
	GroupManuallyManaged GroupMode = "manually-managed"
)

// Group is a membership target declared in the rule configuration.
type Group struct {
	ID   string
	Name string
	Mode GroupMode
}

// Rule maps a predicate over principal attributes to a set of target groups.
// Rules are static configuration, mutated only by operators.
type Rule struct {
	ID        string
	Predicate string
	Groups    []string // target group IDs, in declaration order
	Enabled   bool
}
