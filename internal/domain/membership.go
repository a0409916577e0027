package domain

import "strings"

// SourceManual tags membership edges created outside the rule engine.
const SourceManual = "manual"

const ruleSourcePrefix = "rule:"

// RuleSourceTag builds the source tag for an edge created by a rule.
func RuleSourceTag(ruleID string) string {
	return ruleSourcePrefix + ruleID
}

// MembershipEdge is one (principal, group) pair with its provenance.
type MembershipEdge struct {
	PrincipalID string
	GroupID     string
	SourceTag   string // "rule:<rule-id>" or "manual"
}

// RuleSourced reports whether the edge was created by the rule engine.
func (e MembershipEdge) RuleSourced() bool {
	return strings.HasPrefix(e.SourceTag, ruleSourcePrefix)
}

// RuleID returns the originating rule ID for a rule-sourced edge,
// or "" for manual edges.
func (e MembershipEdge) RuleID() string {
	if !e.RuleSourced() {
		return ""
	}
	return strings.TrimPrefix(e.SourceTag, ruleSourcePrefix)
}
