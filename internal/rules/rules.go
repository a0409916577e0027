package rules

import (
	"fmt"
	"sort"

	"idflow/internal/domain"
)

// Compiled is one rule with its parsed predicate. Expr is nil when the rule
// is disabled or its predicate failed to compile (fail-closed).
type Compiled struct {
	Rule domain.Rule
	Expr Node
}

// LoadError records a rule whose predicate was rejected at load time.
// The rule is carried as disabled rather than aborting the load.
type LoadError struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

// Set is an immutable compiled rule set. Build one with Compile and pass it
// explicitly into every evaluation; there is no ambient global rule state.
type Set struct {
	rules  []Compiled
	errors []LoadError
}

// Compile parses every enabled rule's predicate. Malformed predicates never
// fail the whole set: the offending rule is disabled and reported in Errors.
func Compile(ruleList []domain.Rule) *Set {
	s := &Set{}
	for _, r := range ruleList {
		c := Compiled{Rule: r}
		if r.Enabled {
			expr, err := NewParser(r.Predicate).Parse()
			if err != nil {
				s.errors = append(s.errors, LoadError{
					RuleID:  r.ID,
					Message: fmt.Sprintf("predicate %q: %v", r.Predicate, err),
				})
			} else {
				c.Expr = expr
			}
		}
		s.rules = append(s.rules, c)
	}
	return s
}

// Errors returns the load-time predicate errors, if any.
func (s *Set) Errors() []LoadError { return s.errors }

// Rules returns the compiled rules in declaration order.
func (s *Set) Rules() []Compiled { return s.rules }

// Assignment is one desired membership with the rule that produced it.
// When several rules target the same group, the first matching rule in
// declaration order owns the edge's source tag.
type Assignment struct {
	GroupID string
	RuleID  string
}

// Evaluate returns the union of target groups over every enabled rule whose
// predicate matches the principal. Matching is additive: there is no
// first-match-wins between rules. The synthetic map (expiration stage,
// lifecycle status) overlays the principal's directory attributes.
//
// The result is sorted by group ID, so identical inputs always produce
// identical output.
func (s *Set) Evaluate(p *domain.Principal, synthetic map[string]string) []Assignment {
	lookup := func(name string) (string, bool) {
		if v, ok := synthetic[name]; ok && v != "" {
			return v, true
		}
		return p.Attr(name)
	}

	byGroup := make(map[string]string) // group ID → owning rule ID
	for _, c := range s.rules {
		if c.Expr == nil {
			continue
		}
		if !Eval(c.Expr, lookup) {
			continue
		}
		for _, g := range c.Rule.Groups {
			if _, seen := byGroup[g]; !seen {
				byGroup[g] = c.Rule.ID
			}
		}
	}

	out := make([]Assignment, 0, len(byGroup))
	for g, ruleID := range byGroup {
		out = append(out, Assignment{GroupID: g, RuleID: ruleID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}
