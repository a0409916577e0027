package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"idflow/internal/domain"
)

// GroupSpec is the YAML shape of one group declaration.
type GroupSpec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Mode string `yaml:"mode"` // "rule-managed" (default) or "manually-managed"
}

// RuleSpec is the YAML shape of one rule declaration.
type RuleSpec struct {
	ID        string   `yaml:"id"`
	Predicate string   `yaml:"predicate"`
	Groups    []string `yaml:"groups"`
	Enabled   *bool    `yaml:"enabled"` // nil defaults to true
}

// configFile is the top-level YAML document.
type configFile struct {
	Groups []GroupSpec `yaml:"groups"`
	Rules  []RuleSpec  `yaml:"rules"`
}

// Config is a validated, compiled rule configuration.
type Config struct {
	Groups map[string]domain.Group
	Rules  []domain.Rule
	Set    *Set
}

// Load reads and compiles a rule configuration file. Structural problems
// (duplicate IDs, unknown group references, bad modes) fail the load;
// malformed predicates do not — those rules are disabled and reported via
// Config.Set.Errors().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse compiles a rule configuration from raw YAML.
func Parse(data []byte) (*Config, error) {
	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}

	cfg := &Config{Groups: make(map[string]domain.Group, len(file.Groups))}

	for _, g := range file.Groups {
		if g.ID == "" {
			return nil, domain.ErrValidation("group with empty id")
		}
		if _, dup := cfg.Groups[g.ID]; dup {
			return nil, domain.ErrValidation("duplicate group id %q", g.ID)
		}
		mode := domain.GroupMode(g.Mode)
		if mode == "" {
			mode = domain.GroupRuleManaged
		}
		if mode != domain.GroupRuleManaged && mode != domain.GroupManuallyManaged {
			return nil, domain.ErrValidation("group %q: invalid mode %q", g.ID, g.Mode)
		}
		cfg.Groups[g.ID] = domain.Group{ID: g.ID, Name: g.Name, Mode: mode}
	}

	seen := make(map[string]bool, len(file.Rules))
	for _, r := range file.Rules {
		if r.ID == "" {
			return nil, domain.ErrValidation("rule with empty id")
		}
		if seen[r.ID] {
			return nil, domain.ErrValidation("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if len(r.Groups) == 0 {
			return nil, domain.ErrValidation("rule %q: no target groups", r.ID)
		}
		for _, g := range r.Groups {
			grp, ok := cfg.Groups[g]
			if !ok {
				return nil, domain.ErrValidation("rule %q: unknown group %q", r.ID, g)
			}
			if grp.Mode != domain.GroupRuleManaged {
				return nil, domain.ErrValidation("rule %q: group %q is not rule-managed", r.ID, g)
			}
		}
		enabled := r.Enabled == nil || *r.Enabled
		cfg.Rules = append(cfg.Rules, domain.Rule{
			ID:        r.ID,
			Predicate: r.Predicate,
			Groups:    r.Groups,
			Enabled:   enabled,
		})
	}

	cfg.Set = Compile(cfg.Rules)
	return cfg, nil
}
