package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idflow/internal/domain"
)

const sampleConfig = `
groups:
  - id: G-eng
    name: Engineering
  - id: G-warn
    name: Contractors expiring soon
    mode: rule-managed
  - id: G-vip
    name: Hand-picked VIPs
    mode: manually-managed

rules:
  - id: r-eng
    predicate: department == "Engineering"
    groups: [G-eng]
  - id: r-warn
    predicate: userType == "contractor" and expirationStage == "ExpiringSoon"
    groups: [G-warn]
  - id: r-off
    predicate: department == "Sales"
    groups: [G-eng]
    enabled: false
`

func TestParse_Config(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Len(t, cfg.Groups, 3)
	assert.Equal(t, domain.GroupRuleManaged, cfg.Groups["G-eng"].Mode)
	assert.Equal(t, domain.GroupManuallyManaged, cfg.Groups["G-vip"].Mode)

	require.Len(t, cfg.Rules, 3)
	assert.True(t, cfg.Rules[0].Enabled)
	assert.False(t, cfg.Rules[2].Enabled)
	assert.Empty(t, cfg.Set.Errors())
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Rules, 3)
}

func TestParse_StructuralErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"duplicate group", "groups:\n  - id: G-a\n  - id: G-a\n"},
		{"duplicate rule", "groups:\n  - id: G-a\nrules:\n  - id: r1\n    predicate: a == null\n    groups: [G-a]\n  - id: r1\n    predicate: a == null\n    groups: [G-a]\n"},
		{"unknown group ref", "rules:\n  - id: r1\n    predicate: a == null\n    groups: [G-missing]\n"},
		{"manual group targeted", "groups:\n  - id: G-a\n    mode: manually-managed\nrules:\n  - id: r1\n    predicate: a == null\n    groups: [G-a]\n"},
		{"bad mode", "groups:\n  - id: G-a\n    mode: sometimes\n"},
		{"rule without groups", "rules:\n  - id: r1\n    predicate: a == null\n"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_MalformedPredicateIsDisabledNotFatal(t *testing.T) {
	cfg, err := Parse([]byte("groups:\n  - id: G-a\nrules:\n  - id: r1\n    predicate: 'department =='\n    groups: [G-a]\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Set.Errors(), 1)
	assert.Equal(t, "r1", cfg.Set.Errors()[0].RuleID)
}
