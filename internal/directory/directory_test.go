package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idflow/internal/domain"
)

const snapshot = `
principals:
  - id: u1
    status: Active
    attributes:
      department: Engineering
      userType: contractor
      contractEndDate: "2026-09-22"
  - id: u2
    status: Offboarding
    attributes:
      department: Sales
  - id: u3
    status: Active
    attributes:
      department: Engineering
`

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_GetPrincipal(t *testing.T) {
	f, err := Load(writeSnapshot(t, snapshot))
	require.NoError(t, err)

	p, err := f.GetPrincipal(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, p.Status)
	dept, ok := p.Attr("department")
	require.True(t, ok)
	assert.Equal(t, "Engineering", dept)

	_, err = f.GetPrincipal(context.Background(), "nope")
	assert.True(t, domain.IsNotFound(err))
}

func TestListPrincipals_FilterAndOrder(t *testing.T) {
	f, err := Load(writeSnapshot(t, snapshot))
	require.NoError(t, err)
	ctx := context.Background()

	all, err := f.ListPrincipals(ctx, domain.PrincipalFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"u1", "u2", "u3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	active, err := f.ListPrincipals(ctx, domain.PrincipalFilter{Status: domain.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	contractors, err := f.ListPrincipals(ctx, domain.PrincipalFilter{UserType: "contractor"})
	require.NoError(t, err)
	require.Len(t, contractors, 1)
	assert.Equal(t, "u1", contractors[0].ID)
}

func TestReload_PicksUpChanges(t *testing.T) {
	path := writeSnapshot(t, snapshot)
	f, err := Load(path)
	require.NoError(t, err)

	updated := `
principals:
  - id: u1
    status: Offboarding
    attributes:
      department: Engineering
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, f.Reload())

	p, err := f.GetPrincipal(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffboarding, p.Status)

	_, err = f.GetPrincipal(context.Background(), "u2")
	assert.True(t, domain.IsNotFound(err))
}

func TestReload_BadFileKeepsPreviousView(t *testing.T) {
	path := writeSnapshot(t, snapshot)
	f, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(":::bad"), 0o644))
	assert.Error(t, f.Reload())

	// Old snapshot still served.
	p, err := f.GetPrincipal(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
}

func TestLoad_RejectsBadSnapshots(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"duplicate id", "principals:\n  - id: u1\n    status: Active\n  - id: u1\n    status: Active\n"},
		{"empty id", "principals:\n  - id: \"\"\n    status: Active\n"},
		{"unknown status", "principals:\n  - id: u1\n    status: Vacationing\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSnapshot(t, tt.content))
			assert.Error(t, err)
		})
	}
}
