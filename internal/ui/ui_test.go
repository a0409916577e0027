package ui

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idflow/internal/domain"
	"idflow/internal/expiration"
	"idflow/internal/federation"
	"idflow/internal/lifecycle"
	"idflow/internal/notify"
	"idflow/internal/reconcile"
	"idflow/internal/store"
	"idflow/internal/testutil"
)

var testLogger = slog.New(slog.DiscardHandler)

func newController(t *testing.T, neg *federation.Negotiator, principals ...domain.Principal) *lifecycle.Controller {
	t.Helper()

	state := testutil.NewMemStateRepo()
	outbox := testutil.NewMemOutbox()
	disp := notify.NewDispatcher(nil, outbox, testLogger, notify.Config{})
	disp.Start(context.Background())
	t.Cleanup(disp.Close)

	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`
groups:
  - id: G-eng
    name: Engineering
rules:
  - id: r-eng
    predicate: department == "Engineering"
    groups: [G-eng]
`), 0o644))

	c, err := lifecycle.NewController(
		testutil.NewFakeDirectory(principals...),
		state,
		expiration.NewScheduler(state, 30, 7, testLogger),
		reconcile.New(testutil.NewFakeProvisioner(), testutil.NewMemFailureLog(), testLogger, reconcile.Config{}),
		disp,
		neg,
		rulesPath,
		testLogger,
	)
	require.NoError(t, err)
	return c
}

func render(t *testing.T, h *Handler) (int, string) {
	t.Helper()
	r := chi.NewRouter()
	MountRoutes(r, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	return rec.Code, rec.Body.String()
}

func TestStatusPage_BeforeAnyTick(t *testing.T) {
	c := newController(t, nil)
	code, body := render(t, NewHandler("org-a", c, nil))

	assert.Equal(t, 200, code)
	assert.Contains(t, body, "org-a")
	assert.Contains(t, body, "No completed ticks yet.")
	assert.Contains(t, body, "Not configured.")
}

func TestStatusPage_AfterTick(t *testing.T) {
	c := newController(t, nil, domain.Principal{
		ID:         "u1",
		Status:     domain.StatusActive,
		Attributes: map[string]string{domain.AttrDepartment: "Engineering"},
	})
	_, err := c.Tick(context.Background())
	require.NoError(t, err)

	code, body := render(t, NewHandler("org-a", c, nil))
	assert.Equal(t, 200, code)
	assert.Contains(t, body, "Memberships added")
	assert.NotContains(t, body, "No completed ticks yet.")
}

func TestStatusPage_ShowsFederationState(t *testing.T) {
	neg, err := federation.NewNegotiator("org-a", "org-b", domain.RoleSP, domain.EndpointMetadata{
		ACSURL:   "https://org-a.example.com/saml/acs",
		Audience: "https://org-a.example.com/saml/metadata",
	}, store.NewMemory(), testLogger)
	require.NoError(t, err)

	c := newController(t, neg)
	code, body := render(t, NewHandler("org-a", c, neg))

	assert.Equal(t, 200, code)
	assert.Contains(t, body, "Uninitialized")
	assert.Contains(t, body, "disabled")
}
