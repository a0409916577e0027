package federation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idflow/internal/domain"
	"idflow/internal/store"
)

var testLogger = slog.New(slog.DiscardHandler)

func spMetadata() domain.EndpointMetadata {
	return domain.EndpointMetadata{
		ACSURL:   "https://sp.org-a.example/saml/acs",
		Audience: "urn:org-a:sp",
	}
}

func idpMetadata() domain.EndpointMetadata {
	return domain.EndpointMetadata{
		Issuer:      "https://idp.org-b.example",
		SSOURL:      "https://idp.org-b.example/saml/sso",
		SigningCert: "MIIC...test",
	}
}

func newSP(t *testing.T, shared domain.SharedStore) *Negotiator {
	t.Helper()
	n, err := NewNegotiator("org-a", "org-b", domain.RoleSP, spMetadata(), shared, testLogger)
	require.NoError(t, err)
	return n
}

func newIdP(t *testing.T, shared domain.SharedStore) *Negotiator {
	t.Helper()
	n, err := NewNegotiator("org-b", "org-a", domain.RoleIdP, idpMetadata(), shared, testLogger)
	require.NoError(t, err)
	return n
}

func TestNegotiator_ConvergenceSPFirst(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemory()
	sp := newSP(t, shared)
	idp := newIdP(t, shared)

	// SP ticks alone: publishes its placeholder, then waits.
	for i := 0; i < 5; i++ {
		state, err := sp.Negotiate(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.FedPlaceholderPublished, state)
	}
	assert.False(t, sp.AuthEnabled())

	// IdP's first tick observes the SP placeholder and resolves immediately.
	state, err := idp.Negotiate(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.FedResolved, state)

	// SP's next tick observes the IdP's resolved record and resolves too.
	state, err = sp.Negotiate(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.FedResolved, state)
	assert.True(t, sp.AuthEnabled())

	ep := sp.Endpoint()
	assert.Equal(t, "https://idp.org-b.example", ep.Peer.Issuer)
	assert.Equal(t, "https://idp.org-b.example/saml/sso", ep.Metadata.SSOURL)
	assert.Equal(t, "https://sp.org-a.example/saml/acs", ep.Metadata.ACSURL)
}

func TestNegotiator_ConvergenceIdPFirst(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemory()
	sp := newSP(t, shared)
	idp := newIdP(t, shared)

	state, err := idp.Negotiate(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.FedPlaceholderPublished, state)

	state, err = sp.Negotiate(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.FedResolved, state)

	state, err = idp.Negotiate(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.FedResolved, state)
}

func TestNegotiator_ResolvedRecordIsRepublished(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemory()
	sp := newSP(t, shared)
	idp := newIdP(t, shared)

	_, err := sp.Negotiate(ctx)
	require.NoError(t, err)
	_, err = idp.Negotiate(ctx)
	require.NoError(t, err)

	raw, err := shared.Get(ctx, store.FederationKey("org-b", domain.RoleIdP))
	require.NoError(t, err)
	var rec domain.BootstrapRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.True(t, rec.Resolved)
	assert.Equal(t, "org-b", rec.Org)
	// The republished record carries the merged descriptor.
	assert.Equal(t, "https://sp.org-a.example/saml/acs", rec.Metadata.ACSURL)
	assert.Equal(t, "https://idp.org-b.example", rec.Metadata.Issuer)
}

func TestNegotiator_IncompletePeerRecordIsNotResolved(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemory()
	sp := newSP(t, shared)

	// A peer record missing the signing cert is unusable for an SP.
	partial := domain.BootstrapRecord{
		Org:  "org-b",
		Role: domain.RoleIdP,
		Metadata: domain.EndpointMetadata{
			Issuer: "https://idp.org-b.example",
			SSOURL: "https://idp.org-b.example/saml/sso",
		},
	}
	raw, _ := json.Marshal(partial)
	require.NoError(t, shared.Put(ctx, store.FederationKey("org-b", domain.RoleIdP), raw))

	state, err := sp.Negotiate(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.FedPlaceholderPublished, state)
}

func TestNegotiator_MalformedPeerRecordIsNotAnError(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemory()
	sp := newSP(t, shared)

	require.NoError(t, shared.Put(ctx, store.FederationKey("org-b", domain.RoleIdP), []byte("not json")))

	state, err := sp.Negotiate(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.FedPlaceholderPublished, state)
}

func TestNegotiator_StoreFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemory()
	flaky := &failingStore{SharedStore: shared}
	sp, err := NewNegotiator("org-a", "org-b", domain.RoleSP, spMetadata(), flaky, testLogger)
	require.NoError(t, err)

	flaky.failPuts = true
	state, err := sp.Negotiate(ctx)
	assert.Error(t, err)
	assert.Equal(t, domain.FedUninitialized, state)

	// Next pass retries from where it left off.
	flaky.failPuts = false
	state, err = sp.Negotiate(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.FedPlaceholderPublished, state)
}

func TestNegotiator_IdempotentOnceResolved(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemory()
	sp := newSP(t, shared)
	idp := newIdP(t, shared)

	_, err := sp.Negotiate(ctx)
	require.NoError(t, err)
	_, err = idp.Negotiate(ctx)
	require.NoError(t, err)
	_, err = sp.Negotiate(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		state, err := sp.Negotiate(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.FedResolved, state)
	}
}

func TestNegotiator_Teardown(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemory()
	sp := newSP(t, shared)

	_, err := sp.Negotiate(ctx)
	require.NoError(t, err)
	require.NoError(t, sp.Teardown(ctx))

	assert.Equal(t, domain.FedUninitialized, sp.State())
	_, err = shared.Get(ctx, store.FederationKey("org-a", domain.RoleSP))
	assert.True(t, domain.IsNotFound(err))
}

func TestNewNegotiator_ValidatesSelfMetadata(t *testing.T) {
	shared := store.NewMemory()

	_, err := NewNegotiator("org-a", "org-b", domain.RoleSP, domain.EndpointMetadata{}, shared, testLogger)
	assert.Error(t, err)

	_, err = NewNegotiator("org-b", "org-a", domain.RoleIdP, spMetadata(), shared, testLogger)
	assert.Error(t, err)

	_, err = NewNegotiator("org-a", "org-b", "proxy", spMetadata(), shared, testLogger)
	assert.Error(t, err)
}

// failingStore injects Put failures over a real store.
type failingStore struct {
	domain.SharedStore
	failPuts bool
}

func (f *failingStore) Put(ctx context.Context, key string, value []byte) error {
	if f.failPuts {
		return errors.New("store unavailable")
	}
	return f.SharedStore.Put(ctx, key, value)
}
