// Package federation implements the two-sided SAML bootstrap protocol.
//
// Two independently deployed organizations (one SP, one IdP) exchange
// endpoint descriptors through a shared key/value store. There is no
// synchronous handshake: each side publishes its own BootstrapRecord and
// polls for the peer's on every reconciliation pass, so the protocol is
// safe with either side deployed first, second, or repeatedly.
package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"idflow/internal/domain"
	"idflow/internal/store"
)

// Negotiator drives one organization's side of the bootstrap state machine:
//
//	Uninitialized → PlaceholderPublished → PeerObserved → Resolved
//
// A single Negotiate pass advances as far as the observed peer data allows,
// so a side arriving second can reach Resolved in one pass.
type Negotiator struct {
	mu      sync.Mutex
	org     string
	peerOrg string
	role    domain.FederationRole
	store   domain.SharedStore
	logger  *slog.Logger

	endpoint domain.FederationEndpoint
}

// NewNegotiator validates the local side's self metadata and returns a
// negotiator in the Uninitialized state. An SP must know its own ACS URL
// and audience; an IdP must know its own issuer, SSO URL, and signing
// certificate.
func NewNegotiator(org, peerOrg string, role domain.FederationRole, self domain.EndpointMetadata, sharedStore domain.SharedStore, logger *slog.Logger) (*Negotiator, error) {
	switch role {
	case domain.RoleSP:
		if !self.HasSPFields() {
			return nil, domain.ErrValidation("SP metadata requires acs_url and audience")
		}
	case domain.RoleIdP:
		if !self.HasIdPFields() {
			return nil, domain.ErrValidation("IdP metadata requires issuer, sso_url, and signing_cert")
		}
	default:
		return nil, domain.ErrValidation("unknown federation role %q", role)
	}

	return &Negotiator{
		org:     org,
		peerOrg: peerOrg,
		role:    role,
		store:   sharedStore,
		logger:  logger.With("component", "federation", "role", string(role)),
		endpoint: domain.FederationEndpoint{
			Org:      org,
			Role:     role,
			Metadata: self,
			State:    domain.FedUninitialized,
		},
	}, nil
}

// Negotiate runs one bootstrap pass and returns the resulting state.
// Store failures leave the state where it was; the caller keeps operating
// in degraded mode and retries on the next pass. An absent or malformed
// peer record means "not yet resolved", never an error.
func (n *Negotiator) Negotiate(ctx context.Context) (domain.FederationState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.endpoint.State == domain.FedResolved {
		return domain.FedResolved, nil
	}

	if n.endpoint.State == domain.FedUninitialized {
		if err := n.publish(ctx, false); err != nil {
			return n.endpoint.State, fmt.Errorf("publish placeholder: %w", err)
		}
		n.endpoint.State = domain.FedPlaceholderPublished
		n.logger.Info("published placeholder bootstrap record", "org", n.org)
	}

	peer, ok, err := n.observePeer(ctx)
	if err != nil {
		return n.endpoint.State, fmt.Errorf("observe peer: %w", err)
	}
	if !ok {
		return n.endpoint.State, nil
	}

	n.endpoint.Peer = peer
	n.endpoint.Metadata = merge(n.endpoint.Metadata, peer)
	n.endpoint.State = domain.FedPeerObserved
	n.logger.Info("incorporated peer bootstrap record", "peer_org", n.peerOrg)

	if err := n.publish(ctx, true); err != nil {
		return n.endpoint.State, fmt.Errorf("republish resolved record: %w", err)
	}
	n.endpoint.State = domain.FedResolved
	n.logger.Info("federation resolved", "org", n.org, "peer_org", n.peerOrg)
	return domain.FedResolved, nil
}

// observePeer reads and validates the peer's BootstrapRecord. ok is false
// while the peer has not yet published a usable record.
func (n *Negotiator) observePeer(ctx context.Context) (domain.EndpointMetadata, bool, error) {
	key := store.FederationKey(n.peerOrg, n.role.Peer())
	raw, err := n.store.Get(ctx, key)
	if domain.IsNotFound(err) {
		return domain.EndpointMetadata{}, false, nil
	}
	if err != nil {
		return domain.EndpointMetadata{}, false, err
	}

	var rec domain.BootstrapRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		n.logger.Warn("malformed peer bootstrap record", "key", key, "error", err)
		return domain.EndpointMetadata{}, false, nil
	}

	usable := false
	switch n.role {
	case domain.RoleSP:
		usable = rec.Metadata.HasIdPFields()
	case domain.RoleIdP:
		usable = rec.Metadata.HasSPFields()
	}
	if !usable {
		n.logger.Debug("peer record present but incomplete", "key", key)
		return domain.EndpointMetadata{}, false, nil
	}
	return rec.Metadata, true, nil
}

func (n *Negotiator) publish(ctx context.Context, resolved bool) error {
	rec := domain.BootstrapRecord{
		Org:       n.org,
		Role:      n.role,
		Metadata:  n.endpoint.Metadata,
		Resolved:  resolved,
		UpdatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal bootstrap record: %w", err)
	}
	return n.store.Put(ctx, store.FederationKey(n.org, n.role), raw)
}

// State returns the current negotiation state.
func (n *Negotiator) State() domain.FederationState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.endpoint.State
}

// AuthEnabled reports whether assertion validation (SP) or issuance (IdP)
// for this peer is active. Until resolution the side runs degraded, with
// authentication via this peer disabled rather than failing.
func (n *Negotiator) AuthEnabled() bool {
	return n.State() == domain.FedResolved
}

// Endpoint returns a snapshot of the local side's view of the relationship.
func (n *Negotiator) Endpoint() domain.FederationEndpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.endpoint
}

// Teardown deletes this side's BootstrapRecord from the shared store and
// resets the state machine. The peer will fall back to degraded mode once
// it republishes and stops observing us.
func (n *Negotiator) Teardown(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.store.Delete(ctx, store.FederationKey(n.org, n.role)); err != nil {
		return fmt.Errorf("delete bootstrap record: %w", err)
	}
	n.endpoint.State = domain.FedUninitialized
	n.endpoint.Peer = domain.EndpointMetadata{}
	return nil
}

// merge fills the empty fields of self with the peer's values, producing
// the complete endpoint descriptor that gets republished after resolution.
func merge(self, peer domain.EndpointMetadata) domain.EndpointMetadata {
	out := self
	if out.Issuer == "" {
		out.Issuer = peer.Issuer
	}
	if out.SSOURL == "" {
		out.SSOURL = peer.SSOURL
	}
	if out.ACSURL == "" {
		out.ACSURL = peer.ACSURL
	}
	if out.Audience == "" {
		out.Audience = peer.Audience
	}
	if out.SigningCert == "" {
		out.SigningCert = peer.SigningCert
	}
	return out
}
