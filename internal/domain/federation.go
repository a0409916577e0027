package domain

import "time"

// FederationRole identifies which side of a SAML relationship this
// organization plays.
type FederationRole string

const (
	RoleSP  FederationRole = "sp"
	RoleIdP FederationRole = "idp"
)

// Peer returns the opposite role.
func (r FederationRole) Peer() FederationRole {
	if r == RoleSP {
		return RoleIdP
	}
	return RoleSP
}

// FederationState is the per-organization negotiation state. Transitions
// only move forward within a process lifetime; the protocol is safe to
// re-run from Uninitialized at every restart.
type FederationState string

const (
	FedUninitialized        FederationState = "Uninitialized"
	FedPlaceholderPublished FederationState = "PlaceholderPublished"
	FedPeerObserved         FederationState = "PeerObserved"
	FedResolved             FederationState = "Resolved"
)

// EndpointMetadata carries the SAML endpoint descriptor fields exchanged
// between the two sides. An IdP fills Issuer/SSOURL/SigningCert from its
// own identity; an SP fills ACSURL/Audience. The remaining fields stay
// empty until the peer's record is observed.
type EndpointMetadata struct {
	Issuer      string `json:"issuer,omitempty"`
	SSOURL      string `json:"sso_url,omitempty"`
	ACSURL      string `json:"acs_url,omitempty"`
	Audience    string `json:"audience,omitempty"`
	SigningCert string `json:"signing_cert,omitempty"`
}

// HasIdPFields reports whether the metadata carries everything an SP needs
// to validate assertions from this peer.
func (m EndpointMetadata) HasIdPFields() bool {
	return m.Issuer != "" && m.SSOURL != "" && m.SigningCert != ""
}

// HasSPFields reports whether the metadata carries everything an IdP needs
// to issue assertions for this peer.
func (m EndpointMetadata) HasSPFields() bool {
	return m.ACSURL != "" && m.Audience != ""
}

// FederationEndpoint is the local side's view of the relationship.
type FederationEndpoint struct {
	Org      string
	Role     FederationRole
	Metadata EndpointMetadata // self fields plus peer fields once observed
	Peer     EndpointMetadata // the incorporated peer metadata
	State    FederationState
}

// BootstrapRecord is the persisted, shared representation of one side's
// FederationEndpoint, written to a store both organizations can read.
// Each side only ever writes its own key, so last-writer-wins is safe.
type BootstrapRecord struct {
	Org       string           `json:"org"`
	Role      FederationRole   `json:"role"`
	Metadata  EndpointMetadata `json:"metadata"`
	Resolved  bool             `json:"resolved"`
	UpdatedAt time.Time        `json:"updated_at"`
}
