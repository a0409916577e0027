// Package store provides SharedStore backends for the cross-organization
// configuration store used by the federation negotiator.
//
// The store is plain key/value with per-key last-writer-wins. No distributed
// lock is needed: each organization only ever writes its own keys, so
// concurrent writers converge. Backends: in-memory (tests), SQLite
// (single host), and S3 / GCS / Azure Blob buckets that both organizations
// can read.
package store

import (
	"fmt"

	"idflow/internal/domain"
)

// Backend names accepted by Open configuration.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendAzure  = "azure"
)

// FederationKey builds the store key for one organization's bootstrap
// record.
func FederationKey(org string, role domain.FederationRole) string {
	return fmt.Sprintf("federation/%s/%s", org, role)
}
