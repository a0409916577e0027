package domain

// LifecycleStatus is the derived Joiner/Mover/Leaver stage of a principal.
// It is computed by the external directory, never set by this engine.
type LifecycleStatus string

const (
	StatusOnboarding   LifecycleStatus = "Onboarding"
	StatusActive       LifecycleStatus = "Active"
	StatusTransferring LifecycleStatus = "Transferring"
	StatusOffboarding  LifecycleStatus = "Offboarding"
)

// Well-known attribute names. Custom attributes are allowed; these are the
// ones the engine itself inspects.
const (
	AttrDepartment      = "department"
	AttrUserType        = "userType"
	AttrManagerID       = "managerId"
	AttrContractEndDate = "contractEndDate"

	// AttrExpirationStage is synthetic: computed by the expiration
	// scheduler each tick and merged into the attribute view seen by
	// rule predicates. It never appears in directory data.
	AttrExpirationStage = "expirationStage"

	// AttrLifecycleStatus exposes Principal.Status to rule predicates.
	AttrLifecycleStatus = "lifecycleStatus"
)

// UserTypeContractor is the userType value that opts a principal into
// contract-expiration tracking.
const UserTypeContractor = "contractor"

// Principal is a user or service identity read from the external directory.
// Read-only here: the directory is the source of truth.
type Principal struct {
	ID         string
	Attributes map[string]string
	Status     LifecycleStatus
}

// Attr returns the named attribute and whether it is present and non-empty.
// An absent or empty attribute is treated as null by the rule evaluator.
func (p *Principal) Attr(name string) (string, bool) {
	v, ok := p.Attributes[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// IsContractor reports whether the principal carries the contractor
// designation used by the expiration scheduler.
func (p *Principal) IsContractor() bool {
	v, ok := p.Attr(AttrUserType)
	return ok && v == UserTypeContractor
}

// PrincipalFilter narrows ListPrincipals results. Zero value matches all.
type PrincipalFilter struct {
	Status   LifecycleStatus // match on lifecycle status when non-empty
	UserType string          // match on the userType attribute when non-empty
}

// Matches reports whether the principal satisfies the filter.
func (f PrincipalFilter) Matches(p *Principal) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.UserType != "" {
		v, _ := p.Attr(AttrUserType)
		if v != f.UserType {
			return false
		}
	}
	return true
}
