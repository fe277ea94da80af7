package tenant

import (
	"github.com/google/uuid"
)

// Membership ties a user to a tenant with a role.
// A membership with IsActive=false must never authorize access.
type Membership struct {
	TenantID string
	Role     string
	IsActive bool
}

// IsValidTenantID accepts canonical RFC 4122 UUIDs, versions 1 through 5.
func IsValidTenantID(v string) bool {
	// uuid.Parse also accepts urn: and braced forms; tenant ids are stored
	// canonical-only, so reject anything that is not 36 chars up front.
	if len(v) != 36 {
		return false
	}
	u, err := uuid.Parse(v)
	if err != nil {
		return false
	}
	if u.Variant() != uuid.RFC4122 {
		return false
	}
	ver := u.Version()
	return ver >= 1 && ver <= 5
}

// AssertTenantID is the strict variant of IsValidTenantID.
func AssertTenantID(v string) error {
	if !IsValidTenantID(v) {
		return newError(CodeInvalidTenant, "tenant id is not a valid UUID")
	}
	return nil
}

// Validation is the non-error result of ValidateTenantContext.
type Validation struct {
	IsValid  bool
	Code     Code
	TenantID string
}

// ValidateTenantContext runs the ordered tenant checks, short-circuiting on
// the first failure:
//  1. a tenant is selected at all
//  2. its id is a syntactically valid UUID
//  3. the session's tenant id equals the selected tenant id
//  4. the membership is active
func ValidateTenantContext(selected *Membership, sessionTenantID string) Validation {
	if selected == nil || selected.TenantID == "" {
		return Validation{Code: CodeNoTenant}
	}
	if !IsValidTenantID(selected.TenantID) {
		return Validation{Code: CodeInvalidTenant}
	}
	if sessionTenantID != selected.TenantID {
		return Validation{Code: CodeAccessDenied}
	}
	if !selected.IsActive {
		return Validation{Code: CodeTenantInactive}
	}
	return Validation{IsValid: true, TenantID: selected.TenantID}
}

// AssertTenantContext is the strict variant of ValidateTenantContext.
func AssertTenantContext(selected *Membership, sessionTenantID string) error {
	v := ValidateTenantContext(selected, sessionTenantID)
	if v.IsValid {
		return nil
	}
	switch v.Code {
	case CodeNoTenant:
		return newError(CodeNoTenant, "no tenant selected")
	case CodeInvalidTenant:
		return newError(CodeInvalidTenant, "tenant id is not a valid UUID")
	case CodeTenantInactive:
		return newError(CodeTenantInactive, "tenant is inactive")
	default:
		return newError(CodeAccessDenied, "session does not belong to the selected tenant")
	}
}

// VerifyTenantContext reports whether a candidate tenant id matches the
// session's tenant. Used for cross-tenant mismatch detection on resource ids.
func VerifyTenantContext(candidateID, sessionTenantID string) bool {
	if !IsValidTenantID(candidateID) || sessionTenantID == "" {
		return false
	}
	return candidateID == sessionTenantID
}

// AssertVerifyTenantContext is the strict variant of VerifyTenantContext.
func AssertVerifyTenantContext(candidateID, sessionTenantID string) error {
	if err := AssertTenantID(candidateID); err != nil {
		return err
	}
	if sessionTenantID == "" {
		return newError(CodeNoTenant, "no tenant in session")
	}
	if candidateID != sessionTenantID {
		return newError(CodeTenantMismatch, "resource belongs to a different tenant")
	}
	return nil
}
