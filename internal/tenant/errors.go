package tenant

import (
	"errors"
	"fmt"
)

// Code distinguishes tenant failures so calling UI can choose between
// "select a tenant", "contact admin", and "tenant disabled" messaging.
type Code string

const (
	CodeNoTenant       Code = "NO_TENANT"
	CodeInvalidTenant  Code = "INVALID_TENANT"
	CodeAccessDenied   Code = "ACCESS_DENIED"
	CodeTenantMismatch Code = "TENANT_MISMATCH"
	CodeTenantInactive Code = "TENANT_INACTIVE"
)

// Error is the coded failure returned by the strict guard functions.
// Callers recover by falling back to a "no tenant" UI state; it is never
// silently ignored.
type Error struct {
	Code Code
	msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("tenant: %s: %s", e.Code, e.msg) }

func newError(code Code, msg string) *Error { return &Error{Code: code, msg: msg} }

// UserMessage maps codes to display-friendly text; never raw codes to users.
func (e *Error) UserMessage() string {
	switch e.Code {
	case CodeNoTenant:
		return "No workspace selected. Choose a workspace to continue."
	case CodeInvalidTenant:
		return "The selected workspace reference is not valid."
	case CodeAccessDenied, CodeTenantMismatch:
		return "You do not have access to this workspace."
	case CodeTenantInactive:
		return "This workspace has been disabled. Contact your administrator."
	default:
		return "Workspace access error."
	}
}

// CodeOf extracts the tenant code from an error, or "" for foreign errors.
func CodeOf(err error) Code {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
