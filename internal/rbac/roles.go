package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleViewer   = "viewer"
	RoleSalesRep = "sales_rep"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
	RoleOwner    = "owner"
)

// hierarchy is strictly ordered. "At least role X" is an index comparison,
// never permission-set containment.
var hierarchy = []string{RoleViewer, RoleSalesRep, RoleManager, RoleAdmin, RoleOwner}

// Permission tokens. Keep these stable; they are compared everywhere.
const (
	PermLeadView   = "LEAD_VIEW"
	PermLeadCreate = "LEAD_CREATE"
	PermLeadEdit   = "LEAD_EDIT"
	PermLeadDelete = "LEAD_DELETE"

	PermCustomerView = "CUSTOMER_VIEW"
	PermCustomerEdit = "CUSTOMER_EDIT"

	PermOpportunityView = "OPPORTUNITY_VIEW"
	PermOpportunityEdit = "OPPORTUNITY_EDIT"

	PermTaskView   = "TASK_VIEW"
	PermTaskManage = "TASK_MANAGE"

	PermReportView = "REPORT_VIEW"

	PermUserManage = "USER_MANAGE"

	// Billing and tenant settings belong to the owner alone. Admin lacking
	// them is an intentional privilege boundary, not an oversight.
	PermTenantSettings = "TENANT_SETTINGS"
	PermTenantBilling  = "TENANT_BILLING"
)

// rolePermissions maps each role to its permission set.
// Sets are not cumulative by construction; IsAtLeastRole answers ordering
// questions, HasPermission answers capability questions.
var rolePermissions = map[string]map[string]struct{}{
	RoleViewer: permSet(
		PermLeadView,
		PermCustomerView,
		PermOpportunityView,
		PermTaskView,
	),
	RoleSalesRep: permSet(
		PermLeadView, PermLeadCreate, PermLeadEdit,
		PermCustomerView, PermCustomerEdit,
		PermOpportunityView, PermOpportunityEdit,
		PermTaskView, PermTaskManage,
	),
	RoleManager: permSet(
		PermLeadView, PermLeadCreate, PermLeadEdit, PermLeadDelete,
		PermCustomerView, PermCustomerEdit,
		PermOpportunityView, PermOpportunityEdit,
		PermTaskView, PermTaskManage,
		PermReportView,
	),
	RoleAdmin: permSet(
		PermLeadView, PermLeadCreate, PermLeadEdit, PermLeadDelete,
		PermCustomerView, PermCustomerEdit,
		PermOpportunityView, PermOpportunityEdit,
		PermTaskView, PermTaskManage,
		PermReportView,
		PermUserManage,
	),
	RoleOwner: permSet(
		PermLeadView, PermLeadCreate, PermLeadEdit, PermLeadDelete,
		PermCustomerView, PermCustomerEdit,
		PermOpportunityView, PermOpportunityEdit,
		PermTaskView, PermTaskManage,
		PermReportView,
		PermUserManage,
		PermTenantSettings,
		PermTenantBilling,
	),
}

func permSet(perms ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// IsValidRole reports whether the role exists in the hierarchy.
func IsValidRole(role string) bool {
	return roleIndex(role) >= 0
}

func roleIndex(role string) int {
	for i, r := range hierarchy {
		if r == role {
			return i
		}
	}
	return -1
}

// HasPermission reports exact membership in the role's permission set.
func HasPermission(role, permission string) bool {
	set, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = set[permission]
	return ok
}

// HasAnyPermission reports whether the role holds at least one of the permissions.
func HasAnyPermission(role string, permissions ...string) bool {
	for _, p := range permissions {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the role holds every one of the permissions.
// Vacuously true for an empty list.
func HasAllPermissions(role string, permissions ...string) bool {
	for _, p := range permissions {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// IsAtLeastRole compares hierarchy positions. Unknown roles never qualify.
func IsAtLeastRole(role, minimum string) bool {
	ri, mi := roleIndex(role), roleIndex(minimum)
	if ri < 0 || mi < 0 {
		return false
	}
	return ri >= mi
}
