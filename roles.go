package auth

import "time"

// RoleData is the resolved, cached projection of an identity's tenant
// membership. Exactly one of Producer/Company/Collaborator is populated,
// matching the role tag; subscription fields are set only when the role
// resolved through a company-rooted path.
type RoleData struct {
	Role                Role       `json:"role"`
	NeedsPasswordChange bool       `json:"needs_password_change"`
	Producer            *Producer  `json:"producer_data,omitempty"`
	Company             *Company   `json:"company_data,omitempty"`
	Collaborator        *Collaborator `json:"collaborator_data,omitempty"`

	SubscriptionStatus string     `json:"subscription_status,omitempty"`
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at,omitempty"`

	// IsSubscriptionActive reflects the subscription check on the
	// resolved company row; IsCompanyActive applies the same check to a
	// collaborator's parent company.
	IsSubscriptionActive bool `json:"is_subscription_active,omitempty"`
	IsCompanyActive      bool `json:"is_company_active,omitempty"`
}

// IsCompanyRooted reports whether the role resolved through a company record,
// directly or via the collaborator's parent company.
func (r RoleData) IsCompanyRooted() bool {
	return r.Role == RoleCompany || r.Role == RoleCollaborator
}

// CompanyID returns the company the role is rooted in, when any.
func (r RoleData) CompanyID() (string, bool) {
	switch {
	case r.Company != nil:
		return r.Company.ID.String(), true
	case r.Collaborator != nil:
		return r.Collaborator.CompanyID.String(), true
	}
	return "", false
}

// IsValidRole checks if the role is one of the four closed roles
func IsValidRole(r Role) bool {
	switch r {
	case RoleProducer, RoleCompany, RoleCollaborator, RoleStudent:
		return true
	default:
		return false
	}
}

// RolePrecedence returns the fixed resolution rank of a role; lower outranks
// higher. The precedence is producer > company > collaborator > student and
// must never be re-derived by callers.
func RolePrecedence(r Role) int {
	switch r {
	case RoleProducer:
		return 0
	case RoleCompany:
		return 1
	case RoleCollaborator:
		return 2
	case RoleStudent:
		return 3
	default:
		return 4
	}
}

// Outranks reports whether role a wins over role b under the fixed precedence.
func Outranks(a, b Role) bool {
	return RolePrecedence(a) < RolePrecedence(b)
}

// AllRoles returns the closed role set in precedence order
func AllRoles() []Role {
	return []Role{RoleProducer, RoleCompany, RoleCollaborator, RoleStudent}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, IsValidRole(role)
}

// studentRoleData is the degraded default returned whenever no tenant record
// matches or an internal error prevents resolution.
func studentRoleData() RoleData {
	return RoleData{Role: RoleStudent}
}
