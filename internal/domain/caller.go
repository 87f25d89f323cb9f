package domain

// Capability names checked by the authorization queue.
const (
	PermApproveInstructions    = "approve_instructions"
	PermApproveAccountClosures = "approve_account_closures"
	PermCreateTrades           = "create_trades"
	PermViewAll                = "view_all"
)

// Caller is the identity making a request. It is passed explicitly into
// every queue call; capability checks are pure functions of this value.
type Caller struct {
	UserID      string
	Role        string
	Permissions []string
}

// Can reports whether the caller carries the named capability.
func (c Caller) Can(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// DefaultPermissions returns the capability set a role carries when no
// explicit permission list accompanies the identity.
func DefaultPermissions(role string) []string {
	switch role {
	case "admin":
		return []string{PermApproveInstructions, PermApproveAccountClosures, PermViewAll}
	case "checker":
		return []string{PermApproveInstructions, PermViewAll}
	case "maker":
		return []string{PermCreateTrades}
	default:
		return nil
	}
}
