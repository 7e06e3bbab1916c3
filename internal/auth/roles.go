// Package auth resolves which capabilities a role grants. Resolution
// is a pure function of the role and an optional per-user override
// map; no registry state is involved.
package auth

import "taskbot/internal/model"

// Capability names one administrative action the bot gates.
type Capability string

const (
	CapManageTemplates Capability = "manage-templates"
	CapManageUsers     Capability = "manage-users"
	CapRunSweeps       Capability = "run-sweeps"
)

// CapabilitySet is the resolved grant for one user.
type CapabilitySet map[Capability]bool

// Has reports whether the capability is granted.
func (s CapabilitySet) Has(c Capability) bool {
	return s[c]
}

var roleGrants = map[model.Role][]Capability{
	model.RoleMember:  nil,
	model.RoleManager: {CapManageTemplates, CapRunSweeps},
	model.RoleAdmin:   {CapManageTemplates, CapManageUsers, CapRunSweeps},
}

// Effective computes the capability set for a role, then applies
// per-user overrides. An override granting false revokes a capability
// the role would otherwise carry.
func Effective(role model.Role, overrides map[Capability]bool) CapabilitySet {
	set := make(CapabilitySet)
	for _, c := range roleGrants[role] {
		set[c] = true
	}
	for c, granted := range overrides {
		if granted {
			set[c] = true
		} else {
			delete(set, c)
		}
	}
	return set
}
