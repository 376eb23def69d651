package auth

// Package auth contains domain-level types for authentication, sessions,
// and the brokerage role model. It is pure and free of framework/adapter
// concerns.

import (
	"fmt"
	"sort"
)

// PrimaryRole is the single hierarchical role governing a user's default
// capability scope. Keep string form for easy persistence and claims.
type PrimaryRole string

const (
	RoleSuperAdmin PrimaryRole = "superadmin"
	RoleAdmin      PrimaryRole = "admin"
	RoleBroker     PrimaryRole = "broker"
	RoleClient     PrimaryRole = "client"
)

// PrimaryRoles lists every valid primary role. Order is hierarchy order,
// highest capability first.
func PrimaryRoles() []PrimaryRole {
	return []PrimaryRole{RoleSuperAdmin, RoleAdmin, RoleBroker, RoleClient}
}

// Valid reports whether r is one of the known primary roles.
func (r PrimaryRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleBroker, RoleClient:
		return true
	default:
		return false
	}
}

// SectionRole is a fine-grained tag for one business area granting menu
// visibility and base access to that area.
type SectionRole string

const (
	SectionDashboard  SectionRole = "dashboard"
	SectionQuotes     SectionRole = "quotes"
	SectionPolicies   SectionRole = "policies"
	SectionClaims     SectionRole = "claims"
	SectionClients    SectionRole = "clients"
	SectionReports    SectionRole = "reports"
	SectionManagement SectionRole = "management"
	SectionPortal     SectionRole = "portal"
)

// SectionRoles lists every valid section role.
func SectionRoles() []SectionRole {
	return []SectionRole{
		SectionDashboard,
		SectionQuotes,
		SectionPolicies,
		SectionClaims,
		SectionClients,
		SectionReports,
		SectionManagement,
		SectionPortal,
	}
}

// Permissions is the capability set for one (primary role, section) pair.
type Permissions struct {
	Read    bool
	Create  bool
	Update  bool
	Delete  bool
	Approve bool
	Assign  bool
}

var (
	permsAll  = Permissions{Read: true, Create: true, Update: true, Delete: true, Approve: true, Assign: true}
	permsNone = Permissions{}
	// permsWork covers day-to-day brokerage operations without the
	// destructive or administrative bits.
	permsWork = Permissions{Read: true, Create: true, Update: true}
	permsRead = Permissions{Read: true}
)

// permissionMatrix is the compiled-in (role × section) capability table.
// Every primary role must carry an entry for every section role; a missing
// entry is a defect surfaced by ValidateMatrix at startup, never a silent
// deny.
var permissionMatrix = map[PrimaryRole]map[SectionRole]Permissions{
	RoleSuperAdmin: {
		SectionDashboard:  permsAll,
		SectionQuotes:     permsAll,
		SectionPolicies:   permsAll,
		SectionClaims:     permsAll,
		SectionClients:    permsAll,
		SectionReports:    permsAll,
		SectionManagement: permsAll,
		SectionPortal:     permsAll,
	},
	RoleAdmin: {
		SectionDashboard:  permsAll,
		SectionQuotes:     {Read: true, Create: true, Update: true, Delete: true, Approve: true},
		SectionPolicies:   {Read: true, Create: true, Update: true, Delete: true, Approve: true},
		SectionClaims:     {Read: true, Create: true, Update: true, Delete: true, Approve: true},
		SectionClients:    {Read: true, Create: true, Update: true, Delete: true, Assign: true},
		SectionReports:    {Read: true, Create: true},
		SectionManagement: {Read: true, Create: true, Update: true, Assign: true},
		SectionPortal:     permsRead,
	},
	RoleBroker: {
		SectionDashboard:  permsRead,
		SectionQuotes:     permsWork,
		SectionPolicies:   permsWork,
		SectionClaims:     permsWork,
		SectionClients:    permsWork,
		SectionReports:    permsRead,
		SectionManagement: permsNone,
		SectionPortal:     permsNone,
	},
	RoleClient: {
		SectionDashboard:  permsNone,
		SectionQuotes:     permsNone,
		SectionPolicies:   permsNone,
		SectionClaims:     permsNone,
		SectionClients:    permsNone,
		SectionReports:    permsNone,
		SectionManagement: permsNone,
		SectionPortal:     {Read: true, Create: true},
	},
}

// PermissionsFor returns the capability set for the given role and section.
// Unknown pairs yield the zero Permissions; ValidateMatrix guards against
// the table itself being incomplete.
func PermissionsFor(role PrimaryRole, section SectionRole) Permissions {
	return permissionMatrix[role][section]
}

// AccessibleSections returns the sections a primary role can read, sorted
// for deterministic output. Same role always yields the same set.
func AccessibleSections(role PrimaryRole) []SectionRole {
	row := permissionMatrix[role]
	out := make([]SectionRole, 0, len(row))
	for section, perms := range row {
		if perms.Read {
			out = append(out, section)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CanAccess reports whether the role has read access to the section.
func CanAccess(role PrimaryRole, section SectionRole) bool {
	return permissionMatrix[role][section].Read
}

// ValidateMatrix verifies the permission matrix is total: every primary
// role has an entry for every section role. Bootstrap calls this once and
// refuses to start on failure.
func ValidateMatrix() error {
	for _, role := range PrimaryRoles() {
		row, ok := permissionMatrix[role]
		if !ok {
			return fmt.Errorf("permission matrix: missing row for role %q", role)
		}
		for _, section := range SectionRoles() {
			if _, ok := row[section]; !ok {
				return fmt.Errorf("permission matrix: missing entry for role %q section %q", role, section)
			}
		}
	}
	return nil
}
