// Package visibility implements the access rules for patient records and
// case groups as pure functions over plain data. Nothing here touches the
// database; services build the small view structs below from their entities
// and callers check the relevant predicate before reading or mutating.
package visibility

import "github.com/google/uuid"

// Visibility is the access tier on a patient or case group.
type Visibility string

const (
	Private   Visibility = "PRIVATE"
	Shared    Visibility = "SHARED"
	PublicOrg Visibility = "PUBLIC_ORG"
)

// Role is a profile's role within the practice.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleManager   Role = "MANAGER"
	RoleDoctor    Role = "DOCTOR"
	RoleAssistant Role = "ASSISTANT"
	RoleViewer    Role = "VIEWER"
)

// ValidRole reports whether r is one of the closed set of roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleDoctor, RoleAssistant, RoleViewer:
		return true
	}
	return false
}

// ValidPatientVisibility reports whether v is allowed on a patient.
func ValidPatientVisibility(v Visibility) bool {
	return v == Private || v == Shared || v == PublicOrg
}

// ValidGroupVisibility reports whether v is allowed on a case group.
func ValidGroupVisibility(v Visibility) bool {
	return v == Private || v == Shared
}

// Actor is the requesting user as the predicates see it. The zero value is
// an unauthenticated caller and satisfies no predicate.
type Actor struct {
	ID            uuid.UUID
	Authenticated bool
	Admin         bool
}

// NewActor builds an Actor. Admin covers both the superuser flag and the
// staff-equivalent ADMIN profile role.
func NewActor(id uuid.UUID, superuser bool, role Role) Actor {
	return Actor{
		ID:            id,
		Authenticated: id != uuid.Nil,
		Admin:         superuser || role == RoleAdmin,
	}
}

// Group is the slice of a case group the predicates need.
type Group struct {
	ID         uuid.UUID
	CreatedBy  uuid.UUID
	Visibility Visibility
	SharedWith []uuid.UUID
}

// Patient is the slice of a patient record the predicates need. Group is
// non-nil when the patient belongs to a case group; in that case the
// patient's own Visibility and SharedWith are ignored entirely.
type Patient struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	Group      *Group
	Visibility Visibility
	SharedWith []uuid.UUID
}

// CanViewGroup reports whether the actor may see the group and its patients.
func CanViewGroup(a Actor, g *Group) bool {
	if !a.Authenticated || g == nil {
		return false
	}
	if a.Admin || g.CreatedBy == a.ID {
		return true
	}
	return g.Visibility == Shared && contains(g.SharedWith, a.ID)
}

// CanManageGroup governs rename, re-share and delete of a group.
func CanManageGroup(a Actor, g *Group) bool {
	if !a.Authenticated || g == nil {
		return false
	}
	return a.Admin || g.CreatedBy == a.ID
}

// CanCreateInGroup governs adding a new patient under the group.
func CanCreateInGroup(a Actor, g *Group) bool {
	return CanViewGroup(a, g)
}

// CanViewPatient reports whether the actor may see the patient record.
// Grouped patients delegate entirely to the group's rules.
func CanViewPatient(a Actor, p *Patient) bool {
	if !a.Authenticated || p == nil {
		return false
	}
	if a.Admin {
		return true
	}
	if p.Group != nil {
		return CanViewGroup(a, p.Group)
	}
	if p.OwnerID == a.ID {
		return true
	}
	switch p.Visibility {
	case PublicOrg:
		return true
	case Shared:
		return contains(p.SharedWith, a.ID)
	}
	return false
}

// CanEditPatient governs mutation and re-sharing. View and edit are
// deliberately decoupled: shared and group viewers may comment but never
// mutate.
func CanEditPatient(a Actor, p *Patient) bool {
	if !a.Authenticated || p == nil {
		return false
	}
	return a.Admin || p.OwnerID == a.ID
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
