package domain

import "github.com/google/uuid"

// Principal is the authenticated caller of an operation.
// It is either an AdminPrincipal or an InfluencerPrincipal; moderators are
// influencers holding the moderateur role.
type Principal interface {
	SubjectID() uuid.UUID
	IsAdmin() bool
	Has(perm Permission) bool
}

type AdminPrincipal struct {
	ID uuid.UUID
}

func (p AdminPrincipal) SubjectID() uuid.UUID { return p.ID }
func (AdminPrincipal) IsAdmin() bool { return true }
func (AdminPrincipal) Has(Permission) bool { return true }

type InfluencerPrincipal struct {
	ID          uuid.UUID
	Role        Role
	Permissions Permissions
}

func (p InfluencerPrincipal) SubjectID() uuid.UUID { return p.ID }
func (InfluencerPrincipal) IsAdmin() bool { return false }
func (p InfluencerPrincipal) Has(perm Permission) bool { return p.Permissions.Has(perm) }

// CanAccessInfluencer reports whether p may read data owned by influencerID.
func CanAccessInfluencer(p Principal, influencerID uuid.UUID) bool {
	return p.IsAdmin() || p.SubjectID() == influencerID
}
