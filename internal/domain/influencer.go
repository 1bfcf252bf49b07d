package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInfluencer Role = "influenceur"
	RoleModerator  Role = "moderateur"
)

// ParseRole accepts the wire value of a role. Empty input resolves to RoleInfluencer.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return RoleInfluencer, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleInfluencer:
		return RoleInfluencer, true
	case RoleModerator:
		return RoleModerator, true
	default:
		return "", false
	}
}

type Permission string

const (
	PermCreateInfluencers Permission = "peut_creer_influenceurs"
	PermValidateProspects Permission = "peut_valider_prospects"
	PermPayRemises        Permission = "peut_payer_remises"
	PermViewStatistics    Permission = "peut_voir_statistiques"
)

// Permissions are the explicit grants held by a non-admin account.
type Permissions struct {
	CanCreateInfluencers bool `json:"peut_creer_influenceurs"`
	CanValidateProspects bool `json:"peut_valider_prospects"`
	CanPayRemises        bool `json:"peut_payer_remises"`
	CanViewStatistics    bool `json:"peut_voir_statistiques"`
}

// DefaultPermissions is what a freshly registered influencer receives.
func DefaultPermissions() Permissions {
	return Permissions{CanViewStatistics: true}
}

func (p Permissions) Has(perm Permission) bool {
	switch perm {
	case PermCreateInfluencers:
		return p.CanCreateInfluencers
	case PermValidateProspects:
		return p.CanValidateProspects
	case PermPayRemises:
		return p.CanPayRemises
	case PermViewStatistics:
		return p.CanViewStatistics
	default:
		return false
	}
}

// Influencer is the referral-program participant aggregate.
// It also carries the login lockout state so the policy lives next to the account.
type Influencer struct {
	ID                  uuid.UUID
	Name                string
	Email               string
	Telephone           string
	AffiliationCode     string
	PasswordHash        string
	Role                Role
	Permissions         Permissions
	IsActive            bool
	FailedLoginAttempts int
	LastFailedLoginAt   *time.Time
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	PasswordChangedAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewAffiliationCode returns the first 8 hex characters of a random uuid.
func NewAffiliationCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// AffiliationLink builds the public intake URL for the influencer.
func (i Influencer) AffiliationLink(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/affiliation/" + i.AffiliationCode + "/"
}

func (i Influencer) HasPermission(perm Permission) bool {
	if i.Role == RoleAdmin {
		return true
	}
	return i.Permissions.Has(perm)
}

func (i Influencer) IsLocked(now time.Time) bool {
	return i.LockedUntil != nil && now.Before(*i.LockedUntil)
}

// CanLogin reports whether the account may attempt password verification at now.
func (i Influencer) CanLogin(now time.Time) error {
	if !i.IsActive {
		return ErrAccountInactive
	}
	if i.IsLocked(now) {
		return ErrAccountLocked
	}
	return nil
}

// RecordFailedLogin increments the attempt counter and locks the account once
// threshold is reached. It reports whether the account is now locked.
func (i *Influencer) RecordFailedLogin(now time.Time, threshold int, lockout time.Duration) bool {
	i.FailedLoginAttempts++
	at := now
	i.LastFailedLoginAt = &at
	if threshold > 0 && i.FailedLoginAttempts >= threshold {
		until := now.Add(lockout)
		i.LockedUntil = &until
		return true
	}
	return false
}

// RecordSuccessfulLogin clears lockout state and stamps the login time.
func (i *Influencer) RecordSuccessfulLogin(now time.Time) {
	i.FailedLoginAttempts = 0
	i.LockedUntil = nil
	at := now
	i.LastLoginAt = &at
}

// Principal converts the account into the caller identity used for authorization.
func (i Influencer) Principal() Principal {
	if i.Role == RoleAdmin {
		return AdminPrincipal{ID: i.ID}
	}
	return InfluencerPrincipal{ID: i.ID, Role: i.Role, Permissions: i.Permissions}
}
