package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
)

func TestLockoutPolicy(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	inf := domain.Influencer{IsActive: true}

	for i := 0; i < 4; i++ {
		if inf.RecordFailedLogin(now, 5, 30*time.Minute) {
			t.Fatalf("attempt %d should not lock", i+1)
		}
	}
	if err := inf.CanLogin(now); err != nil {
		t.Fatalf("expected login allowed before threshold, got %v", err)
	}
	if !inf.RecordFailedLogin(now, 5, 30*time.Minute) {
		t.Fatalf("fifth failure should lock")
	}
	if err := inf.CanLogin(now.Add(29 * time.Minute)); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	if err := inf.CanLogin(now.Add(30 * time.Minute)); err != nil {
		t.Fatalf("expected lock to expire, got %v", err)
	}

	inf.RecordSuccessfulLogin(now.Add(time.Hour))
	if inf.FailedLoginAttempts != 0 || inf.LockedUntil != nil || inf.LastLoginAt == nil {
		t.Fatalf("expected lockout state cleared, got %+v", inf)
	}

	inf.IsActive = false
	if err := inf.CanLogin(now); !errors.Is(err, domain.ErrAccountInactive) {
		t.Fatalf("expected inactive, got %v", err)
	}
}

func TestAffiliationCodeAndLink(t *testing.T) {
	t.Parallel()
	code := domain.NewAffiliationCode()
	if len(code) != 8 {
		t.Fatalf("expected 8 characters, got %q", code)
	}
	inf := domain.Influencer{AffiliationCode: "ab12cd34"}
	if got := inf.AffiliationLink("https://example.com/"); got != "https://example.com/affiliation/ab12cd34/" {
		t.Fatalf("unexpected link %q", got)
	}
}

func TestPrincipalPermissions(t *testing.T) {
	t.Parallel()
	admin := domain.Influencer{ID: uuid.New(), Role: domain.RoleAdmin}
	mod := domain.Influencer{ID: uuid.New(), Role: domain.RoleModerator, Permissions: domain.Permissions{CanValidateProspects: true}}
	plain := domain.Influencer{ID: uuid.New(), Role: domain.RoleInfluencer, Permissions: domain.DefaultPermissions()}

	if p := admin.Principal(); !p.IsAdmin() || !p.Has(domain.PermPayRemises) {
		t.Fatalf("admin principal should hold every permission")
	}
	mp := mod.Principal()
	if mp.IsAdmin() || !mp.Has(domain.PermValidateProspects) || mp.Has(domain.PermPayRemises) {
		t.Fatalf("unexpected moderator grants")
	}
	pp := plain.Principal()
	if !pp.Has(domain.PermViewStatistics) || pp.Has(domain.PermCreateInfluencers) {
		t.Fatalf("unexpected default grants")
	}
	if !domain.CanAccessInfluencer(pp, plain.ID) || domain.CanAccessInfluencer(pp, mod.ID) {
		t.Fatalf("influencer access must be limited to self")
	}
	if !domain.CanAccessInfluencer(admin.Principal(), plain.ID) {
		t.Fatalf("admin must access every influencer")
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()
	if role, ok := domain.ParseRole(""); !ok || role != domain.RoleInfluencer {
		t.Fatalf("expected empty role to default to influenceur, got %q %v", role, ok)
	}
	if role, ok := domain.ParseRole(" Moderateur "); !ok || role != domain.RoleModerator {
		t.Fatalf("expected moderateur, got %q %v", role, ok)
	}
	if _, ok := domain.ParseRole("superuser"); ok {
		t.Fatalf("expected unknown role to be refused")
	}
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	for _, pw := range []string{"short1", "1234567890", "Password", "azertyuiop"} {
		if err := domain.ValidatePassword(pw); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("password %q: expected invalid input, got %v", pw, err)
		}
	}
	if err := domain.ValidatePassword("Sunrise2024"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
}
