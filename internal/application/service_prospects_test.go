package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/application"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
)

func intakeRequest(name, telephone string) application.ProspectRequest {
	return application.ProspectRequest{
		Name:      name,
		Telephone: telephone,
		Education: domain.Education{Level: "licence", Program: "ig"},
	}
}

func TestSubmitProspectThroughAffiliationCode(t *testing.T) {
	t.Parallel()
	f := newFixture()
	inf := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())

	req := intakeRequest("Yao", "90000001")
	req.Email = "Yao@Example.com"
	resp, err := f.service.SubmitProspect(context.Background(), inf.AffiliationCode, req, "10.0.0.1", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.Success || resp.Message == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	p := f.prospect(t, resp.ProspectID)
	if p.Status != domain.ProspectPending || p.InfluencerID != inf.ID || p.RemiseID != nil {
		t.Fatalf("unexpected prospect: %+v", p)
	}
	if p.Email == nil || *p.Email != "yao@example.com" {
		t.Fatalf("expected normalized email, got %v", p.Email)
	}
	if !p.EnrolledAt.Equal(baseTime) {
		t.Fatalf("expected enrollment at %v, got %v", baseTime, p.EnrolledAt)
	}
	types := f.eventTypes()
	if len(types) != 1 || types[0] != domain.EventProspectSubmitted {
		t.Fatalf("expected prospect.submitted event, got %v", types)
	}
}

func TestSubmitProspectUnknownOrInactiveCode(t *testing.T) {
	t.Parallel()
	f := newFixture()
	inactive := f.seedInfluencer(t, "Gone", "gone@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	f.store.mu.Lock()
	stored := f.store.influencers[inactive.ID]
	stored.IsActive = false
	f.store.influencers[inactive.ID] = stored
	f.store.mu.Unlock()
	ctx := context.Background()

	for _, code := range []string{"deadbeef", inactive.AffiliationCode, ""} {
		if _, err := f.service.SubmitProspect(ctx, code, intakeRequest("Yao", "90000001"), "10.0.0.1", ""); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("code %q: expected not found, got %v", code, err)
		}
		if _, err := f.service.AffiliationForm(ctx, code); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("form %q: expected not found, got %v", code, err)
		}
	}
	f.store.mu.Lock()
	count := len(f.store.prospects)
	f.store.mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no prospect created, got %d", count)
	}

	// internal lookups still see inactive owners
	got, err := f.service.ResolveAffiliationCode(ctx, inactive.AffiliationCode)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != inactive.ID || got.IsActive {
		t.Fatalf("unexpected resolved influencer: %+v", got)
	}
}

func TestSubmitProspectValidation(t *testing.T) {
	t.Parallel()
	f := newFixture()
	inf := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	ctx := context.Background()

	bac := intakeRequest("Yao", "90000001")
	bac.Education = domain.Education{Level: "bac", Program: "ig"}
	otherProgram := intakeRequest("Yao", "90000001")
	otherProgram.Education = domain.Education{Level: "licence", Program: "autre"}
	cases := map[string]application.ProspectRequest{
		"missing name":               intakeRequest("", "90000001"),
		"long telephone":             intakeRequest("Yao", "900000012"),
		"bac without serie":          bac,
		"other program without text": otherProgram,
	}
	for name, req := range cases {
		if _, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, req, "10.0.0.1", ""); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
}

func TestSubmitProspectDuplicateTelephone(t *testing.T) {
	t.Parallel()
	f := newFixture()
	inf := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	ctx := context.Background()

	if _, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, intakeRequest("Yao", "90000001"), "10.0.0.1", ""); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, intakeRequest("Yao bis", "90000001"), "10.0.0.1", ""); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestSubmitProspectIdempotencyReplay(t *testing.T) {
	t.Parallel()
	f := newFixture()
	inf := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	ctx := context.Background()
	req := intakeRequest("Yao", "90000001")

	first, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, req, "10.0.0.1", "form-42")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, req, "10.0.0.1", "form-42")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ProspectID != second.ProspectID {
		t.Fatalf("expected replay to return %s, got %s", first.ProspectID, second.ProspectID)
	}

	other := intakeRequest("Someone", "90000002")
	if _, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, other, "10.0.0.1", "form-42"); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
	f.store.mu.Lock()
	count := len(f.store.prospects)
	f.store.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected one prospect, got %d", count)
	}
}

func TestSubmitProspectFailureFreesIdempotencyKey(t *testing.T) {
	t.Parallel()
	f := newFixture()
	inf := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	ctx := context.Background()

	if _, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, intakeRequest("Yao", "90000001"), "10.0.0.1", "form-1"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	dup := intakeRequest("Yao bis", "90000001")
	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, dup, "10.0.0.1", "form-2"); !errors.Is(err, domain.ErrDuplicate) {
			t.Fatalf("attempt %d: expected duplicate, got %v", attempt, err)
		}
	}
	f.idempotency.mu.Lock()
	_, held := f.idempotency.records["form-2"]
	f.idempotency.mu.Unlock()
	if held {
		t.Fatalf("failed request must not keep its idempotency key")
	}

	fixed := intakeRequest("Yao bis", "90000009")
	if _, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, fixed, "10.0.0.1", "form-3"); err != nil {
		t.Fatalf("submit after fix: %v", err)
	}
}

func TestSubmitProspectRateLimitedPerIP(t *testing.T) {
	t.Parallel()
	cfg := defaultTestConfig()
	cfg.IntakeRateLimit = 2
	f := newFixtureWithConfig(cfg)
	inf := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	ctx := context.Background()

	for i, tel := range []string{"90000001", "90000002"} {
		if _, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, intakeRequest("Yao", tel), "10.0.0.9", ""); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}
	if _, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, intakeRequest("Yao", "90000003"), "10.0.0.9", ""); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if _, err := f.service.SubmitProspect(ctx, inf.AffiliationCode, intakeRequest("Yao", "90000004"), "10.0.0.10", ""); err != nil {
		t.Fatalf("other ip should not be throttled: %v", err)
	}
}

func TestValidateProspectRequiresPermission(t *testing.T) {
	t.Parallel()
	f := newFixture()
	owner := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	mod := f.seedInfluencer(t, "Moderator", "mod@example.com", domain.RoleModerator, domain.Permissions{CanValidateProspects: true})
	p := f.seedProspect(t, owner.ID, domain.ProspectPending, baseTime)
	ctx := context.Background()

	if _, err := f.service.ValidateProspect(ctx, owner.Principal(), p.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for owner, got %v", err)
	}
	if got := f.prospect(t, p.ID).Status; got != domain.ProspectPending {
		t.Fatalf("expected status unchanged, got %s", got)
	}

	view, err := f.service.ValidateProspect(ctx, mod.Principal(), p.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if view.Status != domain.ProspectConfirmed {
		t.Fatalf("expected confirmed, got %s", view.Status)
	}
}

func TestProspectTransitionsAreGuarded(t *testing.T) {
	t.Parallel()
	f := newFixture()
	admin := f.seedInfluencer(t, "Root", "root@example.com", domain.RoleAdmin, domain.Permissions{})
	owner := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	p := f.seedProspect(t, owner.ID, domain.ProspectPending, baseTime)
	ctx := context.Background()
	principal := admin.Principal()

	if _, err := f.service.ValidateProspect(ctx, principal, p.ID); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := f.service.ValidateProspect(ctx, principal, p.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on second validate, got %v", err)
	}
	if got := f.prospect(t, p.ID).Status; got != domain.ProspectConfirmed {
		t.Fatalf("expected status to stay confirmed, got %s", got)
	}

	if _, err := f.service.RejectProspect(ctx, principal, p.ID); err != nil {
		t.Fatalf("reject confirmed: %v", err)
	}
	if _, err := f.service.RejectProspect(ctx, principal, p.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on second reject, got %v", err)
	}
	if _, err := f.service.ValidateProspect(ctx, principal, p.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected rejected prospect to stay rejected, got %v", err)
	}

	types := f.eventTypes()
	want := []string{domain.EventProspectConfirmed, domain.EventProspectRejected}
	if len(types) != len(want) || types[0] != want[0] || types[1] != want[1] {
		t.Fatalf("expected events %v, got %v", want, types)
	}
}

func TestProspectVisibilityIsScoped(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ama := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	kofi := f.seedInfluencer(t, "Kofi", "kofi@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	admin := f.seedInfluencer(t, "Root", "root@example.com", domain.RoleAdmin, domain.Permissions{})
	mine := f.seedProspect(t, ama.ID, domain.ProspectPending, baseTime)
	theirs := f.seedProspect(t, kofi.ID, domain.ProspectConfirmed, baseTime)
	ctx := context.Background()

	if _, err := f.service.GetProspect(ctx, ama.Principal(), theirs.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected other influencer's prospect hidden, got %v", err)
	}
	if _, err := f.service.GetProspect(ctx, ama.Principal(), mine.ID); err != nil {
		t.Fatalf("get own prospect: %v", err)
	}

	// a non-privileged caller cannot widen the scope with a filter
	items, err := f.service.ListProspects(ctx, ama.Principal(), application.ProspectQuery{InfluencerID: &kofi.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != mine.ID {
		t.Fatalf("expected only own prospect, got %+v", items)
	}

	all, err := f.service.ListProspects(ctx, admin.Principal(), application.ProspectQuery{})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected admin to see 2 prospects, got %d", len(all))
	}
	if _, err := f.service.ListProspects(ctx, admin.Principal(), application.ProspectQuery{Status: "unknown"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid statut filter, got %v", err)
	}

	without, err := f.service.ListProspectsWithoutRemise(ctx, admin.Principal(), application.ProspectQuery{})
	if err != nil {
		t.Fatalf("without remise: %v", err)
	}
	if len(without) != 1 || without[0].ID != theirs.ID {
		t.Fatalf("expected only the confirmed prospect, got %+v", without)
	}
}

func TestProspectStatisticsConversionRate(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ama := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	admin := f.seedInfluencer(t, "Root", "root@example.com", domain.RoleAdmin, domain.Permissions{})
	ctx := context.Background()

	empty, err := f.service.ProspectStatistics(ctx, ama.Principal())
	if err != nil {
		t.Fatalf("empty stats: %v", err)
	}
	if empty.Total != 0 || empty.ConversionRate != 0 {
		t.Fatalf("expected zero stats, got %+v", empty)
	}

	for i := 0; i < 3; i++ {
		f.seedProspect(t, ama.ID, domain.ProspectConfirmed, baseTime)
	}
	f.seedProspect(t, ama.ID, domain.ProspectRejected, baseTime)
	f.seedProspect(t, ama.ID, domain.ProspectPending, baseTime)

	stats, err := f.service.ProspectStatistics(ctx, admin.Principal())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 5 || stats.Confirmed != 3 || stats.Rejected != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.ConversionRate != 75 {
		t.Fatalf("expected 75%% conversion, got %v", stats.ConversionRate)
	}

	internal, err := f.service.InfluencerStats(ctx, ama.ID)
	if err != nil {
		t.Fatalf("influencer stats: %v", err)
	}
	if internal.Counts.Total() != 5 || internal.ConversionRate != 75 {
		t.Fatalf("unexpected internal stats: %+v", internal)
	}
}

func TestCreateProspectOwnership(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ama := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	kofi := f.seedInfluencer(t, "Kofi", "kofi@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	admin := f.seedInfluencer(t, "Root", "root@example.com", domain.RoleAdmin, domain.Permissions{})
	ctx := context.Background()

	view, err := f.service.CreateProspect(ctx, ama.Principal(), application.CreateProspectRequest{
		ProspectRequest: intakeRequest("Yao", "90000001"),
		InfluencerID:    &kofi.ID,
	})
	if err != nil {
		t.Fatalf("create as influencer: %v", err)
	}
	if view.InfluencerID != ama.ID {
		t.Fatalf("expected non-admin to create for self, got %s", view.InfluencerID)
	}

	if _, err := f.service.CreateProspect(ctx, admin.Principal(), application.CreateProspectRequest{
		ProspectRequest: intakeRequest("Afi", "90000002"),
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected admin to name the influencer, got %v", err)
	}
	view, err = f.service.CreateProspect(ctx, admin.Principal(), application.CreateProspectRequest{
		ProspectRequest: intakeRequest("Afi", "90000002"),
		InfluencerID:    &kofi.ID,
	})
	if err != nil {
		t.Fatalf("create as admin: %v", err)
	}
	if view.InfluencerID != kofi.ID {
		t.Fatalf("expected prospect for kofi, got %s", view.InfluencerID)
	}
}
