package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
)

func TestInfluencerDashboardMonthlyEvolution(t *testing.T) {
	t.Parallel()
	f := newFixture()
	inf := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())

	march := f.seedProspect(t, inf.ID, domain.ProspectConfirmed, time.Date(2024, time.March, 2, 9, 0, 0, 0, time.UTC))
	f.seedProspect(t, inf.ID, domain.ProspectPending, time.Date(2024, time.March, 3, 9, 0, 0, 0, time.UTC))
	f.seedProspect(t, inf.ID, domain.ProspectRejected, time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC))
	f.seedProspect(t, inf.ID, domain.ProspectConfirmed, time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC))
	f.seedProspect(t, inf.ID, domain.ProspectPending, time.Date(2023, time.September, 30, 23, 0, 0, 0, time.UTC))

	remise := domain.Remise{
		ID:           uuid.New(),
		Amount:       decimal.NewFromInt(20),
		Status:       domain.RemisePending,
		InfluencerID: inf.ID,
		CreatedAt:    time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC),
	}
	f.store.mu.Lock()
	f.store.remises[remise.ID] = remise
	linked := f.store.prospects[march.ID]
	linked.RemiseID = &remise.ID
	f.store.prospects[march.ID] = linked
	f.store.mu.Unlock()

	dash, err := f.service.InfluencerDashboard(context.Background(), inf.Principal(), inf.ID)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	if len(dash.Evolution) != 6 {
		t.Fatalf("expected 6 months, got %d", len(dash.Evolution))
	}
	want := []struct {
		month     string
		prospects int
		remises   string
	}{
		{"2023-10", 1, "0.00"},
		{"2023-11", 0, "0.00"},
		{"2023-12", 0, "0.00"},
		{"2024-01", 1, "0.00"},
		{"2024-02", 0, "0.00"},
		{"2024-03", 2, "20.00"},
	}
	for i, w := range want {
		got := dash.Evolution[i]
		if got.Month != w.month || got.Prospects != w.prospects || got.Remises != w.remises {
			t.Fatalf("month %d: expected %+v, got %+v", i, w, got)
		}
	}

	stats := dash.Statistics
	if stats.TotalProspects != 5 || stats.ConfirmedProspects != 2 || stats.RejectedProspects != 1 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
	if stats.ConversionRate != 66.67 {
		t.Fatalf("expected 66.67%% conversion, got %v", stats.ConversionRate)
	}
	if stats.PendingEarnings != "20.00" || stats.TotalEarnings != "0.00" {
		t.Fatalf("unexpected earnings: %+v", stats)
	}
	if dash.RemiseBreakdown[domain.RemisePending] != 1 {
		t.Fatalf("expected one pending remise, got %v", dash.RemiseBreakdown)
	}

	if len(dash.RecentProspects) != 5 {
		t.Fatalf("expected 5 recent prospects, got %d", len(dash.RecentProspects))
	}
	var withAmount int
	for _, rp := range dash.RecentProspects {
		if rp.Amount != nil {
			withAmount++
			if rp.ID != march.ID || *rp.Amount != "20.00" {
				t.Fatalf("unexpected linked amount on %+v", rp)
			}
		}
	}
	if withAmount != 1 {
		t.Fatalf("expected one prospect with a remise amount, got %d", withAmount)
	}
}

func TestInfluencerDashboardAccess(t *testing.T) {
	t.Parallel()
	f := newFixture()
	admin := f.seedInfluencer(t, "Root", "root@example.com", domain.RoleAdmin, domain.Permissions{})
	ama := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	muted := f.seedInfluencer(t, "Muted", "muted@example.com", domain.RoleInfluencer, domain.Permissions{})
	ctx := context.Background()

	if _, err := f.service.InfluencerDashboard(ctx, muted.Principal(), ama.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden on another dashboard, got %v", err)
	}
	if _, err := f.service.InfluencerDashboard(ctx, muted.Principal(), muted.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden without statistics permission, got %v", err)
	}
	if _, err := f.service.InfluencerDashboard(ctx, admin.Principal(), ama.ID); err != nil {
		t.Fatalf("admin dashboard: %v", err)
	}
	if _, err := f.service.InfluencerDashboard(ctx, admin.Principal(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown influencer, got %v", err)
	}
}

func TestGlobalDashboard(t *testing.T) {
	t.Parallel()
	f := newFixture()
	admin := f.seedInfluencer(t, "Root", "root@example.com", domain.RoleAdmin, domain.Permissions{})
	ama := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	kofi := f.seedInfluencer(t, "Kofi", "kofi@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	f.seedProspect(t, ama.ID, domain.ProspectConfirmed, baseTime)
	f.seedProspect(t, ama.ID, domain.ProspectConfirmed, baseTime.AddDate(0, 0, -2))
	f.seedProspect(t, ama.ID, domain.ProspectRejected, baseTime.AddDate(0, 0, -6))
	f.seedProspect(t, kofi.ID, domain.ProspectPending, baseTime.AddDate(0, 0, -7))
	ctx := context.Background()

	if _, err := f.service.GlobalDashboard(ctx, ama.Principal()); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected admin only, got %v", err)
	}

	dash, err := f.service.GlobalDashboard(ctx, admin.Principal())
	if err != nil {
		t.Fatalf("global dashboard: %v", err)
	}
	if dash.TotalInfluencers != 3 || dash.TotalProspects != 4 {
		t.Fatalf("unexpected totals: %+v", dash)
	}
	if dash.ConversionRate != 66.67 {
		t.Fatalf("expected 66.67%% conversion, got %v", dash.ConversionRate)
	}
	if len(dash.TopInfluencers) != 2 || dash.TopInfluencers[0].ID != ama.ID || dash.TopInfluencers[0].TotalProspects != 3 {
		t.Fatalf("unexpected ranking: %+v", dash.TopInfluencers)
	}

	if len(dash.LastSevenDays) != 7 {
		t.Fatalf("expected 7 days, got %d", len(dash.LastSevenDays))
	}
	if dash.LastSevenDays[0].Date != "2024-03-09" || dash.LastSevenDays[6].Date != "2024-03-15" {
		t.Fatalf("unexpected window: %+v", dash.LastSevenDays)
	}
	var signups int
	for _, d := range dash.LastSevenDays {
		signups += d.Count
	}
	if signups != 3 || dash.LastSevenDays[6].Count != 1 || dash.LastSevenDays[0].Count != 1 {
		t.Fatalf("unexpected daily signups: %+v", dash.LastSevenDays)
	}
}

func TestGlobalDashboardServedFromCache(t *testing.T) {
	t.Parallel()
	cfg := defaultTestConfig()
	cfg.DashboardCacheTTL = time.Minute
	f := newFixtureWithConfig(cfg)
	admin := f.seedInfluencer(t, "Root", "root@example.com", domain.RoleAdmin, domain.Permissions{})
	ama := f.seedInfluencer(t, "Ama", "ama@example.com", domain.RoleInfluencer, domain.DefaultPermissions())
	f.seedProspect(t, ama.ID, domain.ProspectPending, baseTime)
	ctx := context.Background()

	first, err := f.service.GlobalDashboard(ctx, admin.Principal())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	f.seedProspect(t, ama.ID, domain.ProspectPending, baseTime)
	second, err := f.service.GlobalDashboard(ctx, admin.Principal())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.TotalProspects != 1 || second.TotalProspects != 1 {
		t.Fatalf("expected cached total of 1, got %d then %d", first.TotalProspects, second.TotalProspects)
	}
	f.dashboards.mu.Lock()
	sets := f.dashboards.sets
	f.dashboards.mu.Unlock()
	if sets != 1 {
		t.Fatalf("expected a single cache write, got %d", sets)
	}
}
