package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

const (
	evolutionMonths    = 6
	recentProspects    = 10
	topInfluencerCount = 5
	signupWindowDays   = 7
)

// InfluencerDashboard aggregates one influencer's activity. Admins may read any
// dashboard; influencers only their own and only with peut_voir_statistiques.
func (s *Service) InfluencerDashboard(ctx context.Context, principal domain.Principal, influencerID uuid.UUID) (InfluencerDashboard, error) {
	if err := requirePrincipal(principal); err != nil {
		return InfluencerDashboard{}, err
	}
	if !principal.IsAdmin() {
		if principal.SubjectID() != influencerID {
			return InfluencerDashboard{}, domain.ErrForbidden
		}
		if err := requirePermission(principal, domain.PermViewStatistics); err != nil {
			return InfluencerDashboard{}, err
		}
	}
	return cachedDashboard(ctx, s, "dashboard:influencer:"+influencerID.String(), func() (InfluencerDashboard, error) {
		return s.buildInfluencerDashboard(ctx, influencerID)
	})
}

func (s *Service) buildInfluencerDashboard(ctx context.Context, influencerID uuid.UUID) (InfluencerDashboard, error) {
	inf, err := s.influencers.GetByID(ctx, influencerID)
	if err != nil {
		return InfluencerDashboard{}, err
	}
	counts, err := s.prospects.CountByStatus(ctx, &influencerID)
	if err != nil {
		return InfluencerDashboard{}, err
	}
	totals, err := s.remises.Totals(ctx, &influencerID)
	if err != nil {
		return InfluencerDashboard{}, err
	}

	now := s.nowFn()
	evolution, err := s.monthlyEvolution(ctx, influencerID, now)
	if err != nil {
		return InfluencerDashboard{}, err
	}
	recent, err := s.recentProspects(ctx, influencerID)
	if err != nil {
		return InfluencerDashboard{}, err
	}

	return InfluencerDashboard{
		Influencer: s.toInfluencerView(inf),
		Statistics: DashboardStatistics{
			TotalProspects:     counts.Total(),
			PendingProspects:   counts.Pending,
			ConfirmedProspects: counts.Confirmed,
			RejectedProspects:  counts.Rejected,
			ConversionRate:     domain.ConversionRate(counts.Confirmed, counts.Rejected),
			TotalRemises:       totals.Count(),
			TotalEarnings:      formatAmount(totals.PaidAmount),
			PendingEarnings:    formatAmount(totals.PendingAmount),
		},
		Evolution: evolution,
		RemiseBreakdown: map[domain.RemiseStatus]int{
			domain.RemisePending: totals.PendingCount,
			domain.RemisePaid:    totals.PaidCount,
		},
		RecentProspects: recent,
	}, nil
}

// monthlyEvolution buckets prospects by enrollment month and remise amounts by
// creation month over the last evolutionMonths months, oldest first.
func (s *Service) monthlyEvolution(ctx context.Context, influencerID uuid.UUID, now time.Time) ([]MonthlyPoint, error) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -(evolutionMonths - 1), 0)

	prospects, err := s.prospects.List(ctx, ports.ProspectFilter{InfluencerID: &influencerID, EnrolledSince: &start})
	if err != nil {
		return nil, err
	}
	remises, err := s.remises.List(ctx, ports.RemiseFilter{InfluencerID: &influencerID, CreatedSince: &start})
	if err != nil {
		return nil, err
	}

	prospectsByMonth := make(map[string]int, evolutionMonths)
	for _, p := range prospects {
		prospectsByMonth[p.EnrolledAt.In(now.Location()).Format("2006-01")]++
	}
	amountsByMonth := make(map[string]decimal.Decimal, evolutionMonths)
	for _, r := range remises {
		key := r.CreatedAt.In(now.Location()).Format("2006-01")
		amountsByMonth[key] = amountsByMonth[key].Add(r.Amount)
	}

	points := make([]MonthlyPoint, 0, evolutionMonths)
	for i := 0; i < evolutionMonths; i++ {
		key := start.AddDate(0, i, 0).Format("2006-01")
		points = append(points, MonthlyPoint{
			Month:     key,
			Prospects: prospectsByMonth[key],
			Remises:   formatAmount(amountsByMonth[key]),
		})
	}
	return points, nil
}

func (s *Service) recentProspects(ctx context.Context, influencerID uuid.UUID) ([]RecentProspect, error) {
	items, err := s.prospects.List(ctx, ports.ProspectFilter{InfluencerID: &influencerID, Limit: recentProspects})
	if err != nil {
		return nil, err
	}
	remiseIDs := make([]uuid.UUID, 0, len(items))
	for _, p := range items {
		if p.RemiseID != nil {
			remiseIDs = append(remiseIDs, *p.RemiseID)
		}
	}
	amounts := make(map[uuid.UUID]string, len(remiseIDs))
	if len(remiseIDs) > 0 {
		linked, err := s.remises.List(ctx, ports.RemiseFilter{IDs: remiseIDs})
		if err != nil {
			return nil, err
		}
		for _, r := range linked {
			amounts[r.ID] = formatAmount(r.Amount)
		}
	}

	out := make([]RecentProspect, 0, len(items))
	for _, p := range items {
		row := RecentProspect{
			ID:     p.ID,
			Name:   p.Name,
			Email:  p.Email,
			Status: p.Status,
			Date:   p.EnrolledAt,
		}
		if p.RemiseID != nil {
			if amount, ok := amounts[*p.RemiseID]; ok {
				row.Amount = &amount
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// GlobalDashboard is the admin-wide rollup.
func (s *Service) GlobalDashboard(ctx context.Context, principal domain.Principal) (GlobalDashboard, error) {
	if err := requireAdmin(principal); err != nil {
		return GlobalDashboard{}, err
	}
	return cachedDashboard(ctx, s, "dashboard:global", func() (GlobalDashboard, error) {
		return s.buildGlobalDashboard(ctx)
	})
}

func (s *Service) buildGlobalDashboard(ctx context.Context) (GlobalDashboard, error) {
	influencerCount, err := s.influencers.Count(ctx)
	if err != nil {
		return GlobalDashboard{}, err
	}
	counts, err := s.prospects.CountByStatus(ctx, nil)
	if err != nil {
		return GlobalDashboard{}, err
	}
	totals, err := s.remises.Totals(ctx, nil)
	if err != nil {
		return GlobalDashboard{}, err
	}

	rankings, err := s.prospects.TopInfluencers(ctx, topInfluencerCount)
	if err != nil {
		return GlobalDashboard{}, err
	}
	top := make([]TopInfluencer, 0, len(rankings))
	for _, rank := range rankings {
		inf, err := s.influencers.GetByID(ctx, rank.InfluencerID)
		if err != nil {
			return GlobalDashboard{}, err
		}
		top = append(top, TopInfluencer{
			ID:             inf.ID,
			Name:           inf.Name,
			Email:          inf.Email,
			TotalProspects: rank.Counts.Total(),
			Confirmed:      rank.Counts.Confirmed,
			ConversionRate: domain.ConversionRate(rank.Counts.Confirmed, rank.Counts.Rejected),
		})
	}

	daily, err := s.dailySignups(ctx, s.nowFn())
	if err != nil {
		return GlobalDashboard{}, err
	}

	return GlobalDashboard{
		TotalInfluencers: influencerCount,
		TotalProspects:   counts.Total(),
		TotalRemises:     totals.Count(),
		ProspectCounts:   counts,
		ConversionRate:   domain.ConversionRate(counts.Confirmed, counts.Rejected),
		PaidEarnings:     formatAmount(totals.PaidAmount),
		PendingEarnings:  formatAmount(totals.PendingAmount),
		TopInfluencers:   top,
		LastSevenDays:    daily,
	}, nil
}

func (s *Service) dailySignups(ctx context.Context, now time.Time) ([]DailyPoint, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(signupWindowDays - 1))
	items, err := s.prospects.List(ctx, ports.ProspectFilter{EnrolledSince: &start})
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]int, signupWindowDays)
	for _, p := range items {
		byDay[p.EnrolledAt.In(now.Location()).Format(time.DateOnly)]++
	}
	points := make([]DailyPoint, 0, signupWindowDays)
	for i := 0; i < signupWindowDays; i++ {
		key := start.AddDate(0, 0, i).Format(time.DateOnly)
		points = append(points, DailyPoint{Date: key, Count: byDay[key]})
	}
	return points, nil
}

// cachedDashboard serves key from the dashboard cache, computing and storing
// it on a miss. Cache errors degrade to a live computation.
func cachedDashboard[T any](ctx context.Context, s *Service, key string, compute func() (T, error)) (T, error) {
	if s.dashboards == nil || s.cfg.DashboardCacheTTL <= 0 {
		return compute()
	}
	raw, err := s.dashboards.Get(ctx, key)
	if err != nil {
		appLogger().WarnContext(ctx, "dashboard cache read failed",
			"service", s.cfg.ServiceName,
			"operation", "dashboard_cache_get",
			"outcome", "warning",
			"key", key,
			"error", err,
		)
	} else if raw != nil {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	out, err := compute()
	if err != nil {
		return out, err
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return out, nil
	}
	if err := s.dashboards.Set(ctx, key, payload, s.cfg.DashboardCacheTTL); err != nil {
		appLogger().WarnContext(ctx, "dashboard cache write failed",
			"service", s.cfg.ServiceName,
			"operation", "dashboard_cache_set",
			"outcome", "warning",
			"key", key,
			"error", err,
		)
	}
	return out, nil
}
