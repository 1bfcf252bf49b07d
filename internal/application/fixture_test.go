package application_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/application"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

var baseTime = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	service     *application.Service
	store       *memStore
	idempotency *fakeIdempotency
	rateLimits  *fakeRateLimits
	revocations *fakeRevocations
	dashboards  *fakeDashboardCache
	receipts    *fakeReceipts
	clock       *fakeClock
}

func defaultTestConfig() application.Config {
	return application.Config{
		AccessTokenTTL:       24 * time.Hour,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		FailedLoginThreshold: 5,
		LockoutDuration:      30 * time.Minute,
		AffiliationBaseURL:   "https://affiliation.example.com",
		CommissionRate:       decimal.NewFromInt(10),
		CurrencyLabel:        "F CFA",
		IntakeRateLimit:      20,
		IntakeRateWindow:     time.Minute,
		IdempotencyTTL:       time.Hour,
		MaxReceiptBytes:      1 << 20,
	}
}

func newFixture() *fixture {
	return newFixtureWithConfig(defaultTestConfig())
}

func newFixtureWithConfig(cfg application.Config) *fixture {
	store := newMemStore()
	clock := &fakeClock{now: baseTime}
	f := &fixture{
		store:       store,
		idempotency: &fakeIdempotency{records: map[string]ports.IdempotencyRecord{}},
		rateLimits:  &fakeRateLimits{state: map[string]ports.LockoutState{}},
		revocations: &fakeRevocations{revoked: map[string]bool{}},
		dashboards:  &fakeDashboardCache{items: map[string][]byte{}},
		receipts:    &fakeReceipts{files: map[string][]byte{}},
		clock:       clock,
	}
	f.service = application.NewService(application.Dependencies{
		Config:      cfg,
		Influencers: &fakeInfluencers{s: store},
		Prospects:   &fakeProspects{s: store},
		Remises:     &fakeRemises{s: store},
		Idempotency: f.idempotency,
		RateLimits:  f.rateLimits,
		Revocations: f.revocations,
		Dashboards:  f.dashboards,
		Receipts:    f.receipts,
		Hasher:      &fakeHasher{},
		TokenSigner: &fakeSigner{tokens: map[string]ports.AuthClaims{}},
		Now:         clock.Now,
	})
	return f
}

// seedInfluencer stores an account directly, bypassing the service.
func (f *fixture) seedInfluencer(t *testing.T, name, email string, role domain.Role, perms domain.Permissions) domain.Influencer {
	t.Helper()
	inf := domain.Influencer{
		ID:              uuid.New(),
		Name:            name,
		Email:           email,
		AffiliationCode: domain.NewAffiliationCode(),
		PasswordHash:    "hash:SecurePass123",
		Role:            role,
		Permissions:     perms,
		IsActive:        true,
		CreatedAt:       f.clock.Now(),
		UpdatedAt:       f.clock.Now(),
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.influencers[inf.ID] = inf
	return inf
}

// seedProspect stores a prospect with status at enrolledAt.
func (f *fixture) seedProspect(t *testing.T, influencerID uuid.UUID, status domain.ProspectStatus, enrolledAt time.Time) domain.Prospect {
	t.Helper()
	p := domain.Prospect{
		ID:           uuid.New(),
		Name:         "Prospect " + uuid.NewString()[:4],
		Telephone:    uuid.NewString()[:8],
		EnrolledAt:   enrolledAt,
		Status:       status,
		InfluencerID: influencerID,
		Education:    domain.Education{Level: "licence", Program: "ig"},
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.prospects[p.ID] = p
	return p
}

func (f *fixture) prospect(t *testing.T, id uuid.UUID) domain.Prospect {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	p, ok := f.store.prospects[id]
	if !ok {
		t.Fatalf("prospect %s not found", id)
	}
	return p
}

func (f *fixture) remise(t *testing.T, id uuid.UUID) domain.Remise {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	r, ok := f.store.remises[id]
	if !ok {
		t.Fatalf("remise %s not found", id)
	}
	return r
}

func (f *fixture) eventTypes() []string {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	out := make([]string, 0, len(f.store.events))
	for _, e := range f.store.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore backs the three repository fakes so links between prospects and
// remises stay consistent.
type memStore struct {
	mu          sync.Mutex
	influencers map[uuid.UUID]domain.Influencer
	prospects   map[uuid.UUID]domain.Prospect
	remises     map[uuid.UUID]domain.Remise
	events      []ports.OutboxEvent
}

func newMemStore() *memStore {
	return &memStore{
		influencers: map[uuid.UUID]domain.Influencer{},
		prospects:   map[uuid.UUID]domain.Prospect{},
		remises:     map[uuid.UUID]domain.Remise{},
	}
}

type fakeInfluencers struct {
	s *memStore
}

func (f *fakeInfluencers) CreateWithOutboxTx(_ context.Context, inf domain.Influencer, event ports.OutboxEvent) (domain.Influencer, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.influencers {
		if existing.Email == inf.Email || existing.AffiliationCode == inf.AffiliationCode {
			return domain.Influencer{}, domain.ErrDuplicate
		}
	}
	f.s.influencers[inf.ID] = inf
	f.s.events = append(f.s.events, event)
	return inf, nil
}

func (f *fakeInfluencers) GetByID(_ context.Context, id uuid.UUID) (domain.Influencer, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	inf, ok := f.s.influencers[id]
	if !ok {
		return domain.Influencer{}, domain.ErrNotFound
	}
	return inf, nil
}

func (f *fakeInfluencers) GetByEmail(_ context.Context, email string) (domain.Influencer, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, inf := range f.s.influencers {
		if inf.Email == email {
			return inf, nil
		}
	}
	return domain.Influencer{}, domain.ErrNotFound
}

func (f *fakeInfluencers) GetByAffiliationCode(_ context.Context, code string) (domain.Influencer, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, inf := range f.s.influencers {
		if inf.AffiliationCode == code {
			return inf, nil
		}
	}
	return domain.Influencer{}, domain.ErrNotFound
}

func (f *fakeInfluencers) AffiliationCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := f.GetByAffiliationCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeInfluencers) List(_ context.Context, filter ports.InfluencerFilter) ([]domain.Influencer, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]domain.Influencer, 0, len(f.s.influencers))
	for _, inf := range f.s.influencers {
		if filter.Role != nil && inf.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && inf.IsActive != *filter.Active {
			continue
		}
		out = append(out, inf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (f *fakeInfluencers) Count(context.Context) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return len(f.s.influencers), nil
}

func (f *fakeInfluencers) Update(_ context.Context, inf domain.Influencer) (domain.Influencer, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.influencers[inf.ID]; !ok {
		return domain.Influencer{}, domain.ErrNotFound
	}
	for _, other := range f.s.influencers {
		if other.ID != inf.ID && other.Email == inf.Email {
			return domain.Influencer{}, domain.ErrDuplicate
		}
	}
	f.s.influencers[inf.ID] = inf
	return inf, nil
}

func (f *fakeInfluencers) RecordLoginFailure(_ context.Context, id uuid.UUID, now time.Time, threshold int, lockout time.Duration) (domain.Influencer, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	inf, ok := f.s.influencers[id]
	if !ok {
		return domain.Influencer{}, domain.ErrNotFound
	}
	if !inf.IsLocked(now) {
		inf.RecordFailedLogin(now, threshold, lockout)
		f.s.influencers[id] = inf
	}
	return inf, nil
}

func (f *fakeInfluencers) RecordLoginSuccess(_ context.Context, id uuid.UUID, now time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	inf, ok := f.s.influencers[id]
	if !ok {
		return domain.ErrNotFound
	}
	inf.RecordSuccessfulLogin(now)
	f.s.influencers[id] = inf
	return nil
}

func (f *fakeInfluencers) DeleteWithOutboxTx(_ context.Context, id uuid.UUID, event ports.OutboxEvent) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.influencers[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.s.influencers, id)
	for pid, p := range f.s.prospects {
		if p.InfluencerID == id {
			delete(f.s.prospects, pid)
		}
	}
	for rid, r := range f.s.remises {
		if r.InfluencerID == id {
			delete(f.s.remises, rid)
		}
	}
	f.s.events = append(f.s.events, event)
	return nil
}

type fakeProspects struct {
	s *memStore
}

func (f *fakeProspects) CreateWithOutboxTx(_ context.Context, p domain.Prospect, event ports.OutboxEvent) (domain.Prospect, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.prospects {
		if existing.Telephone == p.Telephone {
			return domain.Prospect{}, domain.ErrDuplicate
		}
		if p.Email != nil && existing.Email != nil && *existing.Email == *p.Email {
			return domain.Prospect{}, domain.ErrDuplicate
		}
	}
	f.s.prospects[p.ID] = p
	f.s.events = append(f.s.events, event)
	return p, nil
}

func (f *fakeProspects) GetByID(_ context.Context, id uuid.UUID) (domain.Prospect, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.prospects[id]
	if !ok {
		return domain.Prospect{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeProspects) List(_ context.Context, filter ports.ProspectFilter) ([]domain.Prospect, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]domain.Prospect, 0, len(f.s.prospects))
	for _, p := range f.s.prospects {
		if filter.InfluencerID != nil && p.InfluencerID != *filter.InfluencerID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.WithoutRemise && p.RemiseID != nil {
			continue
		}
		if filter.EnrolledSince != nil && p.EnrolledAt.Before(*filter.EnrolledSince) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.After(out[j].EnrolledAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (f *fakeProspects) CountByStatus(_ context.Context, influencerID *uuid.UUID) (domain.StatusCounts, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var counts domain.StatusCounts
	for _, p := range f.s.prospects {
		if influencerID != nil && p.InfluencerID != *influencerID {
			continue
		}
		counts.Add(p.Status, 1)
	}
	return counts, nil
}

func (f *fakeProspects) TransitionWithOutboxTx(_ context.Context, id uuid.UUID, apply ports.ProspectTransition, event ports.OutboxEvent) (domain.Prospect, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.prospects[id]
	if !ok {
		return domain.Prospect{}, domain.ErrNotFound
	}
	if err := apply(&p); err != nil {
		return domain.Prospect{}, err
	}
	f.s.prospects[id] = p
	f.s.events = append(f.s.events, event)
	return p, nil
}

func (f *fakeProspects) TopInfluencers(_ context.Context, limit int) ([]ports.InfluencerRanking, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	byID := map[uuid.UUID]*domain.StatusCounts{}
	for _, p := range f.s.prospects {
		counts, ok := byID[p.InfluencerID]
		if !ok {
			counts = &domain.StatusCounts{}
			byID[p.InfluencerID] = counts
		}
		counts.Add(p.Status, 1)
	}
	out := make([]ports.InfluencerRanking, 0, len(byID))
	for id, counts := range byID {
		out = append(out, ports.InfluencerRanking{InfluencerID: id, Counts: *counts})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Counts.Total() != out[j].Counts.Total() {
			return out[i].Counts.Total() > out[j].Counts.Total()
		}
		return out[i].InfluencerID.String() < out[j].InfluencerID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeProspects) InfluencersWithEligible(context.Context) ([]uuid.UUID, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	out := make([]uuid.UUID, 0)
	for _, p := range f.s.prospects {
		if p.EligibleForRemise() && !seen[p.InfluencerID] {
			seen[p.InfluencerID] = true
			out = append(out, p.InfluencerID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

type fakeRemises struct {
	s *memStore
}

func (f *fakeRemises) CreateForEligibleTx(_ context.Context, influencerID uuid.UUID, build ports.RemiseBuilder, event ports.RemiseEventBuilder) (*domain.Remise, []uuid.UUID, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	ids := make([]uuid.UUID, 0)
	for _, p := range f.s.prospects {
		if p.InfluencerID == influencerID && p.EligibleForRemise() {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}
	remise, err := build(len(ids))
	if err != nil {
		return nil, nil, err
	}
	ev, err := event(remise, ids)
	if err != nil {
		return nil, nil, err
	}
	f.s.remises[remise.ID] = remise
	for _, id := range ids {
		p := f.s.prospects[id]
		rid := remise.ID
		p.RemiseID = &rid
		f.s.prospects[id] = p
	}
	f.s.events = append(f.s.events, ev)
	return &remise, ids, nil
}

func (f *fakeRemises) CreateWithOutboxTx(_ context.Context, remise domain.Remise, event ports.OutboxEvent) (domain.Remise, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.remises[remise.ID] = remise
	f.s.events = append(f.s.events, event)
	return remise, nil
}

func (f *fakeRemises) GetByID(_ context.Context, id uuid.UUID) (domain.Remise, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.remises[id]
	if !ok {
		return domain.Remise{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeRemises) List(_ context.Context, filter ports.RemiseFilter) ([]domain.Remise, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	wanted := map[uuid.UUID]bool{}
	for _, id := range filter.IDs {
		wanted[id] = true
	}
	out := make([]domain.Remise, 0, len(f.s.remises))
	for _, r := range f.s.remises {
		if filter.InfluencerID != nil && r.InfluencerID != *filter.InfluencerID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if len(wanted) > 0 && !wanted[r.ID] {
			continue
		}
		if filter.CreatedSince != nil && r.CreatedAt.Before(*filter.CreatedSince) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (f *fakeRemises) Totals(_ context.Context, influencerID *uuid.UUID) (domain.RemiseTotals, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	totals := domain.RemiseTotals{PendingAmount: decimal.Zero, PaidAmount: decimal.Zero}
	for _, r := range f.s.remises {
		if influencerID != nil && r.InfluencerID != *influencerID {
			continue
		}
		switch r.Status {
		case domain.RemisePending:
			totals.PendingCount++
			totals.PendingAmount = totals.PendingAmount.Add(r.Amount)
		case domain.RemisePaid:
			totals.PaidCount++
			totals.PaidAmount = totals.PaidAmount.Add(r.Amount)
		}
	}
	return totals, nil
}

func (f *fakeRemises) MarkPaidWithOutboxTx(_ context.Context, id uuid.UUID, at time.Time, receiptPath *string, event ports.OutboxEvent) (domain.Remise, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.remises[id]
	if !ok {
		return domain.Remise{}, domain.ErrNotFound
	}
	if err := r.MarkPaid(at, receiptPath); err != nil {
		return domain.Remise{}, err
	}
	f.s.remises[id] = r
	f.s.events = append(f.s.events, event)
	return r, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

type fakeIdempotency struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
}

func (f *fakeIdempotency) Get(_ context.Context, key string) (*ports.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	cp := v
	return &cp, nil
}

func (f *fakeIdempotency) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[key]; ok {
		return domain.ErrDuplicate
	}
	f.records[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      "PENDING",
		ExpiresAt:   expiresAt,
	}
	return nil
}

func (f *fakeIdempotency) Complete(_ context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.records[key]
	v.Status = "COMPLETED"
	v.ResponseCode = responseCode
	v.ResponseBody = responseBody
	v.UpdatedAt = at
	f.records[key] = v
	return nil
}

func (f *fakeIdempotency) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.records[key]; ok && v.Status == "PENDING" {
		delete(f.records, key)
	}
	return nil
}

type fakeRateLimits struct {
	mu    sync.Mutex
	state map[string]ports.LockoutState
}

func (f *fakeRateLimits) Get(_ context.Context, key string) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[key], nil
}

func (f *fakeRateLimits) RecordFailure(_ context.Context, key string, now time.Time, threshold int, window time.Duration) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.state[key]
	st.FailedCount++
	if st.FailedCount >= threshold {
		until := now.Add(window)
		st.LockedUntil = &until
	}
	f.state[key] = st
	return st, nil
}

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (f *fakeRevocations) MarkRevoked(_ context.Context, tokenID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[tokenID] = true
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[tokenID], nil
}

type fakeDashboardCache struct {
	mu    sync.Mutex
	items map[string][]byte
	sets  int
}

func (f *fakeDashboardCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[key], nil
}

func (f *fakeDashboardCache) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = payload
	f.sets++
	return nil
}

type fakeReceipts struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (f *fakeReceipts) Save(_ context.Context, name string, content io.Reader) (string, error) {
	raw, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "justificatifs/" + uuid.NewString() + "-" + name
	f.files[path] = raw
	return path, nil
}

func (f *fakeReceipts) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}

func (f *fakeReceipts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

type fakeHasher struct{}

func (f *fakeHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (f *fakeHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

type fakeSigner struct {
	mu     sync.Mutex
	tokens map[string]ports.AuthClaims
}

func (f *fakeSigner) Sign(claims ports.AuthClaims) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := uuid.NewString()
	f.tokens[token] = claims
	return token, nil
}

func (f *fakeSigner) ParseAndValidate(token string) (ports.AuthClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.tokens[token]
	if !ok {
		return ports.AuthClaims{}, errors.New("unknown token")
	}
	return claims, nil
}
