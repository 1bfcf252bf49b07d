package application

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

type Service struct {
	cfg         Config
	influencers ports.InfluencerRepository
	prospects   ports.ProspectRepository
	remises     ports.RemiseRepository
	idempotency ports.IdempotencyRepository
	rateLimits  ports.LockoutStore
	revocations ports.TokenRevocationStore
	dashboards  ports.DashboardCache
	receipts    ports.ReceiptStore
	hasher      ports.PasswordHasher
	tokenSigner ports.TokenSigner
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Influencers ports.InfluencerRepository
	Prospects   ports.ProspectRepository
	Remises     ports.RemiseRepository
	Idempotency ports.IdempotencyRepository
	RateLimits  ports.LockoutStore
	Revocations ports.TokenRevocationStore
	Dashboards  ports.DashboardCache
	Receipts    ports.ReceiptStore
	Hasher      ports.PasswordHasher
	TokenSigner ports.TokenSigner
	// Now overrides the clock; nil means time.Now in UTC.
	Now func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "Affiliation-Service"
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 24 * time.Hour
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.FailedLoginThreshold <= 0 {
		cfg.FailedLoginThreshold = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 30 * time.Minute
	}
	if cfg.AffiliationBaseURL == "" {
		cfg.AffiliationBaseURL = "http://localhost:8000"
	}
	if !cfg.CommissionRate.IsPositive() {
		cfg.CommissionRate = decimal.NewFromInt(10)
	}
	if cfg.CurrencyLabel == "" {
		cfg.CurrencyLabel = "F CFA"
	}
	if cfg.DashboardCacheTTL < 0 {
		cfg.DashboardCacheTTL = 0
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.MaxReceiptBytes <= 0 {
		cfg.MaxReceiptBytes = 5 << 20
	}

	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		cfg:         cfg,
		influencers: deps.Influencers,
		prospects:   deps.Prospects,
		remises:     deps.Remises,
		idempotency: deps.Idempotency,
		rateLimits:  deps.RateLimits,
		revocations: deps.Revocations,
		dashboards:  deps.Dashboards,
		receipts:    deps.Receipts,
		hasher:      deps.Hasher,
		tokenSigner: deps.TokenSigner,
		nowFn:       nowFn,
	}
}

// DefaultCommissionRate is the per-prospect rate used when a request omits one.
func (s *Service) DefaultCommissionRate() decimal.Decimal {
	return s.cfg.CommissionRate
}
