package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
)

// InfluencerFilter narrows influencer listings.
type InfluencerFilter struct {
	Role   *domain.Role
	Active *bool
	Limit  int
	Offset int
}

// InfluencerRepository persists influencer accounts.
// Login bookkeeping goes through dedicated methods so concurrent attempts cannot lose counter updates.
type InfluencerRepository interface {
	CreateWithOutboxTx(ctx context.Context, influencer domain.Influencer, event OutboxEvent) (domain.Influencer, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Influencer, error)
	GetByEmail(ctx context.Context, email string) (domain.Influencer, error)
	GetByAffiliationCode(ctx context.Context, code string) (domain.Influencer, error)
	AffiliationCodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter InfluencerFilter) ([]domain.Influencer, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, influencer domain.Influencer) (domain.Influencer, error)
	RecordLoginFailure(ctx context.Context, id uuid.UUID, now time.Time, threshold int, lockout time.Duration) (domain.Influencer, error)
	RecordLoginSuccess(ctx context.Context, id uuid.UUID, now time.Time) error
	DeleteWithOutboxTx(ctx context.Context, id uuid.UUID, event OutboxEvent) error
}

// ProspectFilter narrows prospect listings. Zero values mean "no constraint";
// Limit 0 returns every matching row.
type ProspectFilter struct {
	InfluencerID  *uuid.UUID
	Status        *domain.ProspectStatus
	WithoutRemise bool
	EnrolledSince *time.Time
	Limit         int
	Offset        int
}

// InfluencerRanking is one row of the top-performers rollup.
type InfluencerRanking struct {
	InfluencerID uuid.UUID
	Counts       domain.StatusCounts
}

// ProspectTransition mutates a locked prospect; returning an error aborts the transaction.
type ProspectTransition func(p *domain.Prospect) error

type ProspectRepository interface {
	CreateWithOutboxTx(ctx context.Context, prospect domain.Prospect, event OutboxEvent) (domain.Prospect, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Prospect, error)
	List(ctx context.Context, filter ProspectFilter) ([]domain.Prospect, error)
	CountByStatus(ctx context.Context, influencerID *uuid.UUID) (domain.StatusCounts, error)
	TransitionWithOutboxTx(ctx context.Context, id uuid.UUID, apply ProspectTransition, event OutboxEvent) (domain.Prospect, error)
	TopInfluencers(ctx context.Context, limit int) ([]InfluencerRanking, error)
	InfluencersWithEligible(ctx context.Context) ([]uuid.UUID, error)
}

// RemiseFilter narrows remise listings.
type RemiseFilter struct {
	InfluencerID *uuid.UUID
	Status       *domain.RemiseStatus
	IDs          []uuid.UUID
	CreatedSince *time.Time
	Limit        int
	Offset       int
}

// RemiseBuilder prices the locked set of eligible prospects.
type RemiseBuilder func(count int) (domain.Remise, error)

// RemiseEventBuilder renders the outbox event once the remise and its covered prospects are known.
type RemiseEventBuilder func(remise domain.Remise, prospectIDs []uuid.UUID) (OutboxEvent, error)

type RemiseRepository interface {
	// CreateForEligibleTx locks the influencer's confirmed prospects without a
	// remise, creates one remise covering all of them and links them, in a
	// single transaction. It returns nil when nothing is eligible.
	CreateForEligibleTx(ctx context.Context, influencerID uuid.UUID, build RemiseBuilder, event RemiseEventBuilder) (*domain.Remise, []uuid.UUID, error)
	CreateWithOutboxTx(ctx context.Context, remise domain.Remise, event OutboxEvent) (domain.Remise, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Remise, error)
	List(ctx context.Context, filter RemiseFilter) ([]domain.Remise, error)
	Totals(ctx context.Context, influencerID *uuid.UUID) (domain.RemiseTotals, error)
	MarkPaidWithOutboxTx(ctx context.Context, id uuid.UUID, at time.Time, receiptPath *string, event OutboxEvent) (domain.Remise, error)
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls the publish-retry workflow for domain events.
type OutboxRepository interface {
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}

// IdempotencyRecord tracks a previously accepted mutating request.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
	// Release drops a pending reservation so the key can be retried.
	Release(ctx context.Context, key string) error
}
