package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type influencerModel struct {
	InfluencerID         uuid.UUID  `gorm:"column:influencer_id;type:uuid;primaryKey"`
	Name                 string     `gorm:"column:nom"`
	Email                string     `gorm:"column:email"`
	Telephone            string     `gorm:"column:telephone"`
	AffiliationCode      string     `gorm:"column:code_affiliation"`
	PasswordHash         string     `gorm:"column:password_hash"`
	Role                 string     `gorm:"column:role"`
	CanCreateInfluencers bool       `gorm:"column:peut_creer_influenceurs"`
	CanValidateProspects bool       `gorm:"column:peut_valider_prospects"`
	CanPayRemises        bool       `gorm:"column:peut_payer_remises"`
	CanViewStatistics    bool       `gorm:"column:peut_voir_statistiques"`
	IsActive             bool       `gorm:"column:is_active"`
	FailedLoginAttempts  int        `gorm:"column:failed_login_attempts"`
	LastFailedLoginAt    *time.Time `gorm:"column:last_failed_login_at"`
	LockedUntil          *time.Time `gorm:"column:locked_until"`
	LastLoginAt          *time.Time `gorm:"column:last_login_at"`
	PasswordChangedAt    *time.Time `gorm:"column:password_changed_at"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

func (influencerModel) TableName() string { return "influencers" }

type prospectModel struct {
	ProspectID     uuid.UUID  `gorm:"column:prospect_id;type:uuid;primaryKey"`
	Name           string     `gorm:"column:nom"`
	Email          *string    `gorm:"column:email"`
	Telephone      string     `gorm:"column:telephone"`
	EnrolledAt     time.Time  `gorm:"column:date_inscription"`
	Status         string     `gorm:"column:statut"`
	InfluencerID   uuid.UUID  `gorm:"column:influencer_id;type:uuid"`
	RemiseID       *uuid.UUID `gorm:"column:remise_id;type:uuid"`
	Level          string     `gorm:"column:niveau_etude"`
	LevelOther     string     `gorm:"column:niveau_etude_autre"`
	BacSeries      string     `gorm:"column:serie_bac"`
	BacSeriesOther string     `gorm:"column:serie_bac_autre"`
	Program        string     `gorm:"column:filiere_souhaitee"`
	ProgramOther   string     `gorm:"column:filiere_souhaitee_autre"`
}

func (prospectModel) TableName() string { return "prospects" }

type remiseModel struct {
	RemiseID     uuid.UUID       `gorm:"column:remise_id;type:uuid;primaryKey"`
	Amount       decimal.Decimal `gorm:"column:montant;type:numeric(10,2)"`
	Status       string          `gorm:"column:statut"`
	InfluencerID uuid.UUID       `gorm:"column:influencer_id;type:uuid"`
	ReceiptPath  *string         `gorm:"column:justificatif"`
	CreatedAt    time.Time       `gorm:"column:date_creation"`
	PaidAt       *time.Time      `gorm:"column:date_paiement"`
	Description  string          `gorm:"column:description"`
}

func (remiseModel) TableName() string { return "remises" }

type outboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (outboxModel) TableName() string { return "affiliation_outbox" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body;type:jsonb"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (idempotencyModel) TableName() string { return "affiliation_idempotency" }

// statusCountRow is the scan target of GROUP BY statut queries.
type statusCountRow struct {
	InfluencerID uuid.UUID `gorm:"column:influencer_id"`
	Status       string    `gorm:"column:statut"`
	Count        int       `gorm:"column:total"`
}

type remiseTotalRow struct {
	Status string          `gorm:"column:statut"`
	Count  int             `gorm:"column:total"`
	Amount decimal.Decimal `gorm:"column:montant"`
}
