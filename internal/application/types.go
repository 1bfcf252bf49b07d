package application

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
)

type Config struct {
	ServiceName          string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	FailedLoginThreshold int
	LockoutDuration      time.Duration
	AffiliationBaseURL   string
	CommissionRate       decimal.Decimal
	CurrencyLabel        string
	DashboardCacheTTL    time.Duration
	IntakeRateLimit      int
	IntakeRateWindow     time.Duration
	IdempotencyTTL       time.Duration
	MaxReceiptBytes      int64
}

// Auth

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	TokenType    string             `json:"token_type"`
	ExpiresIn    int64              `json:"expires_in"`
	Influencer   InfluencerView     `json:"influenceur"`
	Permissions  domain.Permissions `json:"permissions"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type RegisterRequest struct {
	Name      string `json:"nom" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Telephone string `json:"telephone" validate:"omitempty,max=20"`
	Password  string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type AccountStatus struct {
	IsActive       bool       `json:"is_active"`
	IsLocked       bool       `json:"is_locked"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	FailedAttempts int        `json:"failed_attempts"`
}

type ProfileResponse struct {
	Influencer    InfluencerView `json:"influenceur"`
	AccountStatus AccountStatus  `json:"account_status"`
}

// Influencers

type InfluencerView struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"nom"`
	Email           string             `json:"email"`
	Telephone       string             `json:"telephone,omitempty"`
	AffiliationCode string             `json:"code_affiliation"`
	AffiliationLink string             `json:"lien_affiliation"`
	Role            domain.Role        `json:"role"`
	Permissions     domain.Permissions `json:"permissions"`
	IsActive        bool               `json:"is_active"`
	CreatedAt       time.Time          `json:"date_creation"`
	LastLoginAt     *time.Time         `json:"date_derniere_connexion,omitempty"`
}

type PermissionPatch struct {
	CanCreateInfluencers *bool `json:"peut_creer_influenceurs"`
	CanValidateProspects *bool `json:"peut_valider_prospects"`
	CanPayRemises        *bool `json:"peut_payer_remises"`
	CanViewStatistics    *bool `json:"peut_voir_statistiques"`
}

func (p PermissionPatch) empty() bool {
	return p.CanCreateInfluencers == nil && p.CanValidateProspects == nil && p.CanPayRemises == nil && p.CanViewStatistics == nil
}

type CreateInfluencerRequest struct {
	Name      string `json:"nom" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Telephone string `json:"telephone" validate:"omitempty,max=20"`
	Password  string `json:"password" validate:"required"`
	Role      string `json:"role" validate:"omitempty,oneof=admin influenceur moderateur"`
	PermissionPatch
}

// UpdateInfluencerRequest applies only the fields that are present.
type UpdateInfluencerRequest struct {
	Name      *string `json:"nom" validate:"omitempty,min=1,max=100"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Telephone *string `json:"telephone" validate:"omitempty,max=20"`
	Role      *string `json:"role" validate:"omitempty,oneof=admin influenceur moderateur"`
	IsActive  *bool   `json:"is_active"`
	Password  *string `json:"password"`
	PermissionPatch
}

type InfluencerQuery struct {
	Role   string
	Active *bool
	Limit  int
	Offset int
}

// Prospects

type ProspectRequest struct {
	Name      string `json:"nom"`
	Email     string `json:"email"`
	Telephone string `json:"telephone"`
	domain.Education
}

func (r ProspectRequest) draft() domain.ProspectDraft {
	return domain.ProspectDraft{
		Name:      r.Name,
		Email:     r.Email,
		Telephone: r.Telephone,
		Education: r.Education,
	}
}

type CreateProspectRequest struct {
	ProspectRequest
	InfluencerID *uuid.UUID `json:"influenceur_id"`
}

type SubmitProspectResponse struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	ProspectID uuid.UUID `json:"prospect_id"`
}

type ProspectView struct {
	ID                    uuid.UUID             `json:"id"`
	Name                  string                `json:"nom"`
	Email                 *string               `json:"email"`
	Telephone             string                `json:"telephone"`
	EnrolledAt            time.Time             `json:"date_inscription"`
	Status                domain.ProspectStatus `json:"statut"`
	InfluencerID          uuid.UUID             `json:"influenceur_id"`
	RemiseID              *uuid.UUID            `json:"remise_id"`
	EducationLevelDisplay string                `json:"niveau_etude_display,omitempty"`
	BacSeriesDisplay      string                `json:"serie_bac_display,omitempty"`
	ProgramDisplay        string                `json:"filiere_souhaitee_display,omitempty"`
	domain.Education
}

type ProspectQuery struct {
	InfluencerID *uuid.UUID
	Status       string
	Limit        int
	Offset       int
}

type ProspectStatistics struct {
	Total          int     `json:"total"`
	Pending        int     `json:"en_attente"`
	Confirmed      int     `json:"confirme"`
	Rejected       int     `json:"rejeter"`
	ConversionRate float64 `json:"taux_conversion"`
}

type AffiliationFormView struct {
	InfluencerName  string              `json:"influenceur"`
	AffiliationCode string              `json:"code_affiliation"`
	Choices         map[string][]string `json:"choix"`
}

// Remises

type RemiseView struct {
	ID           uuid.UUID           `json:"id"`
	Amount       string              `json:"montant"`
	Status       domain.RemiseStatus `json:"statut"`
	InfluencerID uuid.UUID           `json:"influenceur_id"`
	ReceiptPath  *string             `json:"justificatif"`
	CreatedAt    time.Time           `json:"date_creation"`
	PaidAt       *time.Time          `json:"date_paiement"`
	Description  string              `json:"description"`
}

type ComputeRemisesRequest struct {
	Rate *decimal.Decimal `json:"montant_par_prospect"`
}

type ComputeRemisesResponse struct {
	Remises []RemiseView `json:"remises"`
	Message string       `json:"message"`
}

type CreateRemiseRequest struct {
	InfluencerID uuid.UUID       `json:"influenceur_id"`
	Amount       decimal.Decimal `json:"montant"`
	Description  string          `json:"description" validate:"max=500"`
}

// Receipt is an optional uploaded payment proof.
type Receipt struct {
	Filename string
	Size     int64
	Content  io.Reader
}

type RemiseQuery struct {
	InfluencerID *uuid.UUID
	Status       string
	Limit        int
	Offset       int
}

type RemiseStatistics struct {
	Total         int    `json:"total"`
	Pending       int    `json:"en_attente"`
	Paid          int    `json:"payee"`
	TotalAmount   string `json:"montant_total"`
	PendingAmount string `json:"montant_en_attente"`
	PaidAmount    string `json:"montant_paye"`
}

// Dashboards

type DashboardStatistics struct {
	TotalProspects     int     `json:"total_prospects"`
	PendingProspects   int     `json:"prospects_en_attente"`
	ConfirmedProspects int     `json:"prospects_confirmes"`
	RejectedProspects  int     `json:"prospects_rejetes"`
	ConversionRate     float64 `json:"taux_conversion"`
	TotalRemises       int     `json:"total_remises"`
	TotalEarnings      string  `json:"total_gains"`
	PendingEarnings    string  `json:"gains_en_attente"`
}

type MonthlyPoint struct {
	Month     string `json:"mois"`
	Prospects int    `json:"prospects"`
	Remises   string `json:"remises"`
}

type RecentProspect struct {
	ID     uuid.UUID             `json:"id"`
	Name   string                `json:"nom"`
	Email  *string               `json:"email"`
	Status domain.ProspectStatus `json:"statut"`
	Amount *string               `json:"montant"`
	Date   time.Time             `json:"date"`
}

type InfluencerDashboard struct {
	Influencer      InfluencerView              `json:"influenceur"`
	Statistics      DashboardStatistics         `json:"statistiques"`
	Evolution       []MonthlyPoint              `json:"evolution"`
	RemiseBreakdown map[domain.RemiseStatus]int `json:"repartition_remises"`
	RecentProspects []RecentProspect            `json:"prospects_recents"`
}

type TopInfluencer struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"nom"`
	Email          string    `json:"email"`
	TotalProspects int       `json:"total_prospects"`
	Confirmed      int       `json:"prospects_confirmes"`
	ConversionRate float64   `json:"taux_conversion"`
}

type DailyPoint struct {
	Date  string `json:"date"`
	Count int    `json:"inscriptions"`
}

type GlobalDashboard struct {
	TotalInfluencers int                 `json:"total_influenceurs"`
	TotalProspects   int                 `json:"total_prospects"`
	TotalRemises     int                 `json:"total_remises"`
	ProspectCounts   domain.StatusCounts `json:"prospects_par_statut"`
	ConversionRate   float64             `json:"taux_conversion"`
	PaidEarnings     string              `json:"gains_payes"`
	PendingEarnings  string              `json:"gains_en_attente"`
	TopInfluencers   []TopInfluencer     `json:"top_influenceurs"`
	LastSevenDays    []DailyPoint        `json:"inscriptions_7_jours"`
}

// InfluencerStats is the compact rollup exposed over gRPC.
type InfluencerStats struct {
	InfluencerID   uuid.UUID
	Counts         domain.StatusCounts
	ConversionRate float64
}
