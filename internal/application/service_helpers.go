package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest runs struct-tag validation and reports the first failing
// field as domain.ErrInvalidInput.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, fe.Field())
	case "email":
		return fmt.Errorf("%w: %s must be a valid email", domain.ErrInvalidInput, fe.Field())
	case "max":
		return fmt.Errorf("%w: %s must be at most %s characters", domain.ErrInvalidInput, fe.Field(), fe.Param())
	case "min":
		return fmt.Errorf("%w: %s must be at least %s characters", domain.ErrInvalidInput, fe.Field(), fe.Param())
	case "oneof":
		return fmt.Errorf("%w: %s must be one of [%s]", domain.ErrInvalidInput, fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%w: %s is invalid", domain.ErrInvalidInput, fe.Field())
	}
}

func appLogger() *slog.Logger {
	return slog.Default().With(
		"module", "application",
		"layer", "application",
	)
}

// normalizeEmail canonicalizes and validates email format before persistence/comparison.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

// hashRequest computes a deterministic request fingerprint for idempotency conflict detection.
func hashRequest(req any) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func requirePrincipal(p domain.Principal) error {
	if p == nil {
		return domain.ErrUnauthorized
	}
	return nil
}

func requirePermission(p domain.Principal, perm domain.Permission) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if !p.Has(perm) {
		return fmt.Errorf("%w: missing permission %s", domain.ErrForbidden, perm)
	}
	return nil
}

func requireAdmin(p domain.Principal) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}
	return nil
}

// scopeToPrincipal returns the influencer a listing must be restricted to, or
// nil when the principal may see every influencer's rows.
func scopeToPrincipal(p domain.Principal, perm domain.Permission, requested *uuid.UUID) *uuid.UUID {
	if p.Has(perm) {
		return requested
	}
	id := p.SubjectID()
	return &id
}

// newOutboxEvent marshals payload into an outbox event keyed by partitionKey.
func (s *Service) newOutboxEvent(eventType, partitionKey string, payload any) (ports.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ports.OutboxEvent{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      raw,
		OccurredAt:   s.nowFn(),
	}, nil
}

func (s *Service) getIdempotent(ctx context.Context, key, expectedHash string) ([]byte, bool, error) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return nil, false, nil
	}
	rec, err := s.idempotency.Get(ctx, key)
	if err != nil || rec == nil {
		return nil, false, err
	}
	if rec.RequestHash != expectedHash {
		return nil, false, domain.ErrIdempotencyConflict
	}
	if rec.ExpiresAt.Before(s.nowFn()) {
		return nil, false, nil
	}
	if len(rec.ResponseBody) == 0 {
		return nil, false, fmt.Errorf("%w: request still in progress", domain.ErrIdempotencyConflict)
	}
	return rec.ResponseBody, true, nil
}

func (s *Service) reserveIdempotency(ctx context.Context, key, requestHash string) error {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	if err := s.idempotency.Reserve(ctx, key, requestHash, s.nowFn().Add(s.cfg.IdempotencyTTL)); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// releaseIdempotency frees a reservation whose request failed, so a retry
// runs again and reports its own outcome.
func (s *Service) releaseIdempotency(ctx context.Context, key string) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		appLogger().WarnContext(ctx, "idempotency release failed",
			"service", s.cfg.ServiceName,
			"operation", "release_idempotency",
			"outcome", "failure",
			"error", err,
		)
	}
}

func (s *Service) completeIdempotencyJSON(ctx context.Context, key string, code int, v any) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return
	}
	raw, _ := json.Marshal(v)
	if err := s.idempotency.Complete(ctx, key, code, raw, s.nowFn()); err != nil {
		appLogger().WarnContext(ctx, "idempotency completion failed",
			"service", s.cfg.ServiceName,
			"operation", "complete_idempotency",
			"outcome", "failure",
			"error", err,
		)
	}
}

// enforceRateLimit counts one hit against key and fails once threshold hits
// fall inside window.
func (s *Service) enforceRateLimit(ctx context.Context, key string, threshold int, window time.Duration) error {
	if s.rateLimits == nil || threshold <= 0 || window <= 0 {
		return nil
	}
	if strings.TrimSpace(key) == "" {
		return nil
	}

	state, err := s.rateLimits.Get(ctx, key)
	if err == nil && state.LockedUntil != nil && state.LockedUntil.After(s.nowFn()) {
		return domain.ErrRateLimited
	}

	now := s.nowFn()
	updated, err := s.rateLimits.RecordFailure(ctx, key, now, threshold, window)
	if err != nil {
		appLogger().WarnContext(ctx, "rate-limit state unavailable",
			"service", s.cfg.ServiceName,
			"operation", "rate_limit",
			"outcome", "warning",
			"key", key,
			"error", err,
		)
		return nil
	}
	if updated.FailedCount > threshold && updated.LockedUntil != nil && updated.LockedUntil.After(now) {
		return domain.ErrRateLimited
	}
	return nil
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (s *Service) toInfluencerView(inf domain.Influencer) InfluencerView {
	perms := inf.Permissions
	if inf.Role == domain.RoleAdmin {
		perms = domain.Permissions{
			CanCreateInfluencers: true,
			CanValidateProspects: true,
			CanPayRemises:        true,
			CanViewStatistics:    true,
		}
	}
	return InfluencerView{
		ID:              inf.ID,
		Name:            inf.Name,
		Email:           inf.Email,
		Telephone:       inf.Telephone,
		AffiliationCode: inf.AffiliationCode,
		AffiliationLink: inf.AffiliationLink(s.cfg.AffiliationBaseURL),
		Role:            inf.Role,
		Permissions:     perms,
		IsActive:        inf.IsActive,
		CreatedAt:       inf.CreatedAt,
		LastLoginAt:     inf.LastLoginAt,
	}
}

func toProspectView(p domain.Prospect) ProspectView {
	return ProspectView{
		ID:                    p.ID,
		Name:                  p.Name,
		Email:                 p.Email,
		Telephone:             p.Telephone,
		EnrolledAt:            p.EnrolledAt,
		Status:                p.Status,
		InfluencerID:          p.InfluencerID,
		RemiseID:              p.RemiseID,
		EducationLevelDisplay: p.Education.LevelDisplay(),
		BacSeriesDisplay:      p.Education.BacSeriesDisplay(),
		ProgramDisplay:        p.Education.ProgramDisplay(),
		Education:             p.Education,
	}
}

func toRemiseView(r domain.Remise) RemiseView {
	return RemiseView{
		ID:           r.ID,
		Amount:       formatAmount(r.Amount),
		Status:       r.Status,
		InfluencerID: r.InfluencerID,
		ReceiptPath:  r.ReceiptPath,
		CreatedAt:    r.CreatedAt,
		PaidAt:       r.PaidAt,
		Description:  r.Description,
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 200:
		return 200
	default:
		return limit
	}
}
