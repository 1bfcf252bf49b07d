package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

const submitSuccessMessage = "Votre inscription a été enregistrée avec succès."

// resolveActiveCode loads the owner of an affiliation code. Inactive owners
// are reported exactly like unknown codes.
func (s *Service) resolveActiveCode(ctx context.Context, code string) (domain.Influencer, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return domain.Influencer{}, domain.ErrNotFound
	}
	inf, err := s.influencers.GetByAffiliationCode(ctx, code)
	if err != nil {
		return domain.Influencer{}, err
	}
	if !inf.IsActive {
		return domain.Influencer{}, domain.ErrNotFound
	}
	return inf, nil
}

// AffiliationForm returns what the public form needs to render for code.
func (s *Service) AffiliationForm(ctx context.Context, code string) (AffiliationFormView, error) {
	inf, err := s.resolveActiveCode(ctx, code)
	if err != nil {
		return AffiliationFormView{}, err
	}
	return AffiliationFormView{
		InfluencerName:  inf.Name,
		AffiliationCode: inf.AffiliationCode,
		Choices: map[string][]string{
			"niveau_etude":      domain.EducationLevels,
			"serie_bac":         domain.BacSeries,
			"filiere_souhaitee": domain.Programs,
		},
	}, nil
}

// SubmitProspect is the public intake behind an affiliation link.
func (s *Service) SubmitProspect(ctx context.Context, code string, req ProspectRequest, clientIP, idempotencyKey string) (SubmitProspectResponse, error) {
	inf, err := s.resolveActiveCode(ctx, code)
	if err != nil {
		return SubmitProspectResponse{}, err
	}
	if err := s.enforceRateLimit(ctx, "intake:"+clientIP, s.cfg.IntakeRateLimit, s.cfg.IntakeRateWindow); err != nil {
		appLogger().WarnContext(ctx, "prospect intake throttled",
			"service", s.cfg.ServiceName,
			"operation", "submit_prospect",
			"outcome", "blocked",
			"client_ip", clientIP,
		)
		return SubmitProspectResponse{}, err
	}

	requestHash := hashRequest(struct {
		Code string
		Req  ProspectRequest
	}{inf.AffiliationCode, req})
	if cached, ok, err := s.getIdempotent(ctx, idempotencyKey, requestHash); err != nil {
		return SubmitProspectResponse{}, err
	} else if ok {
		var out SubmitProspectResponse
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	}

	draft, err := req.draft().Normalize()
	if err != nil {
		return SubmitProspectResponse{}, err
	}
	if err := s.reserveIdempotency(ctx, idempotencyKey, requestHash); err != nil {
		return SubmitProspectResponse{}, err
	}

	created, err := s.createProspect(ctx, inf.ID, draft, nil)
	if err != nil {
		s.releaseIdempotency(ctx, idempotencyKey)
		return SubmitProspectResponse{}, err
	}
	out := SubmitProspectResponse{
		Success:    true,
		Message:    submitSuccessMessage,
		ProspectID: created.ID,
	}
	s.completeIdempotencyJSON(ctx, idempotencyKey, http.StatusCreated, out)
	return out, nil
}

// CreateProspect records a prospect on behalf of an authenticated caller.
// Non-admins always create for themselves; admins must name the influencer.
func (s *Service) CreateProspect(ctx context.Context, principal domain.Principal, req CreateProspectRequest) (ProspectView, error) {
	if err := requirePrincipal(principal); err != nil {
		return ProspectView{}, err
	}
	owner := principal.SubjectID()
	if principal.IsAdmin() {
		if req.InfluencerID == nil {
			return ProspectView{}, fmt.Errorf("%w: influenceur_id is required", domain.ErrInvalidInput)
		}
		owner = *req.InfluencerID
	}
	if _, err := s.influencers.GetByID(ctx, owner); err != nil {
		return ProspectView{}, err
	}
	draft, err := req.draft().Normalize()
	if err != nil {
		return ProspectView{}, err
	}
	actor := principal.SubjectID()
	created, err := s.createProspect(ctx, owner, draft, &actor)
	if err != nil {
		return ProspectView{}, err
	}
	return toProspectView(created), nil
}

func (s *Service) createProspect(ctx context.Context, influencerID uuid.UUID, draft domain.ProspectDraft, actor *uuid.UUID) (domain.Prospect, error) {
	now := s.nowFn()
	prospect := domain.NewProspect(influencerID, draft, now)
	payload := domain.ProspectEventPayload{
		ProspectID:   prospect.ID.String(),
		InfluencerID: influencerID.String(),
		Status:       string(prospect.Status),
		OccurredAt:   now.Format(time.RFC3339),
	}
	if actor != nil {
		payload.ActorID = actor.String()
	}
	event, err := s.newOutboxEvent(domain.EventProspectSubmitted, influencerID.String(), payload)
	if err != nil {
		return domain.Prospect{}, err
	}
	created, err := s.prospects.CreateWithOutboxTx(ctx, prospect, event)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.Prospect{}, fmt.Errorf("%w: a prospect with this telephone or email already exists", domain.ErrDuplicate)
		}
		return domain.Prospect{}, err
	}
	appLogger().InfoContext(ctx, "prospect submitted",
		"service", s.cfg.ServiceName,
		"operation", "submit_prospect",
		"outcome", "success",
		"prospect_id", created.ID.String(),
		"influencer_id", influencerID.String(),
	)
	return created, nil
}

func (s *Service) ListProspects(ctx context.Context, principal domain.Principal, q ProspectQuery) ([]ProspectView, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	filter := ports.ProspectFilter{
		InfluencerID: scopeToPrincipal(principal, domain.PermValidateProspects, q.InfluencerID),
		Limit:        clampLimit(q.Limit),
		Offset:       max(q.Offset, 0),
	}
	if strings.TrimSpace(q.Status) != "" {
		status, ok := domain.ParseProspectStatus(q.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown statut %q", domain.ErrInvalidInput, q.Status)
		}
		filter.Status = &status
	}
	return s.listProspects(ctx, filter)
}

// ListProspectsWithoutRemise returns confirmed prospects not yet covered by a remise.
func (s *Service) ListProspectsWithoutRemise(ctx context.Context, principal domain.Principal, q ProspectQuery) ([]ProspectView, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	confirmed := domain.ProspectConfirmed
	return s.listProspects(ctx, ports.ProspectFilter{
		InfluencerID:  scopeToPrincipal(principal, domain.PermValidateProspects, q.InfluencerID),
		Status:        &confirmed,
		WithoutRemise: true,
		Limit:         clampLimit(q.Limit),
		Offset:        max(q.Offset, 0),
	})
}

func (s *Service) listProspects(ctx context.Context, filter ports.ProspectFilter) ([]ProspectView, error) {
	items, err := s.prospects.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]ProspectView, 0, len(items))
	for _, p := range items {
		out = append(out, toProspectView(p))
	}
	return out, nil
}

// GetProspect hides other influencers' prospects behind ErrNotFound.
func (s *Service) GetProspect(ctx context.Context, principal domain.Principal, id uuid.UUID) (ProspectView, error) {
	if err := requirePrincipal(principal); err != nil {
		return ProspectView{}, err
	}
	p, err := s.prospects.GetByID(ctx, id)
	if err != nil {
		return ProspectView{}, err
	}
	if !principal.Has(domain.PermValidateProspects) && p.InfluencerID != principal.SubjectID() {
		return ProspectView{}, domain.ErrNotFound
	}
	return toProspectView(p), nil
}

// ValidateProspect confirms a pending prospect.
func (s *Service) ValidateProspect(ctx context.Context, principal domain.Principal, id uuid.UUID) (ProspectView, error) {
	return s.transitionProspect(ctx, principal, id, "validate_prospect", domain.EventProspectConfirmed, domain.ProspectConfirmed, (*domain.Prospect).Validate)
}

// RejectProspect rejects a pending or confirmed prospect.
func (s *Service) RejectProspect(ctx context.Context, principal domain.Principal, id uuid.UUID) (ProspectView, error) {
	return s.transitionProspect(ctx, principal, id, "reject_prospect", domain.EventProspectRejected, domain.ProspectRejected, (*domain.Prospect).Reject)
}

func (s *Service) transitionProspect(
	ctx context.Context,
	principal domain.Principal,
	id uuid.UUID,
	operation string,
	eventType string,
	target domain.ProspectStatus,
	apply ports.ProspectTransition,
) (ProspectView, error) {
	if err := requirePermission(principal, domain.PermValidateProspects); err != nil {
		return ProspectView{}, err
	}
	current, err := s.prospects.GetByID(ctx, id)
	if err != nil {
		return ProspectView{}, err
	}
	event, err := s.newOutboxEvent(eventType, current.InfluencerID.String(), domain.ProspectEventPayload{
		ProspectID:   current.ID.String(),
		InfluencerID: current.InfluencerID.String(),
		Status:       string(target),
		ActorID:      principal.SubjectID().String(),
		OccurredAt:   s.nowFn().Format(time.RFC3339),
	})
	if err != nil {
		return ProspectView{}, err
	}

	updated, err := s.prospects.TransitionWithOutboxTx(ctx, id, apply, event)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			appLogger().InfoContext(ctx, "prospect transition refused",
				"service", s.cfg.ServiceName,
				"operation", operation,
				"outcome", "rejected",
				"prospect_id", id.String(),
				"error", err,
			)
		}
		return ProspectView{}, err
	}
	appLogger().InfoContext(ctx, "prospect status changed",
		"service", s.cfg.ServiceName,
		"operation", operation,
		"outcome", "success",
		"prospect_id", id.String(),
		"statut", string(updated.Status),
		"actor_id", principal.SubjectID().String(),
	)
	return toProspectView(updated), nil
}

func (s *Service) ProspectStatistics(ctx context.Context, principal domain.Principal) (ProspectStatistics, error) {
	if err := requirePrincipal(principal); err != nil {
		return ProspectStatistics{}, err
	}
	counts, err := s.prospects.CountByStatus(ctx, scopeToPrincipal(principal, domain.PermValidateProspects, nil))
	if err != nil {
		return ProspectStatistics{}, err
	}
	return ProspectStatistics{
		Total:          counts.Total(),
		Pending:        counts.Pending,
		Confirmed:      counts.Confirmed,
		Rejected:       counts.Rejected,
		ConversionRate: domain.ConversionRate(counts.Confirmed, counts.Rejected),
	}, nil
}

// InfluencerStats is the unauthenticated rollup served to internal callers.
func (s *Service) InfluencerStats(ctx context.Context, influencerID uuid.UUID) (InfluencerStats, error) {
	if _, err := s.influencers.GetByID(ctx, influencerID); err != nil {
		return InfluencerStats{}, err
	}
	counts, err := s.prospects.CountByStatus(ctx, &influencerID)
	if err != nil {
		return InfluencerStats{}, err
	}
	return InfluencerStats{
		InfluencerID:   influencerID,
		Counts:         counts,
		ConversionRate: domain.ConversionRate(counts.Confirmed, counts.Rejected),
	}, nil
}

// ResolveAffiliationCode looks up a code for internal callers; inactive owners are returned as-is.
func (s *Service) ResolveAffiliationCode(ctx context.Context, code string) (domain.Influencer, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return domain.Influencer{}, fmt.Errorf("%w: code is required", domain.ErrInvalidInput)
	}
	return s.influencers.GetByAffiliationCode(ctx, code)
}
