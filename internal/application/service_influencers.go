package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

const maxAffiliationCodeAttempts = 5

type newInfluencerInput struct {
	Name        string
	Email       string
	Telephone   string
	Password    string
	Role        domain.Role
	Permissions domain.Permissions
	CreatedBy   *uuid.UUID
}

func (s *Service) CreateInfluencer(ctx context.Context, principal domain.Principal, req CreateInfluencerRequest) (InfluencerView, error) {
	if err := requirePermission(principal, domain.PermCreateInfluencers); err != nil {
		return InfluencerView{}, err
	}
	if err := validateRequest(req); err != nil {
		return InfluencerView{}, err
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return InfluencerView{}, fmt.Errorf("%w: unknown role", domain.ErrInvalidInput)
	}
	if !principal.IsAdmin() && (role != domain.RoleInfluencer || !req.PermissionPatch.empty()) {
		return InfluencerView{}, fmt.Errorf("%w: only admins can assign roles or permissions", domain.ErrForbidden)
	}
	perms := applyPermissionPatch(domain.DefaultPermissions(), req.PermissionPatch)
	creator := principal.SubjectID()

	inf, err := s.createInfluencer(ctx, newInfluencerInput{
		Name:        req.Name,
		Email:       req.Email,
		Telephone:   req.Telephone,
		Password:    req.Password,
		Role:        role,
		Permissions: perms,
		CreatedBy:   &creator,
	})
	if err != nil {
		return InfluencerView{}, err
	}
	return s.toInfluencerView(inf), nil
}

// createInfluencer persists a new account together with its influencer.created
// event. Codes are drawn until an unused one is found.
func (s *Service) createInfluencer(ctx context.Context, in newInfluencerInput) (domain.Influencer, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return domain.Influencer{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Influencer{}, fmt.Errorf("%w: nom is required", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePassword(in.Password); err != nil {
		return domain.Influencer{}, err
	}

	if _, err := s.influencers.GetByEmail(ctx, email); err == nil {
		return domain.Influencer{}, fmt.Errorf("%w: an influencer with this email already exists", domain.ErrDuplicate)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Influencer{}, err
	}

	code, err := s.newAffiliationCode(ctx)
	if err != nil {
		return domain.Influencer{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.Influencer{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	inf := domain.Influencer{
		ID:              uuid.New(),
		Name:            name,
		Email:           email,
		Telephone:       strings.TrimSpace(in.Telephone),
		AffiliationCode: code,
		PasswordHash:    hash,
		Role:            in.Role,
		Permissions:     in.Permissions,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	event, err := s.newOutboxEvent(domain.EventInfluencerCreated, inf.ID.String(), domain.InfluencerCreatedPayload{
		InfluencerID:    inf.ID.String(),
		Name:            inf.Name,
		Email:           inf.Email,
		AffiliationCode: inf.AffiliationCode,
		AffiliationLink: inf.AffiliationLink(s.cfg.AffiliationBaseURL),
		OccurredAt:      now.Format(time.RFC3339),
	})
	if err != nil {
		return domain.Influencer{}, err
	}

	created, err := s.influencers.CreateWithOutboxTx(ctx, inf, event)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.Influencer{}, fmt.Errorf("%w: an influencer with this email already exists", domain.ErrDuplicate)
		}
		return domain.Influencer{}, err
	}
	createdBy := "self"
	if in.CreatedBy != nil {
		createdBy = in.CreatedBy.String()
	}
	appLogger().InfoContext(ctx, "influencer created",
		"service", s.cfg.ServiceName,
		"operation", "create_influencer",
		"outcome", "success",
		"influencer_id", created.ID.String(),
		"role", string(created.Role),
		"created_by", createdBy,
	)
	return created, nil
}

func (s *Service) newAffiliationCode(ctx context.Context) (string, error) {
	for i := 0; i < maxAffiliationCodeAttempts; i++ {
		code := domain.NewAffiliationCode()
		exists, err := s.influencers.AffiliationCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check affiliation code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique affiliation code after %d attempts", maxAffiliationCodeAttempts)
}

func (s *Service) ListInfluencers(ctx context.Context, principal domain.Principal, q InfluencerQuery) ([]InfluencerView, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	filter := ports.InfluencerFilter{
		Active: q.Active,
		Limit:  clampLimit(q.Limit),
		Offset: max(q.Offset, 0),
	}
	if strings.TrimSpace(q.Role) != "" {
		role, ok := domain.ParseRole(q.Role)
		if !ok {
			return nil, fmt.Errorf("%w: unknown role", domain.ErrInvalidInput)
		}
		filter.Role = &role
	}
	items, err := s.influencers.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]InfluencerView, 0, len(items))
	for _, inf := range items {
		out = append(out, s.toInfluencerView(inf))
	}
	return out, nil
}

func (s *Service) GetInfluencer(ctx context.Context, principal domain.Principal, id uuid.UUID) (InfluencerView, error) {
	if err := requirePrincipal(principal); err != nil {
		return InfluencerView{}, err
	}
	if !domain.CanAccessInfluencer(principal, id) {
		return InfluencerView{}, domain.ErrForbidden
	}
	inf, err := s.influencers.GetByID(ctx, id)
	if err != nil {
		return InfluencerView{}, err
	}
	return s.toInfluencerView(inf), nil
}

// UpdateInfluencer applies a partial update. Self-service callers may edit
// their identity and password but not their role, permissions or status.
func (s *Service) UpdateInfluencer(ctx context.Context, principal domain.Principal, id uuid.UUID, req UpdateInfluencerRequest) (InfluencerView, error) {
	if err := requirePrincipal(principal); err != nil {
		return InfluencerView{}, err
	}
	if !domain.CanAccessInfluencer(principal, id) {
		return InfluencerView{}, domain.ErrForbidden
	}
	if err := validateRequest(req); err != nil {
		return InfluencerView{}, err
	}
	privileged := req.Role != nil || req.IsActive != nil || !req.PermissionPatch.empty()
	if privileged && !principal.IsAdmin() {
		return InfluencerView{}, fmt.Errorf("%w: only admins can change role, permissions or status", domain.ErrForbidden)
	}

	inf, err := s.influencers.GetByID(ctx, id)
	if err != nil {
		return InfluencerView{}, err
	}
	now := s.nowFn()

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return InfluencerView{}, fmt.Errorf("%w: nom cannot be empty", domain.ErrInvalidInput)
		}
		inf.Name = name
	}
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return InfluencerView{}, err
		}
		if email != inf.Email {
			if other, err := s.influencers.GetByEmail(ctx, email); err == nil && other.ID != inf.ID {
				return InfluencerView{}, fmt.Errorf("%w: an influencer with this email already exists", domain.ErrDuplicate)
			} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return InfluencerView{}, err
			}
		}
		inf.Email = email
	}
	if req.Telephone != nil {
		inf.Telephone = strings.TrimSpace(*req.Telephone)
	}
	if req.Role != nil {
		role, ok := domain.ParseRole(*req.Role)
		if !ok {
			return InfluencerView{}, fmt.Errorf("%w: unknown role", domain.ErrInvalidInput)
		}
		inf.Role = role
	}
	if req.IsActive != nil {
		inf.IsActive = *req.IsActive
	}
	inf.Permissions = applyPermissionPatch(inf.Permissions, req.PermissionPatch)
	if req.Password != nil {
		if err := domain.ValidatePassword(*req.Password); err != nil {
			return InfluencerView{}, err
		}
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return InfluencerView{}, fmt.Errorf("hash password: %w", err)
		}
		inf.PasswordHash = hash
		inf.PasswordChangedAt = &now
	}
	inf.UpdatedAt = now

	updated, err := s.influencers.Update(ctx, inf)
	if err != nil {
		return InfluencerView{}, err
	}
	return s.toInfluencerView(updated), nil
}

// DeleteInfluencer removes an account and, through cascading keys, its prospects and remises.
func (s *Service) DeleteInfluencer(ctx context.Context, principal domain.Principal, id uuid.UUID) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if principal.SubjectID() == id {
		return fmt.Errorf("%w: admins cannot delete their own account", domain.ErrInvalidInput)
	}
	if _, err := s.influencers.GetByID(ctx, id); err != nil {
		return err
	}
	event, err := s.newOutboxEvent(domain.EventInfluencerDeleted, id.String(), domain.InfluencerDeletedPayload{
		InfluencerID: id.String(),
		DeletedBy:    principal.SubjectID().String(),
		OccurredAt:   s.nowFn().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := s.influencers.DeleteWithOutboxTx(ctx, id, event); err != nil {
		return err
	}
	appLogger().InfoContext(ctx, "influencer deleted",
		"service", s.cfg.ServiceName,
		"operation", "delete_influencer",
		"outcome", "success",
		"influencer_id", id.String(),
		"actor_id", principal.SubjectID().String(),
	)
	return nil
}

func applyPermissionPatch(p domain.Permissions, patch PermissionPatch) domain.Permissions {
	if patch.CanCreateInfluencers != nil {
		p.CanCreateInfluencers = *patch.CanCreateInfluencers
	}
	if patch.CanValidateProspects != nil {
		p.CanValidateProspects = *patch.CanValidateProspects
	}
	if patch.CanPayRemises != nil {
		p.CanPayRemises = *patch.CanPayRemises
	}
	if patch.CanViewStatistics != nil {
		p.CanViewStatistics = *patch.CanViewStatistics
	}
	return p
}
