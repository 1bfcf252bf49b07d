package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

// AdminLogin authenticates an account that must hold the admin role.
func (s *Service) AdminLogin(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	inf, err := s.authenticate(ctx, req, "admin_login")
	if err != nil {
		return LoginResponse{}, err
	}
	if inf.Role != domain.RoleAdmin {
		return LoginResponse{}, fmt.Errorf("%w: admin access required", domain.ErrForbidden)
	}
	return s.completeLogin(ctx, inf)
}

// InfluencerLogin authenticates any active account.
func (s *Service) InfluencerLogin(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	inf, err := s.authenticate(ctx, req, "influencer_login")
	if err != nil {
		return LoginResponse{}, err
	}
	return s.completeLogin(ctx, inf)
}

// authenticate runs the shared credential check with lockout bookkeeping.
// Attempts made while locked or inactive are refused before the password is
// looked at and do not move the counter.
func (s *Service) authenticate(ctx context.Context, req LoginRequest, operation string) (domain.Influencer, error) {
	if err := validateRequest(req); err != nil {
		return domain.Influencer{}, err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Influencer{}, err
	}

	inf, err := s.influencers.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Influencer{}, domain.ErrInvalidCredentials
		}
		return domain.Influencer{}, err
	}

	now := s.nowFn()
	if err := inf.CanLogin(now); err != nil {
		appLogger().WarnContext(ctx, "login refused",
			"service", s.cfg.ServiceName,
			"operation", operation,
			"outcome", "blocked",
			"influencer_id", inf.ID.String(),
			"locked_until", inf.LockedUntil,
			"reason", err.Error(),
		)
		return domain.Influencer{}, err
	}

	if err := s.hasher.Compare(inf.PasswordHash, req.Password); err != nil {
		updated, recErr := s.influencers.RecordLoginFailure(ctx, inf.ID, now, s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
		if recErr != nil {
			appLogger().ErrorContext(ctx, "failed to record login failure",
				"service", s.cfg.ServiceName,
				"operation", operation,
				"outcome", "failure",
				"influencer_id", inf.ID.String(),
				"error", recErr,
			)
			return domain.Influencer{}, domain.ErrInvalidCredentials
		}
		if updated.IsLocked(now) {
			appLogger().WarnContext(ctx, "account lockout triggered",
				"service", s.cfg.ServiceName,
				"operation", operation,
				"outcome", "blocked",
				"influencer_id", inf.ID.String(),
				"failed_attempts", updated.FailedLoginAttempts,
				"locked_until", updated.LockedUntil,
			)
		}
		return domain.Influencer{}, domain.ErrInvalidCredentials
	}

	if err := s.influencers.RecordLoginSuccess(ctx, inf.ID, now); err != nil {
		return domain.Influencer{}, fmt.Errorf("record login: %w", err)
	}
	inf.RecordSuccessfulLogin(now)
	return inf, nil
}

func (s *Service) completeLogin(ctx context.Context, inf domain.Influencer) (LoginResponse, error) {
	access, refresh, err := s.issueTokenPair(inf)
	if err != nil {
		return LoginResponse{}, err
	}
	view := s.toInfluencerView(inf)
	appLogger().InfoContext(ctx, "login succeeded",
		"service", s.cfg.ServiceName,
		"operation", "login",
		"outcome", "success",
		"influencer_id", inf.ID.String(),
		"role", string(inf.Role),
	)
	return LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
		Influencer:   view,
		Permissions:  view.Permissions,
	}, nil
}

func (s *Service) issueTokenPair(inf domain.Influencer) (string, string, error) {
	now := s.nowFn()
	access, err := s.tokenSigner.Sign(ports.AuthClaims{
		SubjectID: inf.ID,
		Email:     inf.Email,
		Role:      string(inf.Role),
		TokenType: ports.TokenTypeAccess,
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	})
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.tokenSigner.Sign(ports.AuthClaims{
		SubjectID: inf.ID,
		Email:     inf.Email,
		Role:      string(inf.Role),
		TokenType: ports.TokenTypeRefresh,
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	})
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}
	return access, refresh, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new pair issued.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (LoginResponse, error) {
	if err := validateRequest(req); err != nil {
		return LoginResponse{}, err
	}
	claims, err := s.parseRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return LoginResponse{}, err
	}
	inf, err := s.influencers.GetByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return LoginResponse{}, domain.ErrUnauthorized
		}
		return LoginResponse{}, err
	}
	if err := inf.CanLogin(s.nowFn()); err != nil {
		return LoginResponse{}, err
	}
	if err := s.revocations.MarkRevoked(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return LoginResponse{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	return s.completeLogin(ctx, inf)
}

// Logout revokes the refresh token so it cannot be exchanged again.
func (s *Service) Logout(ctx context.Context, req RefreshRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	claims, err := s.parseRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	return s.revocations.MarkRevoked(ctx, claims.TokenID, claims.ExpiresAt)
}

func (s *Service) parseRefreshToken(ctx context.Context, raw string) (ports.AuthClaims, error) {
	claims, err := s.tokenSigner.ParseAndValidate(raw)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.TokenType != ports.TokenTypeRefresh {
		return ports.AuthClaims{}, fmt.Errorf("%w: refresh token required", domain.ErrUnauthorized)
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return ports.AuthClaims{}, domain.ErrTokenRevoked
	}
	return claims, nil
}

// Authenticate resolves an access token into the caller principal.
// The account is reloaded so deactivation and permission edits apply immediately.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (domain.Principal, error) {
	claims, err := s.ValidateToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	inf, err := s.influencers.GetByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if !inf.IsActive {
		return nil, domain.ErrAccountInactive
	}
	return inf.Principal(), nil
}

// ValidateToken checks signature, expiry and token type of an access token.
func (s *Service) ValidateToken(_ context.Context, rawToken string) (ports.AuthClaims, error) {
	claims, err := s.tokenSigner.ParseAndValidate(rawToken)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.TokenType != ports.TokenTypeAccess {
		return ports.AuthClaims{}, fmt.Errorf("%w: access token required", domain.ErrUnauthorized)
	}
	return claims, nil
}

// Register creates a self-service influencer account and logs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (LoginResponse, error) {
	if err := validateRequest(req); err != nil {
		return LoginResponse{}, err
	}
	inf, err := s.createInfluencer(ctx, newInfluencerInput{
		Name:        req.Name,
		Email:       req.Email,
		Telephone:   req.Telephone,
		Password:    req.Password,
		Role:        domain.RoleInfluencer,
		Permissions: domain.DefaultPermissions(),
	})
	if err != nil {
		return LoginResponse{}, err
	}
	return s.completeLogin(ctx, inf)
}

func (s *Service) Profile(ctx context.Context, principal domain.Principal) (ProfileResponse, error) {
	if err := requirePrincipal(principal); err != nil {
		return ProfileResponse{}, err
	}
	inf, err := s.influencers.GetByID(ctx, principal.SubjectID())
	if err != nil {
		return ProfileResponse{}, err
	}
	return ProfileResponse{
		Influencer: s.toInfluencerView(inf),
		AccountStatus: AccountStatus{
			IsActive:       inf.IsActive,
			IsLocked:       inf.IsLocked(s.nowFn()),
			LockedUntil:    inf.LockedUntil,
			FailedAttempts: inf.FailedLoginAttempts,
		},
	}, nil
}

func (s *Service) ChangePassword(ctx context.Context, principal domain.Principal, req ChangePasswordRequest) error {
	if err := requirePrincipal(principal); err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	inf, err := s.influencers.GetByID(ctx, principal.SubjectID())
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(inf.PasswordHash, req.CurrentPassword); err != nil {
		return fmt.Errorf("%w: current password is incorrect", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.nowFn()
	inf.PasswordHash = hash
	inf.PasswordChangedAt = &now
	inf.UpdatedAt = now
	if _, err := s.influencers.Update(ctx, inf); err != nil {
		return err
	}
	return nil
}
