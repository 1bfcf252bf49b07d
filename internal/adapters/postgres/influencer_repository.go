package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type influencerRepository struct {
	db *gorm.DB
}

func (r *influencerRepository) CreateWithOutboxTx(ctx context.Context, influencer domain.Influencer, event ports.OutboxEvent) (domain.Influencer, error) {
	rec := fromDomainInfluencer(influencer)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicate
			}
			return err
		}
		outbox := toOutboxModel(event)
		return tx.Create(&outbox).Error
	})
	if err != nil {
		return domain.Influencer{}, err
	}
	return toDomainInfluencer(rec), nil
}

func (r *influencerRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Influencer, error) {
	return r.takeWhere(ctx, "influencer_id = ?", id)
}

func (r *influencerRepository) GetByEmail(ctx context.Context, email string) (domain.Influencer, error) {
	return r.takeWhere(ctx, "email = ?", email)
}

func (r *influencerRepository) GetByAffiliationCode(ctx context.Context, code string) (domain.Influencer, error) {
	return r.takeWhere(ctx, "code_affiliation = ?", code)
}

func (r *influencerRepository) takeWhere(ctx context.Context, query string, arg any) (domain.Influencer, error) {
	var rec influencerModel
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&rec).Error; err != nil {
		return domain.Influencer{}, notFound(err)
	}
	return toDomainInfluencer(rec), nil
}

func (r *influencerRepository) AffiliationCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&influencerModel{}).
		Where("code_affiliation = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *influencerRepository) List(ctx context.Context, filter ports.InfluencerFilter) ([]domain.Influencer, error) {
	query := r.db.WithContext(ctx).Model(&influencerModel{})
	if filter.Role != nil {
		query = query.Where("role = ?", string(*filter.Role))
	}
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var rows []influencerModel
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Influencer, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainInfluencer(row))
	}
	return out, nil
}

func (r *influencerRepository) Count(ctx context.Context) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&influencerModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// Update rewrites the mutable columns. The affiliation code and creation time are never touched.
func (r *influencerRepository) Update(ctx context.Context, influencer domain.Influencer) (domain.Influencer, error) {
	rec := fromDomainInfluencer(influencer)
	res := r.db.WithContext(ctx).
		Model(&influencerModel{}).
		Where("influencer_id = ?", influencer.ID).
		Updates(map[string]any{
			"nom":                     rec.Name,
			"email":                   rec.Email,
			"telephone":               rec.Telephone,
			"password_hash":           rec.PasswordHash,
			"role":                    rec.Role,
			"peut_creer_influenceurs": rec.CanCreateInfluencers,
			"peut_valider_prospects":  rec.CanValidateProspects,
			"peut_payer_remises":      rec.CanPayRemises,
			"peut_voir_statistiques":  rec.CanViewStatistics,
			"is_active":               rec.IsActive,
			"password_changed_at":     rec.PasswordChangedAt,
			"updated_at":              rec.UpdatedAt,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return domain.Influencer{}, domain.ErrDuplicate
		}
		return domain.Influencer{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Influencer{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, influencer.ID)
}

// RecordLoginFailure increments the counter under a row lock so concurrent
// failures are all counted. Rows already locked at now are left unchanged.
func (r *influencerRepository) RecordLoginFailure(ctx context.Context, id uuid.UUID, now time.Time, threshold int, lockout time.Duration) (domain.Influencer, error) {
	var result domain.Influencer
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec influencerModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("influencer_id = ?", id).
			Take(&rec).Error; err != nil {
			return notFound(err)
		}
		inf := toDomainInfluencer(rec)
		if inf.IsLocked(now) {
			result = inf
			return nil
		}
		inf.RecordFailedLogin(now, threshold, lockout)
		if err := tx.Model(&influencerModel{}).
			Where("influencer_id = ?", id).
			Updates(map[string]any{
				"failed_login_attempts": inf.FailedLoginAttempts,
				"last_failed_login_at":  inf.LastFailedLoginAt,
				"locked_until":          inf.LockedUntil,
			}).Error; err != nil {
			return err
		}
		result = inf
		return nil
	})
	if err != nil {
		return domain.Influencer{}, err
	}
	return result, nil
}

func (r *influencerRepository) RecordLoginSuccess(ctx context.Context, id uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&influencerModel{}).
		Where("influencer_id = ?", id).
		Updates(map[string]any{
			"failed_login_attempts": 0,
			"locked_until":          nil,
			"last_login_at":         now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteWithOutboxTx removes the influencer; prospects and remises follow through ON DELETE CASCADE.
func (r *influencerRepository) DeleteWithOutboxTx(ctx context.Context, id uuid.UUID, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("influencer_id = ?", id).Delete(&influencerModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		outbox := toOutboxModel(event)
		return tx.Create(&outbox).Error
	})
}
