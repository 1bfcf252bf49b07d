package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type remiseRepository struct {
	db *gorm.DB
}

func (r *remiseRepository) CreateForEligibleTx(ctx context.Context, influencerID uuid.UUID, build ports.RemiseBuilder, event ports.RemiseEventBuilder) (*domain.Remise, []uuid.UUID, error) {
	var (
		created     *domain.Remise
		prospectIDs []uuid.UUID
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var eligible []prospectModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("influencer_id = ?", influencerID).
			Where("statut = ?", string(domain.ProspectConfirmed)).
			Where("remise_id IS NULL").
			Order("date_inscription ASC").
			Find(&eligible).Error; err != nil {
			return err
		}
		if len(eligible) == 0 {
			return nil
		}

		remise, err := build(len(eligible))
		if err != nil {
			return err
		}
		rec := fromDomainRemise(remise)
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(eligible))
		for _, p := range eligible {
			ids = append(ids, p.ProspectID)
		}
		if err := tx.Model(&prospectModel{}).
			Where("prospect_id IN ?", ids).
			Update("remise_id", rec.RemiseID).Error; err != nil {
			return err
		}

		saved := toDomainRemise(rec)
		outboxEvent, err := event(saved, ids)
		if err != nil {
			return err
		}
		outbox := toOutboxModel(outboxEvent)
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}
		created = &saved
		prospectIDs = ids
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, prospectIDs, nil
}

func (r *remiseRepository) CreateWithOutboxTx(ctx context.Context, remise domain.Remise, event ports.OutboxEvent) (domain.Remise, error) {
	rec := fromDomainRemise(remise)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		outbox := toOutboxModel(event)
		return tx.Create(&outbox).Error
	})
	if err != nil {
		return domain.Remise{}, err
	}
	return toDomainRemise(rec), nil
}

func (r *remiseRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Remise, error) {
	var rec remiseModel
	if err := r.db.WithContext(ctx).Where("remise_id = ?", id).Take(&rec).Error; err != nil {
		return domain.Remise{}, notFound(err)
	}
	return toDomainRemise(rec), nil
}

func (r *remiseRepository) List(ctx context.Context, filter ports.RemiseFilter) ([]domain.Remise, error) {
	query := r.db.WithContext(ctx).Model(&remiseModel{})
	if filter.InfluencerID != nil {
		query = query.Where("influencer_id = ?", *filter.InfluencerID)
	}
	if filter.Status != nil {
		query = query.Where("statut = ?", string(*filter.Status))
	}
	if len(filter.IDs) > 0 {
		query = query.Where("remise_id IN ?", filter.IDs)
	}
	if filter.CreatedSince != nil {
		query = query.Where("date_creation >= ?", *filter.CreatedSince)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var rows []remiseModel
	if err := query.Order("date_creation DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Remise, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainRemise(row))
	}
	return out, nil
}

func (r *remiseRepository) Totals(ctx context.Context, influencerID *uuid.UUID) (domain.RemiseTotals, error) {
	query := r.db.WithContext(ctx).
		Model(&remiseModel{}).
		Select("statut, COUNT(*) AS total, COALESCE(SUM(montant), 0) AS montant")
	if influencerID != nil {
		query = query.Where("influencer_id = ?", *influencerID)
	}
	var rows []remiseTotalRow
	if err := query.Group("statut").Scan(&rows).Error; err != nil {
		return domain.RemiseTotals{}, err
	}
	totals := domain.RemiseTotals{PendingAmount: decimal.Zero, PaidAmount: decimal.Zero}
	for _, row := range rows {
		switch domain.RemiseStatus(row.Status) {
		case domain.RemisePending:
			totals.PendingCount = row.Count
			totals.PendingAmount = row.Amount
		case domain.RemisePaid:
			totals.PaidCount = row.Count
			totals.PaidAmount = row.Amount
		}
	}
	return totals, nil
}

// MarkPaidWithOutboxTx locks the remise and settles it. A remise that is
// already paid yields domain.ErrAlreadyPaid with its payment date untouched.
func (r *remiseRepository) MarkPaidWithOutboxTx(ctx context.Context, id uuid.UUID, at time.Time, receiptPath *string, event ports.OutboxEvent) (domain.Remise, error) {
	var result domain.Remise
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec remiseModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("remise_id = ?", id).
			Take(&rec).Error; err != nil {
			return notFound(err)
		}
		remise := toDomainRemise(rec)
		if err := remise.MarkPaid(at, receiptPath); err != nil {
			return err
		}
		if err := tx.Model(&remiseModel{}).
			Where("remise_id = ?", id).
			Updates(map[string]any{
				"statut":        string(remise.Status),
				"date_paiement": remise.PaidAt,
				"justificatif":  remise.ReceiptPath,
			}).Error; err != nil {
			return err
		}
		outbox := toOutboxModel(event)
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}
		result = remise
		return nil
	})
	if err != nil {
		return domain.Remise{}, err
	}
	return result, nil
}
