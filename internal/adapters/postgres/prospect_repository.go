package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type prospectRepository struct {
	db *gorm.DB
}

func (r *prospectRepository) CreateWithOutboxTx(ctx context.Context, prospect domain.Prospect, event ports.OutboxEvent) (domain.Prospect, error) {
	rec := fromDomainProspect(prospect)
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
		return domain.Prospect{}, err
	}
	return toDomainProspect(rec), nil
}

func (r *prospectRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Prospect, error) {
	var rec prospectModel
	if err := r.db.WithContext(ctx).Where("prospect_id = ?", id).Take(&rec).Error; err != nil {
		return domain.Prospect{}, notFound(err)
	}
	return toDomainProspect(rec), nil
}

func applyProspectFilter(query *gorm.DB, filter ports.ProspectFilter) *gorm.DB {
	if filter.InfluencerID != nil {
		query = query.Where("influencer_id = ?", *filter.InfluencerID)
	}
	if filter.Status != nil {
		query = query.Where("statut = ?", string(*filter.Status))
	}
	if filter.WithoutRemise {
		query = query.Where("remise_id IS NULL")
	}
	if filter.EnrolledSince != nil {
		query = query.Where("date_inscription >= ?", *filter.EnrolledSince)
	}
	return query
}

func (r *prospectRepository) List(ctx context.Context, filter ports.ProspectFilter) ([]domain.Prospect, error) {
	query := applyProspectFilter(r.db.WithContext(ctx).Model(&prospectModel{}), filter)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}
	var rows []prospectModel
	if err := query.Order("date_inscription DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Prospect, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainProspect(row))
	}
	return out, nil
}

func (r *prospectRepository) CountByStatus(ctx context.Context, influencerID *uuid.UUID) (domain.StatusCounts, error) {
	query := r.db.WithContext(ctx).
		Model(&prospectModel{}).
		Select("statut, COUNT(*) AS total")
	if influencerID != nil {
		query = query.Where("influencer_id = ?", *influencerID)
	}
	var rows []statusCountRow
	if err := query.Group("statut").Scan(&rows).Error; err != nil {
		return domain.StatusCounts{}, err
	}
	var counts domain.StatusCounts
	for _, row := range rows {
		counts.Add(domain.ProspectStatus(row.Status), row.Count)
	}
	return counts, nil
}

// TransitionWithOutboxTx locks the prospect row, lets apply mutate it and
// persists the new status with event. An error from apply rolls everything back.
func (r *prospectRepository) TransitionWithOutboxTx(ctx context.Context, id uuid.UUID, apply ports.ProspectTransition, event ports.OutboxEvent) (domain.Prospect, error) {
	var result domain.Prospect
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec prospectModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("prospect_id = ?", id).
			Take(&rec).Error; err != nil {
			return notFound(err)
		}
		prospect := toDomainProspect(rec)
		if err := apply(&prospect); err != nil {
			return err
		}
		if err := tx.Model(&prospectModel{}).
			Where("prospect_id = ?", id).
			Update("statut", string(prospect.Status)).Error; err != nil {
			return err
		}
		outbox := toOutboxModel(event)
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}
		result = prospect
		return nil
	})
	if err != nil {
		return domain.Prospect{}, err
	}
	return result, nil
}

// TopInfluencers ranks influencers by total prospect count, highest first.
func (r *prospectRepository) TopInfluencers(ctx context.Context, limit int) ([]ports.InfluencerRanking, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&prospectModel{}).
		Select("influencer_id").
		Group("influencer_id").
		Order("COUNT(*) DESC, influencer_id ASC").
		Limit(limit).
		Pluck("influencer_id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []statusCountRow
	if err := r.db.WithContext(ctx).
		Model(&prospectModel{}).
		Select("influencer_id, statut, COUNT(*) AS total").
		Where("influencer_id IN ?", ids).
		Group("influencer_id, statut").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*domain.StatusCounts, len(ids))
	for _, id := range ids {
		byID[id] = &domain.StatusCounts{}
	}
	for _, row := range rows {
		if counts, ok := byID[row.InfluencerID]; ok {
			counts.Add(domain.ProspectStatus(row.Status), row.Count)
		}
	}
	out := make([]ports.InfluencerRanking, 0, len(ids))
	for _, id := range ids {
		out = append(out, ports.InfluencerRanking{InfluencerID: id, Counts: *byID[id]})
	}
	return out, nil
}

func (r *prospectRepository) InfluencersWithEligible(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&prospectModel{}).
		Distinct("influencer_id").
		Where("statut = ?", string(domain.ProspectConfirmed)).
		Where("remise_id IS NULL").
		Order("influencer_id ASC").
		Pluck("influencer_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
