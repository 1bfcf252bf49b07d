package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
	"gorm.io/gorm"
)

func toDomainInfluencer(row influencerModel) domain.Influencer {
	return domain.Influencer{
		ID:              row.InfluencerID,
		Name:            row.Name,
		Email:           row.Email,
		Telephone:       row.Telephone,
		AffiliationCode: row.AffiliationCode,
		PasswordHash:    row.PasswordHash,
		Role:            domain.Role(row.Role),
		Permissions: domain.Permissions{
			CanCreateInfluencers: row.CanCreateInfluencers,
			CanValidateProspects: row.CanValidateProspects,
			CanPayRemises:        row.CanPayRemises,
			CanViewStatistics:    row.CanViewStatistics,
		},
		IsActive:            row.IsActive,
		FailedLoginAttempts: row.FailedLoginAttempts,
		LastFailedLoginAt:   row.LastFailedLoginAt,
		LockedUntil:         row.LockedUntil,
		LastLoginAt:         row.LastLoginAt,
		PasswordChangedAt:   row.PasswordChangedAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func fromDomainInfluencer(inf domain.Influencer) influencerModel {
	return influencerModel{
		InfluencerID:         inf.ID,
		Name:                 inf.Name,
		Email:                inf.Email,
		Telephone:            inf.Telephone,
		AffiliationCode:      inf.AffiliationCode,
		PasswordHash:         inf.PasswordHash,
		Role:                 string(inf.Role),
		CanCreateInfluencers: inf.Permissions.CanCreateInfluencers,
		CanValidateProspects: inf.Permissions.CanValidateProspects,
		CanPayRemises:        inf.Permissions.CanPayRemises,
		CanViewStatistics:    inf.Permissions.CanViewStatistics,
		IsActive:             inf.IsActive,
		FailedLoginAttempts:  inf.FailedLoginAttempts,
		LastFailedLoginAt:    inf.LastFailedLoginAt,
		LockedUntil:          inf.LockedUntil,
		LastLoginAt:          inf.LastLoginAt,
		PasswordChangedAt:    inf.PasswordChangedAt,
		CreatedAt:            inf.CreatedAt,
		UpdatedAt:            inf.UpdatedAt,
	}
}

func toDomainProspect(row prospectModel) domain.Prospect {
	return domain.Prospect{
		ID:           row.ProspectID,
		Name:         row.Name,
		Email:        row.Email,
		Telephone:    row.Telephone,
		EnrolledAt:   row.EnrolledAt,
		Status:       domain.ProspectStatus(row.Status),
		InfluencerID: row.InfluencerID,
		RemiseID:     row.RemiseID,
		Education: domain.Education{
			Level:          row.Level,
			LevelOther:     row.LevelOther,
			BacSeries:      row.BacSeries,
			BacSeriesOther: row.BacSeriesOther,
			Program:        row.Program,
			ProgramOther:   row.ProgramOther,
		},
	}
}

func fromDomainProspect(p domain.Prospect) prospectModel {
	return prospectModel{
		ProspectID:     p.ID,
		Name:           p.Name,
		Email:          p.Email,
		Telephone:      p.Telephone,
		EnrolledAt:     p.EnrolledAt,
		Status:         string(p.Status),
		InfluencerID:   p.InfluencerID,
		RemiseID:       p.RemiseID,
		Level:          p.Education.Level,
		LevelOther:     p.Education.LevelOther,
		BacSeries:      p.Education.BacSeries,
		BacSeriesOther: p.Education.BacSeriesOther,
		Program:        p.Education.Program,
		ProgramOther:   p.Education.ProgramOther,
	}
}

func toDomainRemise(row remiseModel) domain.Remise {
	return domain.Remise{
		ID:           row.RemiseID,
		Amount:       row.Amount,
		Status:       domain.RemiseStatus(row.Status),
		InfluencerID: row.InfluencerID,
		ReceiptPath:  row.ReceiptPath,
		CreatedAt:    row.CreatedAt,
		PaidAt:       row.PaidAt,
		Description:  row.Description,
	}
}

func fromDomainRemise(r domain.Remise) remiseModel {
	return remiseModel{
		RemiseID:     r.ID,
		Amount:       r.Amount,
		Status:       string(r.Status),
		InfluencerID: r.InfluencerID,
		ReceiptPath:  r.ReceiptPath,
		CreatedAt:    r.CreatedAt,
		PaidAt:       r.PaidAt,
		Description:  r.Description,
	}
}

func toOutboxModel(event ports.OutboxEvent) outboxModel {
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	return outboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      string(payload),
		CreatedAt:    event.OccurredAt,
	}
}

func toOutboxRecord(row outboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:       row.OutboxID,
		EventType:      row.EventType,
		PartitionKey:   row.PartitionKey,
		Payload:        []byte(row.Payload),
		RetryCount:     row.RetryCount,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		PublishedAt:    row.PublishedAt,
		LastErrorAt:    row.LastErrorAt,
		ClaimToken:     row.ClaimToken,
		ClaimUntil:     row.ClaimUntil,
		DeadLetteredAt: row.DeadLetteredAt,
	}
}

// isUniqueViolation matches both gorm's translated error and a raw 23505.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
