package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	idempotencyPending   = "PENDING"
	idempotencyCompleted = "COMPLETED"
)

type idempotencyRepository struct {
	db *gorm.DB
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (*ports.IdempotencyRecord, error) {
	var rec idempotencyModel
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := ports.IdempotencyRecord{
		Key:          rec.IdempotencyKey,
		RequestHash:  rec.RequestHash,
		Status:       rec.Status,
		ResponseCode: rec.ResponseCode,
		ExpiresAt:    rec.ExpiresAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if rec.ResponseBody != nil {
		out.ResponseBody = []byte(*rec.ResponseBody)
	}
	return &out, nil
}

// Reserve inserts a pending record. An expired record under the same key is
// replaced; a live one yields domain.ErrDuplicate.
func (r *idempotencyRepository) Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error {
	now := time.Now().UTC()
	rec := idempotencyModel{
		IdempotencyKey: key,
		RequestHash:    requestHash,
		Status:         idempotencyPending,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "idempotency_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"request_hash":  requestHash,
			"status":        idempotencyPending,
			"response_code": 0,
			"response_body": nil,
			"expires_at":    expiresAt,
			"created_at":    now,
			"updated_at":    now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lt{Column: clause.Column{Table: "affiliation_idempotency", Name: "expires_at"}, Value: now},
		}},
	}).Create(&rec)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return domain.ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrDuplicate
	}
	return nil
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	var body *string
	if len(responseBody) > 0 {
		raw := string(responseBody)
		body = &raw
	}
	return r.db.WithContext(ctx).
		Model(&idempotencyModel{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]any{
			"status":        idempotencyCompleted,
			"response_code": responseCode,
			"response_body": body,
			"updated_at":    at,
		}).Error
}

func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Where("idempotency_key = ? AND status = ?", key, idempotencyPending).
		Delete(&idempotencyModel{}).Error
}
