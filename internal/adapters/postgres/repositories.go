package postgres

import (
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Influencers ports.InfluencerRepository
	Prospects   ports.ProspectRepository
	Remises     ports.RemiseRepository
	Outbox      ports.OutboxRepository
	Idempotency ports.IdempotencyRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Influencers: &influencerRepository{db: db},
		Prospects:   &prospectRepository{db: db},
		Remises:     &remiseRepository{db: db},
		Outbox:      &outboxRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
	}
}
