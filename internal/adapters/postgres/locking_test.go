package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
	"gorm.io/gorm"
)

// openTestDB connects to AFFILIATION_TEST_DB_URL and applies migrations.
// Tests using it are skipped when the variable is unset.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	url := os.Getenv("AFFILIATION_TEST_DB_URL")
	if url == "" {
		t.Skip("AFFILIATION_TEST_DB_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, url, 10)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedInfluencerRow(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	now := time.Now().UTC()
	row := influencerModel{
		InfluencerID:    id,
		Name:            "Ama",
		Email:           id.String() + "@example.com",
		AffiliationCode: id.String()[:8],
		PasswordHash:    "x",
		Role:            string(domain.RoleInfluencer),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed influencer: %v", err)
	}
	t.Cleanup(func() { db.Where("influencer_id = ?", id).Delete(&influencerModel{}) })
	return id
}

func seedProspectRow(t *testing.T, db *gorm.DB, influencerID uuid.UUID, status domain.ProspectStatus) uuid.UUID {
	t.Helper()
	id := uuid.New()
	row := prospectModel{
		ProspectID:   id,
		Name:         "Yao",
		Telephone:    fmt.Sprintf("%08d", id.ID()%100000000),
		EnrolledAt:   time.Now().UTC(),
		Status:       string(status),
		InfluencerID: influencerID,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed prospect: %v", err)
	}
	return id
}

func testEvent(eventType string) ports.OutboxEvent {
	return ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: uuid.NewString(),
		Payload:      []byte(`{}`),
		OccurredAt:   time.Now().UTC(),
	}
}

func TestCreateForEligibleTxLinksEachProspectOnce(t *testing.T) {
	db := openTestDB(t)
	repo := &remiseRepository{db: db}
	influencerID := seedInfluencerRow(t, db)
	var prospectIDs []uuid.UUID
	for i := 0; i < 5; i++ {
		prospectIDs = append(prospectIDs, seedProspectRow(t, db, influencerID, domain.ProspectConfirmed))
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []domain.Remise
		errs    []error
	)
	build := func(count int) (domain.Remise, error) {
		return domain.NewComputedRemise(influencerID, count, decimal.NewFromInt(10), "F CFA", time.Now().UTC())
	}
	event := func(domain.Remise, []uuid.UUID) (ports.OutboxEvent, error) {
		return testEvent(domain.EventRemiseCreated), nil
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			remise, _, err := repo.CreateForEligibleTx(context.Background(), influencerID, build, event)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if remise != nil {
				created = append(created, *remise)
			}
		}()
	}
	wg.Wait()

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(created) != 1 {
		t.Fatalf("expected exactly one remise, got %d", len(created))
	}
	if !created[0].Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected 50.00 for five prospects, got %s", created[0].Amount)
	}
	var linked int64
	if err := db.Model(&prospectModel{}).
		Where("prospect_id IN ? AND remise_id = ?", prospectIDs, created[0].ID).
		Count(&linked).Error; err != nil {
		t.Fatalf("count linked: %v", err)
	}
	if linked != int64(len(prospectIDs)) {
		t.Fatalf("expected %d linked prospects, got %d", len(prospectIDs), linked)
	}
}

func TestTransitionWithOutboxTxSerializesValidation(t *testing.T) {
	db := openTestDB(t)
	repo := &prospectRepository{db: db}
	influencerID := seedInfluencerRow(t, db)
	prospectID := seedProspectRow(t, db, influencerID, domain.ProspectPending)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		already   int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.TransitionWithOutboxTx(context.Background(), prospectID, func(p *domain.Prospect) error {
				return p.Validate()
			}, testEvent(domain.EventProspectConfirmed))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyConfirmed):
				already++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || already != 1 {
		t.Fatalf("expected one success and one already-confirmed, got %d and %d", successes, already)
	}
}
