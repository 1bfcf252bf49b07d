package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
)

func TestNewComputedRemise(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	owner := uuid.New()

	r, err := domain.NewComputedRemise(owner, 4, decimal.RequireFromString("12.345"), "F CFA", now)
	if err != nil {
		t.Fatalf("new remise: %v", err)
	}
	if !r.Amount.Equal(decimal.RequireFromString("49.40")) {
		t.Fatalf("expected 49.40 (4 x 12.35), got %s", r.Amount)
	}
	if r.Status != domain.RemisePending || r.PaidAt != nil || r.InfluencerID != owner {
		t.Fatalf("unexpected remise: %+v", r)
	}
	want := "Commission pour 4 prospect(s) confirmé(s) à 12.35 F CFA chacun"
	if r.Description != want {
		t.Fatalf("expected %q, got %q", want, r.Description)
	}

	if _, err := domain.NewComputedRemise(owner, 0, decimal.NewFromInt(10), "F CFA", now); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero prospects, got %v", err)
	}
	if _, err := domain.NewComputedRemise(owner, 2, decimal.Zero, "F CFA", now); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero rate, got %v", err)
	}
}

func TestRemiseMarkPaid(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	r, err := domain.NewManualRemise(uuid.New(), decimal.NewFromInt(25), "  prime  ", created)
	if err != nil {
		t.Fatalf("manual remise: %v", err)
	}
	if r.Description != "prime" {
		t.Fatalf("expected trimmed description, got %q", r.Description)
	}

	paidAt := created.Add(48 * time.Hour)
	receipt := "justificatifs/a.pdf"
	if err := r.MarkPaid(paidAt, &receipt); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if r.Status != domain.RemisePaid || r.PaidAt == nil || !r.PaidAt.Equal(paidAt) || *r.ReceiptPath != receipt {
		t.Fatalf("unexpected paid remise: %+v", r)
	}

	if err := r.MarkPaid(paidAt.Add(time.Hour), nil); !errors.Is(err, domain.ErrAlreadyPaid) {
		t.Fatalf("expected already paid, got %v", err)
	}
	if !r.PaidAt.Equal(paidAt) {
		t.Fatalf("payment date must not move, got %v", r.PaidAt)
	}

	if _, err := domain.NewManualRemise(uuid.New(), decimal.NewFromInt(-1), "", created); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected negative amount refused, got %v", err)
	}
}

func TestRemiseTotals(t *testing.T) {
	t.Parallel()
	totals := domain.RemiseTotals{
		PendingCount:  2,
		PaidCount:     1,
		PendingAmount: decimal.RequireFromString("20.50"),
		PaidAmount:    decimal.RequireFromString("10"),
	}
	if totals.Count() != 3 || !totals.Amount().Equal(decimal.RequireFromString("30.5")) {
		t.Fatalf("unexpected totals: %d %s", totals.Count(), totals.Amount())
	}
}
