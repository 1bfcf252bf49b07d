package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RemiseStatus string

const (
	RemisePending RemiseStatus = "en_attente"
	RemisePaid    RemiseStatus = "payee"
)

func ParseRemiseStatus(raw string) (RemiseStatus, bool) {
	switch s := RemiseStatus(strings.TrimSpace(raw)); s {
	case RemisePending, RemisePaid:
		return s, true
	default:
		return "", false
	}
}

// Remise is a commission owed to an influencer.
// Amount is fixed at creation and never recomputed.
type Remise struct {
	ID           uuid.UUID
	Amount       decimal.Decimal
	Status       RemiseStatus
	InfluencerID uuid.UUID
	ReceiptPath  *string
	CreatedAt    time.Time
	PaidAt       *time.Time
	Description  string
}

// NewComputedRemise prices count confirmed prospects at rate each. The rate is
// rounded to cents first so the amount matches the description.
func NewComputedRemise(influencerID uuid.UUID, count int, rate decimal.Decimal, currency string, now time.Time) (Remise, error) {
	if count <= 0 {
		return Remise{}, fmt.Errorf("%w: remise requires at least one prospect", ErrInvalidInput)
	}
	if !rate.IsPositive() {
		return Remise{}, fmt.Errorf("%w: rate must be positive", ErrInvalidInput)
	}
	rate = rate.Round(2)
	return Remise{
		ID:           uuid.New(),
		Amount:       rate.Mul(decimal.NewFromInt(int64(count))),
		Status:       RemisePending,
		InfluencerID: influencerID,
		CreatedAt:    now,
		Description:  CommissionDescription(count, rate, currency),
	}, nil
}

// NewManualRemise records an amount entered by an operator.
func NewManualRemise(influencerID uuid.UUID, amount decimal.Decimal, description string, now time.Time) (Remise, error) {
	if !amount.IsPositive() {
		return Remise{}, fmt.Errorf("%w: montant must be positive", ErrInvalidInput)
	}
	return Remise{
		ID:           uuid.New(),
		Amount:       amount.Round(2),
		Status:       RemisePending,
		InfluencerID: influencerID,
		CreatedAt:    now,
		Description:  strings.TrimSpace(description),
	}, nil
}

func CommissionDescription(count int, rate decimal.Decimal, currency string) string {
	return fmt.Sprintf("Commission pour %d prospect(s) confirmé(s) à %s %s chacun", count, rate.StringFixed(2), currency)
}

// MarkPaid settles the remise. A paid remise is left untouched.
func (r *Remise) MarkPaid(at time.Time, receiptPath *string) error {
	if r.Status == RemisePaid {
		return ErrAlreadyPaid
	}
	r.Status = RemisePaid
	paidAt := at
	r.PaidAt = &paidAt
	if receiptPath != nil {
		r.ReceiptPath = receiptPath
	}
	return nil
}

// RemiseTotals aggregates count and amount per status.
type RemiseTotals struct {
	PendingCount  int
	PaidCount     int
	PendingAmount decimal.Decimal
	PaidAmount    decimal.Decimal
}

func (t RemiseTotals) Count() int { return t.PendingCount + t.PaidCount }

func (t RemiseTotals) Amount() decimal.Decimal { return t.PendingAmount.Add(t.PaidAmount) }
