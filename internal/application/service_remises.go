package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

const (
	computeCreatedMessage = "%d remise(s) créée(s) avec succès"
	computeNothingMessage = "Aucune remise à créer"
)

var allowedReceiptExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".pdf":  {},
}

func (s *Service) resolveRate(rate *decimal.Decimal) (decimal.Decimal, error) {
	if rate == nil {
		return s.cfg.CommissionRate, nil
	}
	if !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: montant_par_prospect must be positive", domain.ErrInvalidInput)
	}
	if !rate.Equal(rate.Round(2)) {
		return decimal.Decimal{}, fmt.Errorf("%w: montant_par_prospect allows at most 2 decimal places", domain.ErrInvalidInput)
	}
	return *rate, nil
}

// ComputeFor creates one remise covering every confirmed, unlinked prospect of
// influencerID. An empty response means nothing was eligible.
func (s *Service) ComputeFor(ctx context.Context, principal domain.Principal, influencerID uuid.UUID, req ComputeRemisesRequest) (ComputeRemisesResponse, error) {
	if err := requirePermission(principal, domain.PermPayRemises); err != nil {
		return ComputeRemisesResponse{}, err
	}
	rate, err := s.resolveRate(req.Rate)
	if err != nil {
		return ComputeRemisesResponse{}, err
	}
	inf, err := s.influencers.GetByID(ctx, influencerID)
	if err != nil {
		return ComputeRemisesResponse{}, err
	}
	remise, err := s.computeFor(ctx, inf, rate)
	if err != nil {
		return ComputeRemisesResponse{}, err
	}
	if remise == nil {
		return ComputeRemisesResponse{Remises: []RemiseView{}, Message: computeNothingMessage}, nil
	}
	return ComputeRemisesResponse{
		Remises: []RemiseView{toRemiseView(*remise)},
		Message: fmt.Sprintf(computeCreatedMessage, 1),
	}, nil
}

// ComputeForAll runs the per-influencer computation for everyone holding
// eligible prospects. Influencers whose set was emptied concurrently are skipped.
func (s *Service) ComputeForAll(ctx context.Context, principal domain.Principal, req ComputeRemisesRequest, idempotencyKey string) (ComputeRemisesResponse, error) {
	if err := requirePermission(principal, domain.PermPayRemises); err != nil {
		return ComputeRemisesResponse{}, err
	}
	rate, err := s.resolveRate(req.Rate)
	if err != nil {
		return ComputeRemisesResponse{}, err
	}

	requestHash := hashRequest(struct {
		Op   string
		Rate string
	}{"compute_all", rate.StringFixed(2)})
	if cached, ok, err := s.getIdempotent(ctx, idempotencyKey, requestHash); err != nil {
		return ComputeRemisesResponse{}, err
	} else if ok {
		var out ComputeRemisesResponse
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	}
	if err := s.reserveIdempotency(ctx, idempotencyKey, requestHash); err != nil {
		return ComputeRemisesResponse{}, err
	}

	created, err := s.computeForEligible(ctx, rate)
	if err != nil {
		// Remises already created stay; a retry only covers what is still eligible.
		s.releaseIdempotency(ctx, idempotencyKey)
		return ComputeRemisesResponse{}, err
	}

	out := ComputeRemisesResponse{Remises: created, Message: computeNothingMessage}
	status := http.StatusOK
	if len(created) > 0 {
		out.Message = fmt.Sprintf(computeCreatedMessage, len(created))
		status = http.StatusCreated
	}
	s.completeIdempotencyJSON(ctx, idempotencyKey, status, out)
	appLogger().InfoContext(ctx, "automatic remises computed",
		"service", s.cfg.ServiceName,
		"operation", "compute_all_remises",
		"outcome", "success",
		"remises_created", len(created),
		"rate", rate.StringFixed(2),
	)
	return out, nil
}

func (s *Service) computeForEligible(ctx context.Context, rate decimal.Decimal) ([]RemiseView, error) {
	ids, err := s.prospects.InfluencersWithEligible(ctx)
	if err != nil {
		return nil, err
	}
	created := make([]RemiseView, 0, len(ids))
	for _, id := range ids {
		inf, err := s.influencers.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		remise, err := s.computeFor(ctx, inf, rate)
		if err != nil {
			return nil, err
		}
		if remise != nil {
			created = append(created, toRemiseView(*remise))
		}
	}
	return created, nil
}

func (s *Service) computeFor(ctx context.Context, inf domain.Influencer, rate decimal.Decimal) (*domain.Remise, error) {
	now := s.nowFn()
	build := func(count int) (domain.Remise, error) {
		return domain.NewComputedRemise(inf.ID, count, rate, s.cfg.CurrencyLabel, now)
	}
	event := func(r domain.Remise, prospectIDs []uuid.UUID) (ports.OutboxEvent, error) {
		return s.newOutboxEvent(domain.EventRemiseCreated, inf.ID.String(), s.remisePayload(inf, r, prospectIDs))
	}
	remise, prospectIDs, err := s.remises.CreateForEligibleTx(ctx, inf.ID, build, event)
	if err != nil {
		return nil, err
	}
	if remise == nil {
		return nil, nil
	}
	appLogger().InfoContext(ctx, "remise computed",
		"service", s.cfg.ServiceName,
		"operation", "compute_remise",
		"outcome", "success",
		"remise_id", remise.ID.String(),
		"influencer_id", inf.ID.String(),
		"prospects", len(prospectIDs),
		"montant", formatAmount(remise.Amount),
	)
	return remise, nil
}

func (s *Service) remisePayload(inf domain.Influencer, r domain.Remise, prospectIDs []uuid.UUID) domain.RemiseEventPayload {
	ids := make([]string, 0, len(prospectIDs))
	for _, id := range prospectIDs {
		ids = append(ids, id.String())
	}
	occurred := r.CreatedAt
	if r.PaidAt != nil {
		occurred = *r.PaidAt
	}
	return domain.RemiseEventPayload{
		RemiseID:        r.ID.String(),
		InfluencerID:    inf.ID.String(),
		InfluencerName:  inf.Name,
		InfluencerEmail: inf.Email,
		Amount:          formatAmount(r.Amount),
		Currency:        s.cfg.CurrencyLabel,
		Description:     r.Description,
		ProspectIDs:     ids,
		Status:          string(r.Status),
		OccurredAt:      occurred.Format(time.RFC3339),
	}
}

// CreateRemise records a manual remise with no linked prospects.
func (s *Service) CreateRemise(ctx context.Context, principal domain.Principal, req CreateRemiseRequest) (RemiseView, error) {
	if err := requirePermission(principal, domain.PermPayRemises); err != nil {
		return RemiseView{}, err
	}
	if err := validateRequest(req); err != nil {
		return RemiseView{}, err
	}
	if req.InfluencerID == uuid.Nil {
		return RemiseView{}, fmt.Errorf("%w: influenceur_id is required", domain.ErrInvalidInput)
	}
	inf, err := s.influencers.GetByID(ctx, req.InfluencerID)
	if err != nil {
		return RemiseView{}, err
	}
	remise, err := domain.NewManualRemise(inf.ID, req.Amount, req.Description, s.nowFn())
	if err != nil {
		return RemiseView{}, err
	}
	event, err := s.newOutboxEvent(domain.EventRemiseCreated, inf.ID.String(), s.remisePayload(inf, remise, nil))
	if err != nil {
		return RemiseView{}, err
	}
	created, err := s.remises.CreateWithOutboxTx(ctx, remise, event)
	if err != nil {
		return RemiseView{}, err
	}
	appLogger().InfoContext(ctx, "manual remise created",
		"service", s.cfg.ServiceName,
		"operation", "create_remise",
		"outcome", "success",
		"remise_id", created.ID.String(),
		"influencer_id", inf.ID.String(),
		"actor_id", principal.SubjectID().String(),
	)
	return toRemiseView(created), nil
}

func (s *Service) ListRemises(ctx context.Context, principal domain.Principal, q RemiseQuery) ([]RemiseView, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	filter := ports.RemiseFilter{
		InfluencerID: scopeToPrincipal(principal, domain.PermPayRemises, q.InfluencerID),
		Limit:        clampLimit(q.Limit),
		Offset:       max(q.Offset, 0),
	}
	if strings.TrimSpace(q.Status) != "" {
		status, ok := domain.ParseRemiseStatus(q.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown statut %q", domain.ErrInvalidInput, q.Status)
		}
		filter.Status = &status
	}
	items, err := s.remises.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]RemiseView, 0, len(items))
	for _, r := range items {
		out = append(out, toRemiseView(r))
	}
	return out, nil
}

func (s *Service) GetRemise(ctx context.Context, principal domain.Principal, id uuid.UUID) (RemiseView, error) {
	if err := requirePrincipal(principal); err != nil {
		return RemiseView{}, err
	}
	r, err := s.remises.GetByID(ctx, id)
	if err != nil {
		return RemiseView{}, err
	}
	if !principal.Has(domain.PermPayRemises) && r.InfluencerID != principal.SubjectID() {
		return RemiseView{}, domain.ErrNotFound
	}
	return toRemiseView(r), nil
}

// MarkPaid settles a pending remise, storing receipt when one is given.
// The receipt is written before the transaction and removed if it fails.
func (s *Service) MarkPaid(ctx context.Context, principal domain.Principal, id uuid.UUID, receipt *Receipt) (RemiseView, error) {
	if err := requirePermission(principal, domain.PermPayRemises); err != nil {
		return RemiseView{}, err
	}
	if err := s.checkReceipt(receipt); err != nil {
		return RemiseView{}, err
	}
	current, err := s.remises.GetByID(ctx, id)
	if err != nil {
		return RemiseView{}, err
	}
	if current.Status == domain.RemisePaid {
		return RemiseView{}, domain.ErrAlreadyPaid
	}
	inf, err := s.influencers.GetByID(ctx, current.InfluencerID)
	if err != nil {
		return RemiseView{}, err
	}

	var receiptPath *string
	if receipt != nil {
		if s.receipts == nil {
			return RemiseView{}, errors.New("receipt storage is not configured")
		}
		stored, err := s.receipts.Save(ctx, receipt.Filename, receipt.Content)
		if err != nil {
			return RemiseView{}, fmt.Errorf("store receipt: %w", err)
		}
		receiptPath = &stored
	}

	now := s.nowFn()
	paid := current
	paid.Status = domain.RemisePaid
	paid.PaidAt = &now
	if receiptPath != nil {
		paid.ReceiptPath = receiptPath
	}
	event, err := s.newOutboxEvent(domain.EventRemisePaid, inf.ID.String(), s.remisePayload(inf, paid, nil))
	if err != nil {
		s.discardReceipt(ctx, receiptPath)
		return RemiseView{}, err
	}

	updated, err := s.remises.MarkPaidWithOutboxTx(ctx, id, now, receiptPath, event)
	if err != nil {
		s.discardReceipt(ctx, receiptPath)
		return RemiseView{}, err
	}
	appLogger().InfoContext(ctx, "remise paid",
		"service", s.cfg.ServiceName,
		"operation", "mark_remise_paid",
		"outcome", "success",
		"remise_id", id.String(),
		"influencer_id", inf.ID.String(),
		"with_receipt", receiptPath != nil,
	)
	return toRemiseView(updated), nil
}

func (s *Service) checkReceipt(receipt *Receipt) error {
	if receipt == nil {
		return nil
	}
	if receipt.Content == nil || strings.TrimSpace(receipt.Filename) == "" {
		return fmt.Errorf("%w: justificatif is empty", domain.ErrInvalidInput)
	}
	if receipt.Size > s.cfg.MaxReceiptBytes {
		return fmt.Errorf("%w: justificatif must be at most %d bytes", domain.ErrInvalidInput, s.cfg.MaxReceiptBytes)
	}
	ext := strings.ToLower(filepath.Ext(receipt.Filename))
	if _, ok := allowedReceiptExtensions[ext]; !ok {
		return fmt.Errorf("%w: justificatif must be an image or a pdf", domain.ErrInvalidInput)
	}
	return nil
}

func (s *Service) discardReceipt(ctx context.Context, path *string) {
	if path == nil || s.receipts == nil {
		return
	}
	if err := s.receipts.Delete(ctx, *path); err != nil {
		appLogger().WarnContext(ctx, "failed to remove orphan receipt",
			"service", s.cfg.ServiceName,
			"operation", "mark_remise_paid",
			"outcome", "warning",
			"path", *path,
			"error", err,
		)
	}
}

func (s *Service) RemiseStatistics(ctx context.Context, principal domain.Principal) (RemiseStatistics, error) {
	if err := requirePrincipal(principal); err != nil {
		return RemiseStatistics{}, err
	}
	totals, err := s.remises.Totals(ctx, scopeToPrincipal(principal, domain.PermPayRemises, nil))
	if err != nil {
		return RemiseStatistics{}, err
	}
	return RemiseStatistics{
		Total:         totals.Count(),
		Pending:       totals.PendingCount,
		Paid:          totals.PaidCount,
		TotalAmount:   formatAmount(totals.Amount()),
		PendingAmount: formatAmount(totals.PendingAmount),
		PaidAmount:    formatAmount(totals.PaidAmount),
	}, nil
}
