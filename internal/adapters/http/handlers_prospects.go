package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/application"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
)

func (h *Handler) affiliationForm(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.AffiliationForm(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeMappedError(r.Context(), w, "affiliation_form", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) submitProspect(w http.ResponseWriter, r *http.Request) {
	var req application.ProspectRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "submit_prospect", err)
		return
	}
	res, err := h.service.SubmitProspect(
		r.Context(),
		chi.URLParam(r, "code"),
		req,
		readIP(r),
		strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	)
	if err != nil {
		writeMappedError(r.Context(), w, "submit_prospect", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func prospectQuery(r *http.Request) (application.ProspectQuery, error) {
	q := r.URL.Query()
	influencerID, err := parseOptionalUUID(q.Get("influenceur_id"))
	if err != nil {
		return application.ProspectQuery{}, err
	}
	return application.ProspectQuery{
		InfluencerID: influencerID,
		Status:       q.Get("statut"),
		Limit:        parseIntDefault(q.Get("limit"), 0),
		Offset:       parseIntDefault(q.Get("offset"), 0),
	}, nil
}

func (h *Handler) listProspects(w http.ResponseWriter, r *http.Request) {
	q, err := prospectQuery(r)
	if err != nil {
		writeMappedError(r.Context(), w, "list_prospects", err)
		return
	}
	res, err := h.service.ListProspects(r.Context(), principalFromContext(r.Context()), q)
	if err != nil {
		writeMappedError(r.Context(), w, "list_prospects", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listProspectsWithoutRemise(w http.ResponseWriter, r *http.Request) {
	q, err := prospectQuery(r)
	if err != nil {
		writeMappedError(r.Context(), w, "list_prospects_without_remise", err)
		return
	}
	res, err := h.service.ListProspectsWithoutRemise(r.Context(), principalFromContext(r.Context()), q)
	if err != nil {
		writeMappedError(r.Context(), w, "list_prospects_without_remise", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) createProspect(w http.ResponseWriter, r *http.Request) {
	var req application.CreateProspectRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "create_prospect", err)
		return
	}
	res, err := h.service.CreateProspect(r.Context(), principalFromContext(r.Context()), req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_prospect", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) getProspect(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeMappedError(r.Context(), w, "get_prospect", err)
		return
	}
	res, err := h.service.GetProspect(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		writeMappedError(r.Context(), w, "get_prospect", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) validateProspect(w http.ResponseWriter, r *http.Request) {
	h.transitionProspect(w, r, "validate_prospect", "Prospect validé avec succès", h.service.ValidateProspect)
}

func (h *Handler) rejectProspect(w http.ResponseWriter, r *http.Request) {
	h.transitionProspect(w, r, "reject_prospect", "Prospect rejeté", h.service.RejectProspect)
}

func (h *Handler) transitionProspect(
	w http.ResponseWriter,
	r *http.Request,
	operation, message string,
	apply func(ctx context.Context, principal domain.Principal, id uuid.UUID) (application.ProspectView, error),
) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeMappedError(r.Context(), w, operation, err)
		return
	}
	res, err := apply(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		writeMappedError(r.Context(), w, operation, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": message,
		"data":    res,
	})
}

func (h *Handler) prospectStatistics(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ProspectStatistics(r.Context(), principalFromContext(r.Context()))
	if err != nil {
		writeMappedError(r.Context(), w, "prospect_statistics", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
