package http

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/application"
)

const (
	receiptField       = "justificatif"
	maxMultipartMemory = 8 << 20
)

func (h *Handler) listRemises(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	influencerID, err := parseOptionalUUID(q.Get("influenceur_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "list_remises", err)
		return
	}
	res, err := h.service.ListRemises(r.Context(), principalFromContext(r.Context()), application.RemiseQuery{
		InfluencerID: influencerID,
		Status:       q.Get("statut"),
		Limit:        parseIntDefault(q.Get("limit"), 0),
		Offset:       parseIntDefault(q.Get("offset"), 0),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "list_remises", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) createRemise(w http.ResponseWriter, r *http.Request) {
	var req application.CreateRemiseRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "create_remise", err)
		return
	}
	res, err := h.service.CreateRemise(r.Context(), principalFromContext(r.Context()), req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_remise", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) getRemise(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeMappedError(r.Context(), w, "get_remise", err)
		return
	}
	res, err := h.service.GetRemise(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		writeMappedError(r.Context(), w, "get_remise", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

// markRemisePaid accepts an optional receipt as the multipart file field
// "justificatif". Any other content type settles without a receipt.
func (h *Handler) markRemisePaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeMappedError(r.Context(), w, "mark_remise_paid", err)
		return
	}

	var receipt *application.Receipt
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			writeValidationError(r.Context(), w, "mark_remise_paid", fmt.Errorf("invalid multipart body: %w", err))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()
		file, header, err := r.FormFile(receiptField)
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeValidationError(r.Context(), w, "mark_remise_paid", err)
			return
		default:
			defer file.Close()
			receipt = &application.Receipt{
				Filename: header.Filename,
				Size:     header.Size,
				Content:  file,
			}
		}
	}

	res, err := h.service.MarkPaid(r.Context(), principalFromContext(r.Context()), id, receipt)
	if err != nil {
		writeMappedError(r.Context(), w, "mark_remise_paid", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Remise marquée comme payée",
		"data":    res,
	})
}

func (h *Handler) computeRemisesFor(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeMappedError(r.Context(), w, "compute_remises", err)
		return
	}
	var req application.ComputeRemisesRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "compute_remises", err)
		return
	}
	res, err := h.service.ComputeFor(r.Context(), principalFromContext(r.Context()), id, req)
	if err != nil {
		writeMappedError(r.Context(), w, "compute_remises", err)
		return
	}
	writeComputeResult(w, res)
}

func (h *Handler) computeRemisesForAll(w http.ResponseWriter, r *http.Request) {
	var req application.ComputeRemisesRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "compute_remises_all", err)
		return
	}
	res, err := h.service.ComputeForAll(
		r.Context(),
		principalFromContext(r.Context()),
		req,
		strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	)
	if err != nil {
		writeMappedError(r.Context(), w, "compute_remises_all", err)
		return
	}
	writeComputeResult(w, res)
}

func writeComputeResult(w http.ResponseWriter, res application.ComputeRemisesResponse) {
	status := http.StatusOK
	if len(res.Remises) > 0 {
		status = http.StatusCreated
	}
	writeSuccess(w, status, res)
}

func (h *Handler) remiseStatistics(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RemiseStatistics(r.Context(), principalFromContext(r.Context()))
	if err != nil {
		writeMappedError(r.Context(), w, "remise_statistics", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
