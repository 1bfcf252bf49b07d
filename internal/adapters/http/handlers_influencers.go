package http

import (
	"net/http"

	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/application"
)

func (h *Handler) listInfluencers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.service.ListInfluencers(r.Context(), principalFromContext(r.Context()), application.InfluencerQuery{
		Role:   q.Get("role"),
		Active: parseOptionalBool(q.Get("is_active")),
		Limit:  parseIntDefault(q.Get("limit"), 0),
		Offset: parseIntDefault(q.Get("offset"), 0),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "list_influencers", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) createInfluencer(w http.ResponseWriter, r *http.Request) {
	var req application.CreateInfluencerRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "create_influencer", err)
		return
	}
	res, err := h.service.CreateInfluencer(r.Context(), principalFromContext(r.Context()), req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_influencer", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) getInfluencer(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeMappedError(r.Context(), w, "get_influencer", err)
		return
	}
	res, err := h.service.GetInfluencer(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		writeMappedError(r.Context(), w, "get_influencer", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

// updateInfluencer serves both PUT and PATCH; absent fields are left unchanged.
func (h *Handler) updateInfluencer(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeMappedError(r.Context(), w, "update_influencer", err)
		return
	}
	var req application.UpdateInfluencerRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "update_influencer", err)
		return
	}
	res, err := h.service.UpdateInfluencer(r.Context(), principalFromContext(r.Context()), id, req)
	if err != nil {
		writeMappedError(r.Context(), w, "update_influencer", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) deleteInfluencer(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeMappedError(r.Context(), w, "delete_influencer", err)
		return
	}
	if err := h.service.DeleteInfluencer(r.Context(), principalFromContext(r.Context()), id); err != nil {
		writeMappedError(r.Context(), w, "delete_influencer", err)
		return
	}
	writeMessage(w, http.StatusOK, "Influenceur supprimé avec succès")
}

func (h *Handler) influencerDashboard(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeMappedError(r.Context(), w, "influencer_dashboard", err)
		return
	}
	res, err := h.service.InfluencerDashboard(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		writeMappedError(r.Context(), w, "influencer_dashboard", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) globalDashboard(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GlobalDashboard(r.Context(), principalFromContext(r.Context()))
	if err != nil {
		writeMappedError(r.Context(), w, "global_dashboard", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
