package http

import (
	"net/http"

	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/application"
)

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "admin_login", err)
		return
	}
	res, err := h.service.AdminLogin(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "admin_login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) influencerLogin(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "influencer_login", err)
		return
	}
	res, err := h.service.InfluencerLogin(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "influencer_login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req application.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "register", err)
		return
	}
	res, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "register", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req application.RefreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "refresh", err)
		return
	}
	res, err := h.service.Refresh(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "refresh", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req application.RefreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "logout", err)
		return
	}
	if err := h.service.Logout(r.Context(), req); err != nil {
		writeMappedError(r.Context(), w, "logout", err)
		return
	}
	writeMessage(w, http.StatusOK, "Déconnexion réussie")
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Profile(r.Context(), principalFromContext(r.Context()))
	if err != nil {
		writeMappedError(r.Context(), w, "profile", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req application.ChangePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "change_password", err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), principalFromContext(r.Context()), req); err != nil {
		writeMappedError(r.Context(), w, "change_password", err)
		return
	}
	writeMessage(w, http.StatusOK, "Mot de passe modifié avec succès")
}
