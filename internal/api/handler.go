package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"user_consent_gate/internal/consent"
	"user_consent_gate/internal/service"
	"user_consent_gate/types"
)

type Handler struct {
	confirmationService service.ConfirmationService
	logger              *zap.Logger
}

func NewHandler(confirmationService service.ConfirmationService, logger *zap.Logger) *Handler {
	return &Handler{
		confirmationService: confirmationService,
		logger:              logger,
	}
}

// Confirm handles POST /user-consent/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if !h.confirmationService.Settings().Enabled {
		writeError(w, consent.ErrFeatureDisabled)
		return
	}

	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, consent.ErrNotAuthenticated)
		return
	}

	confirmedAt, err := h.confirmationService.Confirm(r.Context(), session.UserID, clientIP(r))
	if err != nil {
		h.logger.Error("failed to confirm user consent", zap.Error(err), zap.String("user_id", session.UserID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.ConfirmResponse{Success: "OK", ConfirmedAt: confirmedAt})
}

// CurrentUser handles GET /session/current.json.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, consent.ErrNotAuthenticated)
		return
	}

	user, err := h.confirmationService.CurrentUser(r.Context(), session.UserID, session.Admin)
	if err != nil {
		h.logger.Error("failed to load current user", zap.Error(err), zap.String("user_id", session.UserID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"current_user": user})
}

// Settings handles GET /user-consent/settings.json.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.confirmationService.Settings())
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consent.ErrFeatureDisabled):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid_access"})
	case errors.Is(err, consent.ErrNotAuthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not_logged_in"})
	case errors.Is(err, consent.ErrPersistenceUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence_unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
