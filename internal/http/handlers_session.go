package httpx

import (
	"errors"
	"net/http"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
	"github.com/brokerhaus/portal-api/internal/service"
)

// SessionHandlers serves the internal session validation endpoint used by
// edge proxies and sibling services.
type SessionHandlers struct {
	Validate *service.SessionService
}

type validateSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type validateSessionData struct {
	Roles    domainauth.RoleClaims `json:"roles"`
	UserID   string                `json:"userId"`
	IsOnline bool                  `json:"isOnline"`
}

type validateSessionResponse struct {
	Valid bool                 `json:"valid"`
	Data  *validateSessionData `json:"data,omitempty"`
	Error *ErrorBody           `json:"error,omitempty"`
}

// ValidateSession handles POST /internal/session/validate. An invalid
// session is a negative result, not an HTTP error; only infrastructure
// failures produce a non-200 status.
func (h *SessionHandlers) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req validateSessionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	liveness, err := h.Validate.ValidateToken(r.Context(), req.SessionID)
	if err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) || appErr.Code == apperrors.ErrCodeInternal {
			WriteJSON(w, http.StatusInternalServerError, validateSessionResponse{
				Valid: false,
				Error: &ErrorBody{Message: "Internal error", Code: string(apperrors.ErrCodeInternal)},
			})
			return
		}
		WriteJSON(w, http.StatusOK, validateSessionResponse{
			Valid: false,
			Error: &ErrorBody{
				Message: apperrors.ClientMessage(err),
				Code:    string(apperrors.GetCode(err)),
			},
		})
		return
	}

	WriteJSON(w, http.StatusOK, validateSessionResponse{
		Valid: true,
		Data: &validateSessionData{
			Roles:    liveness.Roles,
			UserID:   liveness.UserID,
			IsOnline: liveness.IsOnline,
		},
	})
}
