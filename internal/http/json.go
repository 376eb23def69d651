package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/brokerhaus/portal-api/internal/errors"
)

// ErrorBody is the wire shape of a failed action.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Envelope is the normalized response shape for every /auth action:
// success with data, or failure with a client-safe error.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteJSON(w, http.StatusBadRequest, Envelope{
			Success: false,
			Error:   &ErrorBody{Message: "Invalid request body", Code: string(apperrors.ErrCodeValidation)},
		})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// WriteSuccess writes a success envelope with optional payload.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// WriteFailure writes a failure envelope for err. The message and code
// come from the error classification; raw causes never reach the client.
func WriteFailure(w http.ResponseWriter, err error) {
	WriteJSON(w, StatusForError(err), Envelope{
		Success: false,
		Error: &ErrorBody{
			Message: apperrors.ClientMessage(err),
			Code:    string(apperrors.GetCode(err)),
		},
	})
}

// StatusForError maps an error classification to an HTTP status code.
func StatusForError(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeInvalidCredentials, apperrors.ErrCodeInvalidSession:
		return http.StatusUnauthorized
	case apperrors.ErrCodeUnauthorized,
		apperrors.ErrCodeEmailNotVerified,
		apperrors.ErrCodeUserDisabled,
		apperrors.ErrCodeUserBlocked,
		apperrors.ErrCodeUserDeleted:
		return http.StatusForbidden
	case apperrors.ErrCodeUserNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeUserExists, apperrors.ErrCodeSessionConflict:
		return http.StatusConflict
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
