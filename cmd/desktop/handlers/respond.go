// Package handlers provides the REST handlers of the local bridge.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an error code onto an HTTP status.
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrNoSession, apperrors.ErrSessionExpired:
		return http.StatusUnauthorized
	case apperrors.ErrSyncInProgress:
		return http.StatusConflict
	case apperrors.ErrOffline, apperrors.ErrNetwork, apperrors.ErrThrottled:
		return http.StatusServiceUnavailable
	case apperrors.ErrRemoteRejected, apperrors.ErrMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func codeOf(err error) apperrors.ErrorCode {
	return apperrors.CodeOf(err)
}

func writeError(w http.ResponseWriter, err error) {
	code := codeOf(err)
	writeJSON(w, statusFor(code), errorBody{Code: string(code), Message: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:    string(apperrors.ErrValidation),
			Message: "Invalid request body",
		})
		return false
	}
	return true
}
