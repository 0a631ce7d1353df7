package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tinoosan/loanledger/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// toJSON writes a JSON response with status code.
func toJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, "bad_request")
}

// writeServiceErr maps service errors onto status codes.
func (s *Server) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve):
		toJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Code: "validation_error", Field: ve.Field})
	case errors.Is(err, errs.ErrInvalid):
		writeErr(w, http.StatusBadRequest, err.Error(), "validation_error")
	case errors.Is(err, errs.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, errs.ErrInsufficientFunds):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), "insufficient_funds")
	case errors.Is(err, errs.ErrInvalidState):
		writeErr(w, http.StatusConflict, err.Error(), "invalid_state")
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), "conflict")
	default:
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
		writeErr(w, http.StatusInternalServerError, "internal_error", "internal_error")
	}
}
