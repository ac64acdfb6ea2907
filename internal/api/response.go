package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/finledger/ledger-api/internal/lib/logger/sl"
	"github.com/finledger/ledger-api/internal/lib/validation"
	"github.com/finledger/ledger-api/internal/services/account"
	"github.com/finledger/ledger-api/internal/services/ledger"
)

const msgNotFound = "Not found."

// Envelope wraps every successful response.
type Envelope struct {
	Message  string `json:"message"`
	Status   int    `json:"status"`
	Response any    `json:"response,omitempty"`
}

func (s *APIServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", slog.Int("status", code), sl.Err(err))
	}
}

func (s *APIServer) writeEnvelope(w http.ResponseWriter, code int, message string, response any) {
	s.writeJSON(w, code, Envelope{Message: message, Status: code, Response: response})
}

func (s *APIServer) writeDetail(w http.ResponseWriter, code int, detail string) {
	s.writeJSON(w, code, map[string]string{"detail": detail})
}

// writeError maps service errors onto status codes. Foreign and missing
// transactions produce the same 404 body.
func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var errs validation.Errors

	switch {
	case errors.As(err, &errs):
		s.writeJSON(w, http.StatusBadRequest, errs)
	case errors.Is(err, account.ErrUserNotFound):
		s.writeJSON(w, http.StatusBadRequest, validation.Errors{validation.NonFieldErrors: {"User not found"}})
	case errors.Is(err, account.ErrIncorrectPassword):
		s.writeJSON(w, http.StatusBadRequest, validation.Errors{validation.NonFieldErrors: {"Incorrect password"}})
	case errors.Is(err, account.ErrBadToken):
		s.writeDetail(w, http.StatusBadRequest, "bad token")
	case errors.Is(err, account.ErrInvalidToken):
		s.writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
	case errors.Is(err, account.ErrTokenRevoked):
		s.writeDetail(w, http.StatusUnauthorized, "Token is blacklisted")
	case errors.Is(err, account.ErrUnknownUser):
		s.writeDetail(w, http.StatusUnauthorized, "User not found")
	case errors.Is(err, ledger.ErrTransactionNotFound):
		s.writeDetail(w, http.StatusNotFound, msgNotFound)
	default:
		s.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			sl.Err(err),
		)
		s.writeDetail(w, http.StatusInternalServerError, "internal server error")
	}
}

// decode reads a JSON body into v. Parse failures are reported the way field
// errors are, under non_field_errors.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return validation.Errors{validation.NonFieldErrors: {"JSON parse error - " + err.Error()}}
	}
	return nil
}
