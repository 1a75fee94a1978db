package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes. Anything unrecognised is
// an internal error and its message is not echoed to the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, models.ErrInvalidSession):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrAlreadyPaid),
		errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusPaymentRequired, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}
