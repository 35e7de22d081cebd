package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/iconidentify/aliaff/internal/domain"
)

// maxBodyBytes bounds request bodies; embedded images arrive as data URIs.
const maxBodyBytes = 20 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	var deliveryErr *domain.DeliveryError
	switch {
	case errors.Is(err, domain.ErrPostNotFound), errors.Is(err, domain.ErrSavedPostNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrProductIDNotFound),
		errors.Is(err, domain.ErrMissingCookie),
		errors.Is(err, domain.ErrMissingBotToken),
		errors.Is(err, domain.ErrNoChannels),
		errors.Is(err, domain.ErrInvalidImage),
		errors.Is(err, domain.ErrScheduledTimeRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAssistantUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.As(err, &deliveryErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
