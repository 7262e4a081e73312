package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/linksaver/linksaver/internal/apperror"
)

// Response is the envelope every API endpoint answers with.
type Response struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    any                 `json:"data,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func respondSuccess(w http.ResponseWriter, status int, message string, data any) {
	respondJSON(w, status, Response{Success: true, Message: message, Data: data})
}

// respondError maps domain errors to HTTP statuses. Unclassified errors
// become a generic 500 so internals never leak to the client.
func respondError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		resp := Response{Success: false, Message: appErr.Message}
		if appErr.Field != "" {
			resp.Errors = map[string][]string{appErr.Field: {appErr.Message}}
		}
		respondJSON(w, statusFor(err), resp)
		return
	}

	log.Printf("Internal error: %v", err)
	respondJSON(w, http.StatusInternalServerError, Response{
		Success: false,
		Message: "Internal server error",
	})
}

func respondValidationErrors(w http.ResponseWriter, errs map[string][]string) {
	respondJSON(w, http.StatusBadRequest, Response{
		Success: false,
		Message: "Validation failed",
		Errors:  errs,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
