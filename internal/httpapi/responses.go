package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ro11032005/mediaingest/internal/upload"
)

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorEnvelope is the JSON error shape every failed request returns:
// {success:false, error:"<one-line>", errors?:[<detail>, ...]}.
type errorEnvelope struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Errors  []string `json:"errors,omitempty"`
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusForError(err)

	var ve *upload.ValidationError
	if errors.As(err, &ve) {
		respondJSON(w, status, errorEnvelope{Error: "invalid argument", Errors: ve.Details})
		return
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	respondJSON(w, status, errorEnvelope{Error: err.Error()})
}

// statusForError maps the upload error taxonomy to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, upload.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, upload.ErrConflict),
		errors.Is(err, upload.ErrFailedPrecondition),
		errors.Is(err, upload.ErrInvalidArgument),
		errors.Is(err, upload.ErrIntegrity),
		errors.Is(err, upload.ErrInvalidContent),
		errors.Is(err, upload.ErrDataLoss):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
