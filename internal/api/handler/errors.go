package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/sentineleye/internal/api/response"
	"github.com/kiranshivaraju/sentineleye/internal/jobs"
	"github.com/kiranshivaraju/sentineleye/internal/remote"
)

// writeError maps core and remote errors onto the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		subErr  *jobs.SubmissionError
		httpErr *remote.HTTPError
	)

	switch {
	case errors.Is(err, jobs.ErrInvalidRequest):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.As(err, &subErr):
		response.Error(w, http.StatusBadGateway, "SUBMISSION_REJECTED",
			"The analysis service rejected the job", map[string]any{
				"status_code": subErr.StatusCode,
				"payload":     subErr.Payload,
			})
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Not found on the analysis service", nil)
	case errors.Is(err, remote.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "REMOTE_TIMEOUT",
			"The analysis service took too long to respond", nil)
	case errors.Is(err, remote.ErrUnreachable), errors.Is(err, remote.ErrRejected), errors.Is(err, remote.ErrDecode):
		response.Error(w, http.StatusBadGateway, "REMOTE_UNAVAILABLE",
			"The analysis service is not available", nil)
	default:
		slog.ErrorContext(r.Context(), "request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
