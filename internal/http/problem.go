package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/blog-ueditor/export-api/internal/errors"
)

// Problem is an RFC 7807 error body, the wire format the editor frontend
// already consumes.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Field  string `json:"field,omitempty"`
}

// WriteProblem renders an RFC 7807 problem response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	writeJSONBody(w, p.Status, "application/problem+json", p)
}

// RenderError maps an application error to its problem response. Unknown
// errors render as 500 without leaking internals.
func RenderError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Client went away, nothing useful to write.
			return
		}
		logger.Error("unhandled error", "error", err)
		WriteProblem(w, Problem{Status: http.StatusInternalServerError, Detail: "internal server error"})
		return
	}

	status := statusForCode(appErr.Code)
	if status == http.StatusInternalServerError {
		logger.Error("internal error", "error", err)
		WriteProblem(w, Problem{Status: status, Detail: "internal server error"})
		return
	}
	WriteProblem(w, Problem{
		Status: status,
		Detail: appErr.Message,
		Field:  appErr.Field,
	})
}

func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeGone:
		return http.StatusGone
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
