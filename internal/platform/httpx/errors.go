// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/sitekart/sitekart/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	kind, ok := shared.KindOf(err)
	if !ok {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	p := ProblemDetail{Code: shared.CodeOf(err), Detail: err.Error()}
	var fe *shared.FieldError
	if errors.As(err, &fe) {
		p.Field = fe.Field
	}
	switch kind {
	case shared.KindValidation:
		p.Status, p.Title = http.StatusUnprocessableEntity, "Validation Failed"
	case shared.KindState:
		p.Status, p.Title = http.StatusConflict, "Conflict"
	case shared.KindConcurrency:
		p.Status, p.Title = http.StatusConflict, "Concurrent Modification"
		p.Retryable = true
	case shared.KindNotFound:
		p.Status, p.Title = http.StatusNotFound, "Not Found"
	case shared.KindForbidden:
		p.Status, p.Title = http.StatusForbidden, "Forbidden"
	default:
		// integrity failures are bugs; the detail stays in the logs
		p = ProblemDetail{Status: http.StatusInternalServerError, Title: "Internal Error", Code: p.Code}
	}
	JSON(w, p.Status, p)
}
