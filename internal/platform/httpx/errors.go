// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RespondError maps classified domain errors to HTTP responses using RFC7807.
// The core only exposes error kinds; choosing a status code happens here.
func RespondError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
		return
	}
	kind := shared.KindOf(err)
	switch kind {
	case shared.KindNotFound:
		problemWithKind(w, http.StatusNotFound, "Not Found", err.Error(), kind)
	case shared.KindInvalidTransition:
		problemWithKind(w, http.StatusConflict, "Invalid Status Transition", err.Error(), kind)
	case shared.KindInsufficientStock:
		problemWithKind(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error(), kind)
	case shared.KindProductMismatch:
		problemWithKind(w, http.StatusUnprocessableEntity, "Product Mismatch", err.Error(), kind)
	case shared.KindValidation:
		problemWithKind(w, http.StatusBadRequest, "Validation Failed", err.Error(), kind)
	case shared.KindForbidden:
		problemWithKind(w, http.StatusForbidden, "Forbidden", err.Error(), kind)
	case shared.KindConcurrencyConflict:
		problemWithKind(w, http.StatusConflict, "Conflict", err.Error(), kind)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func problemWithKind(w http.ResponseWriter, status int, title, detail string, kind shared.ErrorKind) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
		Kind:   string(kind),
	})
}
