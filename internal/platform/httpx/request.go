package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// IDParam parses a positive integer URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidation(name, "must be a positive integer")
	}
	return id, nil
}

// QueryInt64 parses an optional integer query parameter, returning 0 when
// absent.
func QueryInt64(r *http.Request, name string) int64 {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// QueryInt parses an optional integer query parameter, returning 0 when
// absent.
func QueryInt(r *http.Request, name string) int {
	return int(QueryInt64(r, name))
}

// RequireActor extracts the authenticated actor, responding 401 when the
// request carries none.
func RequireActor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		Problem(w, http.StatusUnauthorized, "Unauthorized", "request carries no actor context")
	}
	return actor, ok
}
