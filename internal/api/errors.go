package api

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/procure/internal/database"
)

// ErrDuplicate marks a unique key conflict.
var ErrDuplicate = errors.New("duplicate")

func duplicate(what string, value string) error {
	return errors.Mark(errors.Newf("duplicate %s: %s", what, value), ErrDuplicate)
}

// fail maps err to a status code and writes the failure response.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		sendError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrDuplicate):
		sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrClosed):
		sendError(w, http.StatusServiceUnavailable, "database is closed")
	case database.IsCheckViolation(err):
		sendError(w, http.StatusBadRequest, database.ErrorMessage(err))
	case database.IsRaisedException(err):
		// raised by a trigger, the insert is rejected and nothing is committed
		sendError(w, http.StatusUnprocessableEntity, database.ErrorMessage(err))
	default:
		a.logger.Error("%s %s (%s): %s", r.Method, r.URL.Path, RequestID(r.Context()), err)
		sendError(w, http.StatusInternalServerError, "database error: "+database.ErrorMessage(err))
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Field: "id", Message: "invalid id"}
	}
	return id, nil
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

func limit(r *http.Request) (int, error) {
	val := r.URL.Query().Get("limit")
	if val == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, &ValidationError{Field: "limit", Message: "must be a positive integer"}
	}
	if n > MaxLimit {
		n = MaxLimit
	}
	return n, nil
}
