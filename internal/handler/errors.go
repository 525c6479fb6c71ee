package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/domain/member"
	"github.com/xenking/shop/internal/domain/order"
)

// requestError carries an explicit status for problems with the request
// itself.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{status: http.StatusBadRequest, err: err}
}

func unprocessable(err error) error {
	return &requestError{status: http.StatusUnprocessableEntity, err: err}
}

// mapError converts domain errors to an HTTP status and client message.
// Anything unrecognised is an internal error and its details stay in the log.
func mapError(err error) (int, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.status, reqErr.Error()
	}

	var iqErr *order.InvalidQuantityError
	switch {
	case errors.Is(err, member.ErrNotFound),
		errors.Is(err, item.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, member.ErrDuplicateMember),
		errors.Is(err, item.ErrInsufficientStock),
		errors.Is(err, order.ErrAlreadyDelivered),
		errors.Is(err, order.ErrAlreadyCancelled),
		errors.Is(err, order.ErrInvalidDeliveryTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, order.ErrEmptyItems):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &iqErr),
		errors.Is(err, member.ErrEmptyName),
		errors.Is(err, item.ErrInvalidItem),
		errors.Is(err, item.ErrInvalidQuantity),
		errors.Is(err, item.ErrStockLimit):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapError(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, status, message)
}
