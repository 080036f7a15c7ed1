package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/comparo/internal/adapters/mq/queue"
	"github.com/okian/comparo/internal/adapters/subject"
	"github.com/okian/comparo/internal/domain/dedupe"
	"github.com/okian/comparo/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrPrecondition    = errors.New("precondition required")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Wrap prefixes err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WrapKind tags err with kind so that errors.Is matches both.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// NewKind returns kind prefixed with op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

type errorResponse struct {
	Code    string                   `json:"code"`
	Message string                   `json:"message"`
	Details []*model.ValidationError `json:"details,omitempty"`
}

// classify maps an error kind to its status and stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidFilter):
		return http.StatusBadRequest, "invalid_filter"
	case errors.Is(err, model.ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, dedupe.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, ErrPrecondition):
		return http.StatusPreconditionRequired, "precondition_required"
	case errors.Is(err, model.ErrNoComparablesFound):
		return http.StatusUnprocessableEntity, "no_comparables"
	case errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, subject.ErrResolverDisabled):
		return http.StatusNotImplemented, "subject_lookup_disabled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// violations lists the validation failures carried by err.
func violations(err error) []*model.ValidationError {
	var many model.ValidationErrors
	if errors.As(err, &many) {
		return many
	}
	var one *model.ValidationError
	if errors.As(err, &one) {
		return []*model.ValidationError{one}
	}
	return nil
}
