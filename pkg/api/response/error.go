package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/offerforge/offerforge/pkg/engine"
	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/navigator"
	"github.com/offerforge/offerforge/pkg/stepgraph"
	"github.com/offerforge/offerforge/pkg/storage"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id"`
}

// Common error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// Common errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTimeout      = errors.New("request timeout")
)

// HTTPStatusFromError maps engine and request errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	var (
		ve        *navigator.ValidationError
		closed    *navigator.ClosedError
		missing   *engine.SessionNotFoundError
		notFound  *storage.NotFoundError
		duplicate *storage.DuplicateKeyError
		stopped   *engine.EngineNotRunningError
		limit     *engine.SessionLimitError
		fields    validator.ValidationErrors
		product   *stepgraph.UnknownProductTypeError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fields), errors.As(err, &product), errors.Is(err, ErrInvalidInput),
		errors.Is(err, journey.ErrUndeterminedProductType):
		return http.StatusBadRequest
	case errors.As(err, &missing), errors.As(err, &notFound), errors.As(err, &closed), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.As(err, &stopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &limit):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCodeFromStatus returns an error code for the given HTTP status.
func ErrorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllowed
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusUnprocessableEntity:
		return ErrCodeValidationFailed
	case http.StatusTooManyRequests:
		return ErrCodeTooManyRequests
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		return ErrCodeInternalServer
	}
}

// errorDetails exposes the structured parts of known errors.
func errorDetails(err error) map[string]interface{} {
	var ve *navigator.ValidationError
	if errors.As(err, &ve) {
		d := map[string]interface{}{"step": string(ve.Step), "reason": ve.Reason}
		if ve.Field != "" {
			d["field"] = ve.Field
		}
		return d
	}

	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		d := make(map[string]interface{}, len(fields))
		for _, fe := range fields {
			d[fe.Field()] = fe.Tag()
		}
		return d
	}

	var limit *engine.SessionLimitError
	if errors.As(err, &limit) {
		return map[string]interface{}{"limit": limit.Limit}
	}
	return nil
}

// HandleError is a convenience function to handle errors and write appropriate responses.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)
	code := ErrorCodeFromStatus(status)
	message := err.Error()
	if status == http.StatusInternalServerError {
		var invariant *journey.InvariantError
		if !errors.As(err, &invariant) {
			message = "internal server error"
		}
	}
	if details := errorDetails(err); details != nil {
		ErrorWithDetails(w, status, code, message, details, requestID)
		return
	}
	Error(w, status, code, message, requestID)
}
