package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/apistarter/apistarter/internal/requestctx"
)

// Error codes produced by this service.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeConfigInvalid    = "CONFIG_INVALID"
)

// fieldsKey holds per-field details inside an envelope's Details.
const fieldsKey = "fields"

// User Errors (400-level)
func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

// NewValidationError reports rejected input fields. fields is returned to the
// client as the response details.
func NewValidationError(message string, fields any) *errors.ErrorEnvelope {
	return WithFields(errors.NewErrorEnvelope(CodeValidationFailed, message), fields)
}

// WithFields attaches client-facing field details to envelope.
func WithFields(envelope *errors.ErrorEnvelope, fields any) *errors.ErrorEnvelope {
	if envelope == nil || fields == nil {
		return envelope
	}
	return envelope.WithDetails(map[string]interface{}{fieldsKey: fields})
}

// FieldsOf returns the field details carried by an envelope in err's chain.
func FieldsOf(err error) any {
	var envelope *errors.ErrorEnvelope
	if !stderrors.As(err, &envelope) || envelope == nil {
		return nil
	}
	return envelope.Details[fieldsKey]
}

// WrapInvalidInput wraps err as an INVALID_INPUT envelope correlated with the request in ctx.
func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

// WrapInternal wraps err as an INTERNAL_ERROR envelope correlated with the request in ctx.
func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

// WrapConfigInvalid wraps err as a CONFIG_INVALID envelope.
func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConfigInvalid, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	return withWrappedError(envelope, err)
}

// extractCorrelationID gets correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if requestID := requestctx.ID(ctx); requestID != "" {
		return requestID
	}
	return uuid.New().String()
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput, CodeValidationFailed:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// StatusCoder is implemented by errors that carry their own HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

type statusError struct {
	err    error
	status int
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) HTTPStatus() int { return e.status }

// WithStatus attaches an explicit HTTP status to err.
func WithStatus(err error, status int) error {
	if err == nil {
		return nil
	}
	return &statusError{err: err, status: status}
}

// StatusOf returns the HTTP status attached to err, and whether one was found.
// An explicit status (StatusCoder) wins over an envelope code.
func StatusOf(err error) (int, bool) {
	if err == nil {
		return 0, false
	}

	var coder StatusCoder
	if stderrors.As(err, &coder) {
		if status := coder.HTTPStatus(); status >= 400 && status <= 599 {
			return status, true
		}
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return HTTPStatusFromCode(envelope.Code), true
	}
	return 0, false
}

// StatusOrDefault returns the attached status or 500.
func StatusOrDefault(err error) int {
	if status, ok := StatusOf(err); ok {
		return status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the human message of err. Envelopes report their Message
// rather than the formatted Error() string.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil && envelope.Message != "" {
		return envelope.Message
	}
	return err.Error()
}

// PanicError is a recovered panic together with the stack it unwound.
type PanicError struct {
	Source string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("panic: %v", e.Value)
	}
	return fmt.Sprintf("panic in %s: %v", e.Source, e.Value)
}

// Format prints the stack with %+v.
func (e *PanicError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s\n%s", e.Error(), e.Stack)
		return
	}
	fmt.Fprint(s, e.Error())
}

// StackTrace returns the captured stack, if any.
func StackTrace(err error) string {
	var panicErr *PanicError
	if stderrors.As(err, &panicErr) && panicErr != nil {
		return string(panicErr.Stack)
	}
	return ""
}
