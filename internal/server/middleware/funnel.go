package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"runtime/debug"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/apistarter/apistarter/internal/config"
	apperrors "github.com/apistarter/apistarter/internal/errors"
	"github.com/apistarter/apistarter/internal/metrics"
	"github.com/apistarter/apistarter/internal/observability"
	"github.com/apistarter/apistarter/internal/server/respond"
)

// Failure texts returned by the funnel.
const (
	NotFoundLabel           = "Route not found"
	NotFoundMessage         = "The requested resource was not found"
	MethodNotAllowedLabel   = "Method not allowed"
	MethodNotAllowedMessage = "The requested method is not allowed for this resource"
	GenericErrorMessage     = "Something went wrong on our end"
)

// maxLoggedBody caps how much of an unmatched request body is read for logging.
const maxLoggedBody = 64 << 10

// HandlerFunc is a route handler that reports failure by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Funnel is the single place request failures are turned into responses:
// unmatched routes, returned errors and recovered panics.
type Funnel struct {
	mode    config.Mode
	logger  observability.Logger
	metrics *metrics.Recorder
}

// NewFunnel creates a funnel for mode.
func NewFunnel(mode config.Mode, logger observability.Logger, recorder *metrics.Recorder) *Funnel {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Funnel{mode: mode, logger: logger, metrics: recorder}
}

// Recovery is the innermost pipeline stage. It tracks whether the response
// has started and converts panics into the unhandled-error response.
func (f *Funnel) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww, ok := w.(chimw.WrapResponseWriter)
		if !ok {
			ww = chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		}

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			f.metrics.RecordPanic()
			f.HandleError(ww, r, &apperrors.PanicError{Value: rec, Stack: debug.Stack()})
		}()

		next.ServeHTTP(ww, r)
	})
}

// Handle adapts h to http.HandlerFunc, sending a returned error through
// HandleError.
func (f *Funnel) Handle(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			f.HandleError(w, r, err)
		}
	}
}

// NotFound responds to requests no route consumed.
func (f *Funnel) NotFound(w http.ResponseWriter, r *http.Request) {
	f.logger.Warn("Route not found",
		zap.String("requestID", GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("url", r.URL.String()),
		zap.String("ip", ClientKey(r)),
		zap.String("user_agent", r.UserAgent()),
		zap.String("query", r.URL.RawQuery),
		zap.Any("body", readBodyForLog(r)),
	)
	f.metrics.RouteNotFound(r.Method)
	f.reject(w, apperrors.NewNotFoundError(NotFoundMessage), NotFoundLabel)
}

// MethodNotAllowed responds when the path matched but the method did not.
func (f *Funnel) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	f.logger.Warn("Method not allowed",
		zap.String("requestID", GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("url", r.URL.String()),
		zap.String("ip", ClientKey(r)),
	)
	f.reject(w, apperrors.NewMethodNotAllowedError(MethodNotAllowedMessage), MethodNotAllowedLabel)
}

func (f *Funnel) reject(w http.ResponseWriter, envelope *gferrors.ErrorEnvelope, label string) {
	status := apperrors.HTTPStatusFromCode(envelope.Code)
	f.metrics.RecordError(envelope.Code, status)
	if responseStarted(w) {
		return
	}
	_ = respond.Failure(w, status, label, envelope.Message, nil)
}

// HandleError is the unhandled-error responder. Client errors (4xx) are
// answered with their own message and field details in every mode. Anything
// else is logged in full and, in production, answered with a fixed message.
func (f *Funnel) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	status := apperrors.StatusOrDefault(err)
	code := errorCode(err)
	message := apperrors.MessageOf(err)
	f.metrics.RecordError(code, status)

	if status < http.StatusInternalServerError {
		f.logger.Warn("Request rejected",
			zap.String("message", message),
			zap.String("error_code", code),
			zap.Int("status", status),
			zap.String("requestID", GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("route", routePattern(r)),
			zap.Error(err),
		)
		if responseStarted(w) {
			return
		}
		_ = respond.Failure(w, status, http.StatusText(status), message, apperrors.FieldsOf(err))
		return
	}

	stack := apperrors.StackTrace(err)
	stackField := zap.String("stack", stack)
	if stack == "" {
		stackField = zap.Stack("stack")
	}

	f.logger.Error("Unhandled request error",
		zap.String("message", message),
		zap.String("error_code", code),
		zap.Int("status", status),
		zap.String("requestID", GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("url", r.URL.String()),
		zap.String("route", routePattern(r)),
		zap.Error(err),
		stackField,
	)

	if responseStarted(w) {
		f.logger.Warn("Response already started, error response suppressed",
			zap.String("requestID", GetRequestID(r.Context())),
			zap.Int("status", status))
		return
	}

	if f.mode.IsProduction() {
		message = GenericErrorMessage
	}
	_ = respond.Failure(w, status, http.StatusText(status), message, nil)
}

func errorCode(err error) string {
	var envelope *gferrors.ErrorEnvelope
	if errors.As(err, &envelope) && envelope != nil && envelope.Code != "" {
		return envelope.Code
	}
	var panicErr *apperrors.PanicError
	if errors.As(err, &panicErr) {
		return "PANIC"
	}
	return "UNHANDLED"
}

// responseStarted reports whether a status or body has already been written.
func responseStarted(w http.ResponseWriter) bool {
	ww, ok := w.(chimw.WrapResponseWriter)
	if !ok {
		return false
	}
	return ww.Status() != 0 || ww.BytesWritten() > 0
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// readBodyForLog reads up to maxLoggedBody bytes and returns them redacted.
// The body is restored so later readers see the same bytes.
func readBodyForLog(r *http.Request) any {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
	if err != nil && len(data) == 0 {
		return nil
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), r.Body))
	return RedactBody(r.Header.Get("Content-Type"), data)
}
