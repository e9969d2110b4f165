package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apistarter/apistarter/internal/requestctx"
)

func TestHTTPStatusFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{"INVALID_INPUT", http.StatusBadRequest},
		{"VALIDATION_FAILED", http.StatusBadRequest},
		{"NOT_FOUND", http.StatusNotFound},
		{"METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed},
		{"INTERNAL_ERROR", http.StatusInternalServerError},
		{"CONFIG_INVALID", http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatusFromCode(tt.code))
		})
	}
}

func TestStatusOf(t *testing.T) {
	t.Run("plain error has no status", func(t *testing.T) {
		_, ok := StatusOf(stderrors.New("boom"))
		assert.False(t, ok)
		assert.Equal(t, http.StatusInternalServerError, StatusOrDefault(stderrors.New("boom")))
	})

	t.Run("explicit status", func(t *testing.T) {
		err := WithStatus(stderrors.New("teapot"), http.StatusTeapot)
		status, ok := StatusOf(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusTeapot, status)
		assert.Equal(t, "teapot", err.Error())
	})

	t.Run("explicit status survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", WithStatus(stderrors.New("gone"), http.StatusGone))
		assert.Equal(t, http.StatusGone, StatusOrDefault(err))
	})

	t.Run("envelope code", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, StatusOrDefault(NewNotFoundError("missing")))
		assert.Equal(t, http.StatusBadRequest, StatusOrDefault(NewInvalidInputError("bad")))
	})

	t.Run("out of range explicit status ignored", func(t *testing.T) {
		_, ok := StatusOf(WithStatus(stderrors.New("odd"), 200))
		assert.False(t, ok)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, WithStatus(nil, http.StatusBadRequest))
		_, ok := StatusOf(nil)
		assert.False(t, ok)
	})
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "", MessageOf(nil))
	assert.Equal(t, "raw failure", MessageOf(stderrors.New("raw failure")))
	assert.Equal(t, "Example not found", MessageOf(NewNotFoundError("Example not found")))
}

func TestFieldsOf(t *testing.T) {
	fields := []string{"name is required"}

	envelope := NewValidationError("Validation failed", fields)
	assert.Equal(t, "VALIDATION_FAILED", envelope.Code)
	assert.Equal(t, fields, FieldsOf(envelope))
	assert.Equal(t, fields, FieldsOf(fmt.Errorf("create: %w", envelope)))
	assert.Equal(t, fields, FieldsOf(WithStatus(envelope, http.StatusUnprocessableEntity)))

	assert.Nil(t, FieldsOf(NewNotFoundError("missing")))
	assert.Nil(t, FieldsOf(stderrors.New("plain")))
	assert.Nil(t, NewValidationError("Validation failed", nil).Details)
	assert.Nil(t, WithFields(nil, fields))
}

func TestWrapUsesRequestCorrelationID(t *testing.T) {
	ctx := requestctx.With(context.Background(), requestctx.RequestContext{ID: "corr-42"})

	envelope := WrapInvalidInput(ctx, stderrors.New("decode failed"), "Malformed JSON body")
	require.NotNil(t, envelope)
	assert.Equal(t, "INVALID_INPUT", envelope.Code)
	assert.Equal(t, "corr-42", envelope.CorrelationID)
	assert.Equal(t, "decode failed", envelope.Context["wrapped_error"])
}

func TestWrapGeneratesCorrelationID(t *testing.T) {
	envelope := WrapInternal(context.Background(), stderrors.New("x"), "internal")
	require.NotNil(t, envelope)
	assert.NotEmpty(t, envelope.CorrelationID)
}

func TestPanicError(t *testing.T) {
	err := &PanicError{Source: "janitor", Value: "boom", Stack: []byte("goroutine 1 [running]:")}
	assert.Equal(t, "panic in janitor: boom", err.Error())
	assert.Equal(t, "panic in janitor: boom", fmt.Sprintf("%v", err))
	assert.Contains(t, fmt.Sprintf("%+v", err), "goroutine 1 [running]:")
	assert.Equal(t, "goroutine 1 [running]:", StackTrace(fmt.Errorf("wrapped: %w", err)))

	anonymous := &PanicError{Value: 42}
	assert.Equal(t, "panic: 42", anonymous.Error())
	assert.Empty(t, StackTrace(stderrors.New("plain")))
}
