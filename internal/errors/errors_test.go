package errors

import (
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFromErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewError("bad").Mark(ErrValidation), http.StatusBadRequest},
		{"not found", NewError("missing").Mark(ErrNotFound), http.StatusNotFound},
		{"business rule", NewError("locked").Mark(ErrInvalidOperation), http.StatusUnprocessableEntity},
		{"unauthorized", NewError("sig").Mark(ErrUnauthorized), http.StatusUnauthorized},
		{"external", NewError("down").Mark(ErrExternalService), http.StatusBadGateway},
		{"version conflict", NewError("stale").Mark(ErrVersionConflict), http.StatusConflict},
		{"unmarked", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusFromErr(tt.err))
		})
	}
}

func TestBuilderKeepsHintsAndDetails(t *testing.T) {
	cause := errors.New("no rate for EUR")
	err := WithError(cause).
		WithHint("Currency conversion is unavailable").
		WithReportableDetails(map[string]any{"currency": "EUR"}).
		Mark(ErrExternalService)

	assert.True(t, IsExternalService(err))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "Currency conversion is unavailable", GetHint(err))

	resp := NewErrorResponse(err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Currency conversion is unavailable", resp.Error.Display)
	assert.Equal(t, "EUR", resp.Error.Details["currency"])
}

func TestMarkedSentinelsSurviveWrapping(t *testing.T) {
	inner := NewError("invoice locked").Mark(ErrInvalidOperation)
	outer := WithError(inner).WithHint("cannot edit").Mark(ErrValidation)

	assert.True(t, IsInvalidOperation(outer))
	assert.True(t, IsValidation(outer))
	assert.False(t, IsNotFound(outer))
	// validation is listed first so it decides the status
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromErr(outer))
}

func TestWithMarkKeepsBothSentinels(t *testing.T) {
	errDomain := New("promotion_expired", "promotion expired")
	err := NewError("code SPRING ended").
		WithMark(errDomain).
		Mark(ErrInvalidOperation)

	assert.True(t, errors.Is(err, errDomain))
	assert.True(t, IsInvalidOperation(err))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatusFromErr(err))
}
