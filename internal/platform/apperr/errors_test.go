package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusConflict, KindConflict.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, KindDependency.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Kind("unknown").HTTPStatus())
}

func TestErrorMessageIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency("calling market data", cause)
	assert.Equal(t, "calling market data: connection refused", err.Error())

	bare := Validation("min_weight must be >= 0")
	assert.Equal(t, "min_weight must be >= 0", bare.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Internal("scan failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestAsExtractsWrappedAppError(t *testing.T) {
	original := NotFound("signal 42 not found")
	wrapped := fmt.Errorf("handler: %w", original)

	got, ok := As(wrapped)
	require := assert.New(t)
	require.True(ok)
	require.Equal(KindNotFound, got.Kind)
}

func TestAsFailsForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindOfDefaultsToInternalForPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindConflict, KindOf(Conflict("duplicate watch entry")))
}

func TestWithDetailsAttachesFields(t *testing.T) {
	err := Validationf("field %s is required", "code").WithDetails(map[string]any{"field": "code"})
	assert.Equal(t, "field code is required", err.Error())
	assert.Equal(t, "code", err.Details["field"])
}
