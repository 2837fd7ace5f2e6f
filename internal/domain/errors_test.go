package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Router.Route", ErrRouting, "extracted: {}")
	want := "Router.Route: extracted: {}: routing decision could not be parsed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("SystemService.Get", ErrSystemNotFound, "")
	want := "SystemService.Get: system not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("FileFetch.Execute", ErrToolParameter, "owner, path")
	if !errors.Is(err, ErrToolParameter) {
		t.Error("errors.Is should match ErrToolParameter")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDomainError("Store.Get", ErrSystemNotFound, "abc"))
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Store.Get", de.Op)
	assert.Equal(t, CodeSystemNotFound, de.Code())
}

func TestWrapOpNil(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
	assert.ErrorIs(t, WrapOp("op", ErrKBFetch), ErrKBFetch)
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"direct", ErrRateLimit, CodeRateLimit},
		{"wrapped", fmt.Errorf("github: %w", ErrAuthInvalid), CodeAuthInvalid},
		{"domain error", NewDomainError("Create", ErrConfiguration, "models"), CodeConfiguration},
		{"double wrapped", WrapOp("a", WrapOp("b", ErrToolHTTP)), CodeToolHTTP},
		{"unknown", errors.New("boom"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeOf(tt.err))
		})
	}
}

func TestErrorCodeMapCoversOrder(t *testing.T) {
	for _, s := range errorCodeOrder {
		_, ok := errorCodeMap[s]
		assert.True(t, ok, "missing code for %v", s)
	}
	assert.Len(t, errorCodeOrder, len(errorCodeMap))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(fmt.Errorf("x: %w", ErrRateLimit)))
	assert.True(t, IsRetryableError(ErrCircuitOpen))
	assert.False(t, IsRetryableError(ErrAuthInvalid))
}
