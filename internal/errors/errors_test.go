package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := E(KindTransientNetwork, "authority/verify-license", cause)

	assert.Equal(t, KindTransientNetwork, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "authority/verify-license")
}

func TestKindOfWrappedError(t *testing.T) {
	inner := E(KindIntegrityViolation, "security/check", errors.New("fingerprint drift"))
	wrapped := fmt.Errorf("startup failed: %w", inner)

	assert.Equal(t, KindIntegrityViolation, KindOf(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(E(KindTransientNetwork, "op", errors.New("timeout"))))
	assert.False(t, IsTransient(E(KindCorruptState, "op", errors.New("bad json"))))
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestFromEngineMapping(t *testing.T) {
	tests := []struct {
		kind       Kind
		wantStatus int
		wantCode   string
	}{
		{KindTransientNetwork, http.StatusServiceUnavailable, "AUTHORITY_UNREACHABLE"},
		{KindCorruptState, http.StatusOK, "STATE_RESET"},
		{KindIntegrityViolation, http.StatusForbidden, "DEVICE_RESTRICTED"},
		{KindBestEffort, http.StatusOK, "SIDE_EFFECT_FAILED"},
		{KindUnknown, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			apiErr := FromEngine(E(tt.kind, "op", errors.New("boom")))
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
		})
	}
}
