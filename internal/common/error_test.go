package common

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	err := fmt.Errorf("login: %w", Locked(CodeAccountLocked, "fraud review", at))

	assert.True(t, errors.Is(err, ErrAccountLocked))
	assert.False(t, errors.Is(err, ErrRecipientLocked))

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "fraud review", e.LockReason)
	assert.Equal(t, at, e.LockedAt)
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "invalid_amount: amount must be positive", Errorf(CodeInvalidAmount, "amount must be %s", "positive").Error())
	assert.Equal(t, "timeout", (&Error{Code: CodeTimeout}).Error())
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"typed", ErrInsufficientFunds, CodeInsufficientFunds},
		{"wrapped", fmt.Errorf("x: %w", ErrSessionExpired), CodeSessionExpired},
		{"plain", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}
