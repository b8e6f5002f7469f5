package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "auth", err: fmt.Errorf("load: %w", ErrNotAuthenticated), want: KindNotAuthenticated},
		{name: "validation", err: Invalid("marks should be between %d and %d", 0, 50), want: KindValidation},
		{name: "not found", err: fmt.Errorf("delete: %w", ErrNotFound), want: KindNotFound},
		{name: "ceremony", err: &CeremonyError{Reason: CeremonyCancelled}, want: KindCeremony},
		{name: "other", err: errors.New("connection reset"), want: KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestFromValidator(t *testing.T) {
	type req struct {
		Status string `validate:"required,oneof=present absent"`
		IA     int    `validate:"min=1,max=3"`
	}
	err := validator.New().Struct(req{IA: 4})
	require.Error(t, err)

	converted := FromValidator(err)
	var verr *ValidationError
	require.True(t, errors.As(converted, &verr))
	assert.Len(t, verr.Fields, 2)
	assert.Contains(t, verr.Message, "Status is required")
	assert.Contains(t, verr.Message, "IA must be at most 3")
}

func TestFromValidatorPassesThrough(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, FromValidator(plain))
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth error", Unauthenticated("Fingerprint not recognized"), "Fingerprint not recognized"},
		{"bare auth", ErrNotAuthenticated, "Not authenticated"},
		{"validation", Invalid("Invalid input"), "Invalid input"},
		{"not found hides detail", fmt.Errorf("attendance 42 of student 7: %w", ErrNotFound), "Record not found"},
		{"ceremony", &CeremonyError{Reason: CeremonyUnsupported}, "this device does not support fingerprint login"},
		{"transient", errors.New("dial tcp: refused"), "Something went wrong, please try again"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
	assert.Equal(t, KindNotAuthenticated, KindOf(Unauthenticated("x")))
}
