package biometric

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceLabel(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", "iPhone"},
		{"Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)", "iPad"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", "Mac"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8)", "Android Device"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", "Windows PC"},
		{"Mozilla/5.0 (X11; Linux x86_64)", "Linux Device"},
		{"curl/8.0", UnknownDevice},
		{"", UnknownDevice},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeviceLabel(tt.ua), tt.ua)
	}
}

func TestNewChallengeIsRandomHex(t *testing.T) {
	a, err := NewChallenge()
	require.NoError(t, err)
	b, err := NewChallenge()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, "^[0-9a-f]{64}$", a)
}

func TestMemoryChallengesExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryChallenges()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, "c1", Binding{StudentID: 1, Purpose: PurposeRegister}, time.Minute))
	require.NoError(t, s.Put(ctx, "c2", Binding{StudentID: 2, Purpose: PurposeAuthenticate}, time.Minute))

	b, err := s.Take(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.StudentID)
	_, err = s.Take(ctx, "c1")
	assert.ErrorIs(t, err, ErrChallengeExpired)

	now = now.Add(2 * time.Minute)
	_, err = s.Take(ctx, "c2")
	assert.ErrorIs(t, err, ErrChallengeExpired)
}
