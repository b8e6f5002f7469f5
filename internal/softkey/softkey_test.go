package softkey

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendtrack/internal/apperr"
	"attendtrack/internal/biometric"
	"attendtrack/internal/prefs"
)

func TestCreateThenAssertSignsChallenge(t *testing.T) {
	a := New(prefs.NewMemoryBackend())
	ctx := context.Background()

	nc, err := a.Create(ctx, biometric.RegistrationOptions{Challenge: "aa", UserID: "1MJ22CS001", UserName: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, "aa", nc.Challenge)
	require.NotEmpty(t, nc.CredentialID)

	as, err := a.Assert(ctx, biometric.AuthOptions{Challenge: "bb", CredentialIDs: []string{"other", nc.CredentialID}})
	require.NoError(t, err)
	assert.Equal(t, nc.CredentialID, as.CredentialID)
	assert.Equal(t, "bb", as.Challenge)

	pub, err := b64.DecodeString(nc.PublicKey)
	require.NoError(t, err)
	authData, err := b64.DecodeString(as.AuthenticatorData)
	require.NoError(t, err)
	cd, err := b64.DecodeString(as.ClientDataJSON)
	require.NoError(t, err)
	sig, err := b64.DecodeString(as.Signature)
	require.NoError(t, err)
	cdHash := sha256.Sum256(cd)
	assert.True(t, ed25519.Verify(pub, append(authData, cdHash[:]...), sig))
}

func TestAssertWithoutLocalCredential(t *testing.T) {
	a := New(prefs.NewMemoryBackend())
	_, err := a.Assert(context.Background(), biometric.AuthOptions{Challenge: "bb", CredentialIDs: []string{"x"}})

	var cerr *apperr.CeremonyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, apperr.CeremonyUnsupported, cerr.Reason)
}

func TestDeclinedConfirmationCancels(t *testing.T) {
	a := New(prefs.NewMemoryBackend())
	a.Confirm = func(string) bool { return false }

	_, err := a.Create(context.Background(), biometric.RegistrationOptions{Challenge: "aa"})
	var cerr *apperr.CeremonyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, apperr.CeremonyCancelled, cerr.Reason)
}

func TestExpiredContextTimesOut(t *testing.T) {
	a := New(prefs.NewMemoryBackend())
	nc, err := a.Create(context.Background(), biometric.RegistrationOptions{Challenge: "aa"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	_, err = a.Assert(ctx, biometric.AuthOptions{Challenge: "bb", CredentialIDs: []string{nc.CredentialID}})
	var cerr *apperr.CeremonyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, apperr.CeremonyTimedOut, cerr.Reason)
}

func TestRemove(t *testing.T) {
	a := New(prefs.NewMemoryBackend())
	nc, err := a.Create(context.Background(), biometric.RegistrationOptions{Challenge: "aa"})
	require.NoError(t, err)
	require.NoError(t, a.Remove(nc.CredentialID))

	_, err = a.Assert(context.Background(), biometric.AuthOptions{CredentialIDs: []string{nc.CredentialID}})
	assert.Error(t, err)
}
