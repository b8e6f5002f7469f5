// Package softkey is a software platform authenticator for terminals without
// a biometric sensor. Keys are ed25519 pairs kept in a prefs backend.
package softkey

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"attendtrack/internal/apperr"
	"attendtrack/internal/biometric"
	"attendtrack/internal/prefs"
)

const keyName = "softkey_credentials"

var b64 = base64.RawURLEncoding

type credential struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	PrivateKey []byte `json:"private_key"`
}

// Authenticator creates and exercises credentials.
type Authenticator struct {
	store prefs.Backend
	// Confirm stands in for the user-presence check; false cancels the ceremony.
	Confirm func(prompt string) bool
}

// New keeps credentials in b.
func New(b prefs.Backend) *Authenticator {
	return &Authenticator{store: b}
}

// Supported is always true for the software authenticator.
func (a *Authenticator) Supported() bool { return true }

func (a *Authenticator) load() ([]credential, error) {
	raw, found, err := a.store.Get(keyName)
	if err != nil || !found {
		return nil, err
	}
	var creds []credential
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

func (a *Authenticator) save(creds []credential) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return a.store.Set(keyName, string(raw))
}

func (a *Authenticator) confirm(ctx context.Context, prompt string) error {
	if err := ctx.Err(); err != nil {
		reason := apperr.CeremonyCancelled
		if errors.Is(err, context.DeadlineExceeded) {
			reason = apperr.CeremonyTimedOut
		}
		return &apperr.CeremonyError{Reason: reason, Err: err}
	}
	if a.Confirm != nil && !a.Confirm(prompt) {
		return &apperr.CeremonyError{Reason: apperr.CeremonyCancelled}
	}
	return nil
}

// Create runs the creation ceremony for opts and stores the new private key.
func (a *Authenticator) Create(ctx context.Context, opts biometric.RegistrationOptions) (biometric.NewCredential, error) {
	if err := a.confirm(ctx, "Register this device for "+opts.UserName+"?"); err != nil {
		return biometric.NewCredential{}, err
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return biometric.NewCredential{}, err
	}
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return biometric.NewCredential{}, err
	}

	creds, err := a.load()
	if err != nil {
		return biometric.NewCredential{}, err
	}
	c := credential{ID: b64.EncodeToString(id), Username: opts.UserID, PrivateKey: priv}
	if err := a.save(append(creds, c)); err != nil {
		return biometric.NewCredential{}, err
	}
	return biometric.NewCredential{
		Challenge:    opts.Challenge,
		CredentialID: c.ID,
		PublicKey:    b64.EncodeToString(pub),
	}, nil
}

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
}

// Assert signs the challenge with the first local credential the server listed.
func (a *Authenticator) Assert(ctx context.Context, opts biometric.AuthOptions) (biometric.Assertion, error) {
	creds, err := a.load()
	if err != nil {
		return biometric.Assertion{}, err
	}
	idx := slices.IndexFunc(creds, func(c credential) bool {
		return slices.Contains(opts.CredentialIDs, c.ID)
	})
	if idx < 0 {
		return biometric.Assertion{}, &apperr.CeremonyError{
			Reason: apperr.CeremonyUnsupported,
			Err:    errors.New("no credential for this account on this device"),
		}
	}
	if err := a.confirm(ctx, "Confirm fingerprint login?"); err != nil {
		return biometric.Assertion{}, err
	}

	c := creds[idx]
	cd, err := json.Marshal(clientData{Type: "webauthn.get", Challenge: opts.Challenge})
	if err != nil {
		return biometric.Assertion{}, err
	}
	authData := sha256.Sum256([]byte("attendtrack"))
	cdHash := sha256.Sum256(cd)
	sig := ed25519.Sign(ed25519.PrivateKey(c.PrivateKey), append(authData[:], cdHash[:]...))

	return biometric.Assertion{
		Challenge:         opts.Challenge,
		CredentialID:      c.ID,
		AuthenticatorData: b64.EncodeToString(authData[:]),
		ClientDataJSON:    b64.EncodeToString(cd),
		Signature:         b64.EncodeToString(sig),
	}, nil
}

// Remove drops a local credential after it was deleted on the server.
func (a *Authenticator) Remove(id string) error {
	creds, err := a.load()
	if err != nil {
		return err
	}
	return a.save(slices.DeleteFunc(creds, func(c credential) bool { return c.ID == id }))
}
