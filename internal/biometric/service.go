// Package biometric implements platform-authenticator enrollment and one-tap login.
//
// Verification trusts membership of the asserted credential id in the stored set
// for the user bound to the challenge. Assertion signatures are carried but not
// checked against the stored public key.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"attendtrack/internal/apperr"
)

// DefaultChallengeTTL bounds how long an issued challenge stays usable.
const DefaultChallengeTTL = 2 * time.Minute

// CeremonyTimeout is the platform ceremony timeout advertised to clients.
const CeremonyTimeout = 60 * time.Second

// ErrDuplicateCredential is returned by stores when the student already has the credential id.
var ErrDuplicateCredential = errors.New("credential already registered")

// Credential is a registered platform authenticator. PublicKey is write-only.
type Credential struct {
	ID           string    `json:"id"`
	PublicKey    string    `json:"-"`
	DeviceName   string    `json:"device_name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Account is the slice of a student the biometric flow needs.
type Account struct {
	ID       int64
	USN      string
	Username string
	Name     string
	Prompted bool
}

// Store is the persistence contract of the biometric service.
type Store interface {
	AccountByHandle(ctx context.Context, handle string) (Account, error)
	AccountByID(ctx context.Context, id int64) (Account, error)
	Credentials(ctx context.Context, studentID int64) ([]Credential, error)
	// AddCredential appends c, sets the prompted flag and returns the new count.
	AddCredential(ctx context.Context, studentID int64, c Credential) (int, error)
	// RemoveCredential deletes c and returns the remaining count.
	RemoveCredential(ctx context.Context, studentID int64, credentialID string) (int, error)
	SetPrompted(ctx context.Context, studentID int64) error
}

// RegistrationOptions is returned when enrollment starts.
type RegistrationOptions struct {
	Challenge string `json:"challenge"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// NewCredential is the result of a creation ceremony.
type NewCredential struct {
	Challenge    string `json:"challenge" validate:"required"`
	CredentialID string `json:"credential_id" validate:"required"`
	PublicKey    string `json:"public_key" validate:"required"`
	DeviceName   string `json:"device_name"`
}

// UserStatus answers whether a handle exists and can use one-tap login.
type UserStatus struct {
	Found          bool   `json:"user_found"`
	HasFingerprint bool   `json:"has_fingerprint"`
	Name           string `json:"name,omitempty"`
	USN            string `json:"usn,omitempty"`
	Prompted       bool   `json:"fingerprint_prompted"`
}

// AuthOptions is returned when one-tap login starts.
type AuthOptions struct {
	Challenge     string   `json:"challenge"`
	CredentialIDs []string `json:"credential_ids"`
	TimeoutMS     int64    `json:"timeout_ms"`
}

// Assertion is the result of an assertion ceremony.
type Assertion struct {
	Challenge         string `json:"challenge"`
	CredentialID      string `json:"credential_id"`
	AuthenticatorData string `json:"authenticator_data"`
	ClientDataJSON    string `json:"client_data_json"`
	Signature         string `json:"signature"`
}

// Service orchestrates challenges and the credential list.
type Service struct {
	store      Store
	challenges ChallengeStore
	ttl        time.Duration
	now        func() time.Time
}

// NewService creates a service.
func NewService(store Store, challenges ChallengeStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &Service{store: store, challenges: challenges, ttl: ttl, now: time.Now}
}

// RegisterChallenge issues a registration challenge bound to the session's student.
func (s *Service) RegisterChallenge(ctx context.Context, studentID int64) (RegistrationOptions, error) {
	acct, err := s.store.AccountByID(ctx, studentID)
	if err != nil {
		return RegistrationOptions{}, err
	}
	challenge, err := s.issue(ctx, Binding{StudentID: acct.ID, Purpose: PurposeRegister})
	if err != nil {
		return RegistrationOptions{}, err
	}
	name := acct.Name
	if name == "" {
		name = acct.Username
	}
	return RegistrationOptions{
		Challenge: challenge,
		UserID:    acct.USN,
		UserName:  name,
		TimeoutMS: CeremonyTimeout.Milliseconds(),
	}, nil
}

// RegisterCredential stores a new credential and returns the credential count.
func (s *Service) RegisterCredential(ctx context.Context, studentID int64, nc NewCredential) (int, error) {
	if strings.TrimSpace(nc.CredentialID) == "" || strings.TrimSpace(nc.PublicKey) == "" {
		return 0, apperr.Invalid("Invalid credential data")
	}
	b, err := s.challenges.Take(ctx, nc.Challenge)
	if errors.Is(err, ErrChallengeExpired) {
		return 0, apperr.Invalid("Registration challenge expired, please try again")
	}
	if err != nil {
		return 0, err
	}
	if b.Purpose != PurposeRegister || b.StudentID != studentID {
		return 0, apperr.Invalid("Registration challenge expired, please try again")
	}
	device := strings.TrimSpace(nc.DeviceName)
	if device == "" {
		device = UnknownDevice
	}
	n, err := s.store.AddCredential(ctx, studentID, Credential{
		ID:           nc.CredentialID,
		PublicKey:    nc.PublicKey,
		DeviceName:   device,
		RegisteredAt: s.now().UTC(),
	})
	if errors.Is(err, ErrDuplicateCredential) {
		return 0, apperr.Invalid("Credential already registered")
	}
	if err != nil {
		return 0, fmt.Errorf("add credential: %w", err)
	}
	return n, nil
}

// Credentials lists the student's credentials without public keys.
func (s *Service) Credentials(ctx context.Context, studentID int64) ([]Credential, error) {
	creds, err := s.store.Credentials(ctx, studentID)
	if err != nil {
		return nil, err
	}
	for i := range creds {
		creds[i].PublicKey = ""
	}
	return creds, nil
}

// DeleteCredential removes a credential and returns how many remain.
// The prompted flag is left untouched.
func (s *Service) DeleteCredential(ctx context.Context, studentID int64, credentialID string) (int, error) {
	if strings.TrimSpace(credentialID) == "" {
		return 0, apperr.Invalid("Credential ID required")
	}
	return s.store.RemoveCredential(ctx, studentID, credentialID)
}

// DismissPrompt records that enrollment was offered and declined.
func (s *Service) DismissPrompt(ctx context.Context, studentID int64) error {
	return s.store.SetPrompted(ctx, studentID)
}

// CheckUser reports whether handle exists and has credentials.
func (s *Service) CheckUser(ctx context.Context, handle string) (UserStatus, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return UserStatus{}, apperr.Invalid("Username required")
	}
	acct, err := s.store.AccountByHandle(ctx, handle)
	if errors.Is(err, apperr.ErrNotFound) {
		return UserStatus{}, nil
	}
	if err != nil {
		return UserStatus{}, err
	}
	creds, err := s.store.Credentials(ctx, acct.ID)
	if err != nil {
		return UserStatus{}, err
	}
	return UserStatus{
		Found:          true,
		HasFingerprint: len(creds) > 0,
		Name:           acct.Name,
		USN:            acct.USN,
		Prompted:       acct.Prompted,
	}, nil
}

// AuthChallenge issues a login challenge bound to handle and its credential ids.
func (s *Service) AuthChallenge(ctx context.Context, handle string) (AuthOptions, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return AuthOptions{}, apperr.Invalid("Username required")
	}
	acct, err := s.store.AccountByHandle(ctx, handle)
	if err != nil {
		return AuthOptions{}, err
	}
	creds, err := s.store.Credentials(ctx, acct.ID)
	if err != nil {
		return AuthOptions{}, err
	}
	if len(creds) == 0 {
		return AuthOptions{}, apperr.Invalid("No fingerprint credentials found")
	}
	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.ID)
	}
	challenge, err := s.issue(ctx, Binding{StudentID: acct.ID, Purpose: PurposeAuthenticate, CredentialIDs: ids})
	if err != nil {
		return AuthOptions{}, err
	}
	return AuthOptions{Challenge: challenge, CredentialIDs: ids, TimeoutMS: CeremonyTimeout.Milliseconds()}, nil
}

// Verify consumes the challenge and accepts the assertion when its credential id
// was offered with the challenge and is still stored for the bound student.
func (s *Service) Verify(ctx context.Context, a Assertion) (Account, error) {
	if strings.TrimSpace(a.CredentialID) == "" || strings.TrimSpace(a.Challenge) == "" {
		return Account{}, apperr.Invalid("Invalid authentication data")
	}
	b, err := s.challenges.Take(ctx, a.Challenge)
	if errors.Is(err, ErrChallengeExpired) {
		return Account{}, apperr.Unauthenticated("Authentication session expired")
	}
	if err != nil {
		return Account{}, err
	}
	if b.Purpose != PurposeAuthenticate {
		return Account{}, apperr.Unauthenticated("Authentication session expired")
	}
	if !slices.Contains(b.CredentialIDs, a.CredentialID) {
		return Account{}, apperr.Unauthenticated("Fingerprint not recognized")
	}
	creds, err := s.store.Credentials(ctx, b.StudentID)
	if err != nil {
		return Account{}, err
	}
	for _, c := range creds {
		if c.ID == a.CredentialID {
			return s.store.AccountByID(ctx, b.StudentID)
		}
	}
	return Account{}, apperr.Unauthenticated("Fingerprint not recognized")
}

func (s *Service) issue(ctx context.Context, b Binding) (string, error) {
	challenge, err := NewChallenge()
	if err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	b.IssuedAt = s.now().UTC()
	if err := s.challenges.Put(ctx, challenge, b, s.ttl); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return challenge, nil
}
