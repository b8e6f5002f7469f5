package biometric

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrChallengeExpired is returned when a challenge is unknown, used or past its TTL.
var ErrChallengeExpired = errors.New("challenge expired")

// Purpose says which ceremony a challenge was issued for.
type Purpose string

const (
	PurposeRegister     Purpose = "register"
	PurposeAuthenticate Purpose = "authenticate"
)

// Binding is the server-side state tied to an issued challenge.
type Binding struct {
	StudentID     int64     `json:"student_id"`
	Purpose       Purpose   `json:"purpose"`
	CredentialIDs []string  `json:"credential_ids,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
}

// ChallengeStore keeps single-use challenges.
type ChallengeStore interface {
	Put(ctx context.Context, challenge string, b Binding, ttl time.Duration) error
	// Take returns and removes the binding. A second Take of the same challenge fails.
	Take(ctx context.Context, challenge string) (Binding, error)
}

// NewChallenge returns 32 random bytes hex encoded.
func NewChallenge() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RedisChallenges stores bindings as JSON values with a TTL.
type RedisChallenges struct {
	client *redis.Client
	prefix string
}

// NewRedisChallenges builds a redis-backed challenge store.
func NewRedisChallenges(client *redis.Client, prefix string) *RedisChallenges {
	if prefix == "" {
		prefix = "attendtrack:challenge:"
	}
	return &RedisChallenges{client: client, prefix: prefix}
}

// Put stores the binding until ttl elapses.
func (s *RedisChallenges) Put(ctx context.Context, challenge string, b Binding, ttl time.Duration) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+challenge, raw, ttl).Err()
}

// Take atomically reads and deletes the binding.
func (s *RedisChallenges) Take(ctx context.Context, challenge string) (Binding, error) {
	raw, err := s.client.GetDel(ctx, s.prefix+challenge).Bytes()
	if errors.Is(err, redis.Nil) {
		return Binding{}, ErrChallengeExpired
	}
	if err != nil {
		return Binding{}, fmt.Errorf("take challenge: %w", err)
	}
	var b Binding
	if err := json.Unmarshal(raw, &b); err != nil {
		return Binding{}, fmt.Errorf("decode challenge: %w", err)
	}
	return b, nil
}

// MemoryChallenges is an in-process challenge store for dev and tests.
type MemoryChallenges struct {
	mu    sync.Mutex
	items map[string]memoryChallenge
	now   func() time.Time
}

type memoryChallenge struct {
	binding Binding
	expires time.Time
}

// NewMemoryChallenges creates an empty store.
func NewMemoryChallenges() *MemoryChallenges {
	return &MemoryChallenges{items: make(map[string]memoryChallenge), now: time.Now}
}

// Put stores the binding until ttl elapses.
func (s *MemoryChallenges) Put(_ context.Context, challenge string, b Binding, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.items {
		if now.After(v.expires) {
			delete(s.items, k)
		}
	}
	s.items[challenge] = memoryChallenge{binding: b, expires: now.Add(ttl)}
	return nil
}

// Take returns and removes the binding.
func (s *MemoryChallenges) Take(_ context.Context, challenge string) (Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[challenge]
	delete(s.items, challenge)
	if !ok || s.now().After(item.expires) {
		return Binding{}, ErrChallengeExpired
	}
	return item.binding, nil
}
