package auth

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"replied/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealBroken is returned when a stored session cannot be opened.
var ErrSealBroken = errors.New("session seal broken")

// Store keeps browser sessions in Redis, sealed with XChaCha20-Poly1305.
// The session id is bound as additional data so a sealed blob is only
// valid under the key it was written to.
type Store struct {
	rdb  *redis.Client
	aead cipher.AEAD
	ttl  time.Duration
}

// NewStore returns a Store sealing with a 32-byte key.
func NewStore(rdb *redis.Client, key []byte, ttl time.Duration) (*Store, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	return &Store{rdb: rdb, aead: aead, ttl: ttl}, nil
}

// NewSessionID returns a fresh opaque browser session id.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether sid looks like one NewSessionID produced.
func ValidSessionID(sid string) bool {
	_, err := uuid.Parse(sid)
	return err == nil
}

func sessionKey(sid string) string  { return "session:" + sid }
func verifierKey(sid string) string { return "pkce:" + sid }

func (s *Store) seal(sid string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(sid)), nil
}

func (s *Store) open(sid string, sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrSealBroken
	}
	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], []byte(sid))
	if err != nil {
		return nil, ErrSealBroken
	}
	return plaintext, nil
}

// Save stores the session under sid and resets its TTL.
func (s *Store) Save(ctx context.Context, sid string, sess *models.Session) error {
	plaintext, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	sealed, err := s.seal(sid, plaintext)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(sid), sealed, s.ttl).Err()
}

// Load returns the session stored under sid, or nil when none exists.
func (s *Store) Load(ctx context.Context, sid string) (*models.Session, error) {
	sealed, err := s.rdb.Get(ctx, sessionKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	plaintext, err := s.open(sid, sealed)
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal(plaintext, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Delete removes the session stored under sid.
func (s *Store) Delete(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, sessionKey(sid)).Err()
}

// SaveVerifier remembers the PKCE verifier for a pending sign-in.
func (s *Store) SaveVerifier(ctx context.Context, sid, verifier string) error {
	sealed, err := s.seal(sid, []byte(verifier))
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, verifierKey(sid), sealed, 10*time.Minute).Err()
}

// TakeVerifier returns and forgets the PKCE verifier for sid.
func (s *Store) TakeVerifier(ctx context.Context, sid string) (string, error) {
	sealed, err := s.rdb.GetDel(ctx, verifierKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", errors.New("no sign-in in progress")
	}
	if err != nil {
		return "", err
	}
	plaintext, err := s.open(sid, sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
