package realme

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session keys owned by this module. Values stored under these keys must
// survive exactly across the redirect round-trip to RealMe and back.
const (
	// SessionDataKey holds the serialized UserRecord.
	SessionDataKey = "RealMe.SessionData"

	// OriginalResponseKey holds the raw SAML response, retained for audit
	// and debugging. It must be backed by server-side storage, never a
	// client-visible cookie.
	OriginalResponseKey = "RealMe.OriginalResponse"

	// LastErrorKey holds the last user-facing error message.
	LastErrorKey = "RealMe.LastErrorMessage"

	// BackURLKey holds the one-time redirect target used after a
	// successful login.
	BackURLKey = "RealMeBackURL"

	// ErrorBackURLKey holds the one-time redirect target used after a
	// failed login.
	ErrorBackURLKey = "RealMeErrorBackURL"
)

// SessionStore is the request-scoped key/value session consumed by the
// authentication service. Implementations must provide per-session
// isolation (the standard web-session guarantee); no further locking is
// required by this module.
type SessionStore interface {
	// Get returns the value for key, and whether it was present.
	Get(key string) (string, bool)

	// Set stores value under key, replacing any existing value.
	Set(key, value string)

	// Clear removes key. Clearing an absent key is a no-op.
	Clear(key string)
}

// MemorySessionStore is an in-memory SessionStore. Each instance represents
// one browser session; sharing an instance across users defeats the
// per-session isolation the service relies on.
type MemorySessionStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{values: make(map[string]string)}
}

// Get returns the value for key, and whether it was present.
func (s *MemorySessionStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *MemorySessionStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
}

// Clear removes key.
func (s *MemorySessionStore) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
}

// UserCodec serializes a UserRecord for session storage and restores it.
// Decode must reject values it cannot attribute to a prior Encode.
type UserCodec interface {
	Encode(user *UserRecord) (string, error)
	Decode(value string) (*UserRecord, error)
}

// ErrSessionDataInvalid is returned by UserCodec.Decode when the stored
// value is malformed, tampered with, or expired.
var ErrSessionDataInvalid = errors.New("session data invalid")

// JSONUserCodec stores the UserRecord as plain JSON. Suitable when the
// SessionStore itself is server-side and trusted (the usual deployment).
type JSONUserCodec struct{}

// Encode marshals the record to JSON.
func (JSONUserCodec) Encode(user *UserRecord) (string, error) {
	data, err := json.Marshal(user)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode unmarshals a record from JSON.
func (JSONUserCodec) Decode(value string) (*UserRecord, error) {
	var user UserRecord
	if err := json.Unmarshal([]byte(value), &user); err != nil {
		return nil, ErrSessionDataInvalid
	}
	return &user, nil
}

// JWTUserCodec stores the UserRecord inside a signed JWT (RS256). Use this
// when the SessionStore is backed by storage the browser can write to, so a
// tampered record is rejected rather than trusted.
type JWTUserCodec struct {
	privateKey *rsa.PrivateKey
	duration   time.Duration
}

// userClaims defines the JWT claims structure for stored user records.
type userClaims struct {
	jwt.RegisteredClaims
	FederatedTag string             `json:"flt,omitempty"`
	SessionIndex string             `json:"session_index"`
	Attributes   AttributeBag       `json:"attrs,omitempty"`
	Identity     *FederatedIdentity `json:"identity,omitempty"`
}

// NewJWTUserCodec creates a codec signing records with the given key.
// Records older than duration fail to decode.
func NewJWTUserCodec(privateKey *rsa.PrivateKey, duration time.Duration) *JWTUserCodec {
	return &JWTUserCodec{privateKey: privateKey, duration: duration}
}

// Encode generates a signed token from the record.
func (c *JWTUserCodec) Encode(user *UserRecord) (string, error) {
	now := time.Now()
	claims := userClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.SPNameID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.duration)),
		},
		FederatedTag: user.UserFederatedTag,
		SessionIndex: user.SessionIndex,
		Attributes:   user.Attributes,
		Identity:     user.FederatedIdentity,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(c.privateKey)
}

// Decode validates a token and restores the record.
func (c *JWTUserCodec) Decode(value string) (*UserRecord, error) {
	parsed, err := jwt.ParseWithClaims(value, &userClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return &c.privateKey.PublicKey, nil
	})
	if err != nil {
		return nil, ErrSessionDataInvalid
	}

	claims, ok := parsed.Claims.(*userClaims)
	if !ok || !parsed.Valid {
		return nil, ErrSessionDataInvalid
	}

	return &UserRecord{
		SPNameID:          claims.Subject,
		UserFederatedTag:  claims.FederatedTag,
		SessionIndex:      claims.SessionIndex,
		Attributes:        claims.Attributes,
		FederatedIdentity: claims.Identity,
	}, nil
}

// LoadPrivateKey loads an RSA private key from a PEM file, for use with
// NewJWTUserCodec.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// Try PKCS8 first, then the legacy PKCS1 RSA format
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return rsaKey, nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("key is not RSA")
	}

	return rsaKey, nil
}
