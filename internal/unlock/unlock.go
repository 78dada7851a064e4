// Package unlock gates the precision routing tier. A caller presents the
// configured passkey once and receives a signed, expiring unlock token that
// later requests carry in the X-Unlock-Token header.
package unlock

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Subject is the token subject granting the precision tier.
const Subject = "precision"

// DefaultTTL is how long an unlock token stays valid.
const DefaultTTL = 12 * time.Hour

// Predefined unlock errors.
var (
	ErrDisabled       = errors.New("precision unlock is not configured")
	ErrInvalidPasskey = errors.New("invalid passkey")
	ErrInvalidToken   = errors.New("invalid unlock token")
	ErrTokenExpired   = errors.New("unlock token has expired")
)

// Claims are the claims carried by an unlock token.
type Claims struct {
	jwt.RegisteredClaims
}

// Config holds configuration for the unlock service.
type Config struct {
	// Passkey is the shared secret that unlocks the precision tier. Empty disables unlocking.
	Passkey string

	// SigningKey signs unlock tokens with HS256.
	SigningKey string

	// Issuer is the issuer claim (default: "lanemap").
	Issuer string

	// TTL is the token lifetime (default: DefaultTTL).
	TTL time.Duration
}

// Service issues and verifies unlock tokens.
type Service struct {
	passkey    []byte
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewService creates a new unlock service.
func NewService(cfg Config) *Service {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "lanemap"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		passkey:    []byte(cfg.Passkey),
		signingKey: []byte(cfg.SigningKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Enabled reports whether a passkey is configured.
func (s *Service) Enabled() bool {
	return len(s.passkey) > 0 && len(s.signingKey) > 0
}

// Unlock checks passkey and returns a signed token with its expiry.
func (s *Service) Unlock(passkey string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrDisabled
	}
	if subtle.ConstantTimeCompare([]byte(passkey), s.passkey) != 1 {
		return "", time.Time{}, ErrInvalidPasskey
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing unlock token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify validates a token and returns its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithSubject(Subject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Unlocked reports whether token grants the precision tier.
func (s *Service) Unlocked(token string) bool {
	if token == "" {
		return false
	}
	_, err := s.Verify(token)
	return err == nil
}

func tokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
