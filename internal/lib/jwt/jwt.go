package jwt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"subtrack/internal/domain/models"
)

const refreshTokenBytes = 32

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("signing secret is empty")
)

// Claims is the signed payload of an access token.
type Claims struct {
	jwt.RegisteredClaims
	UID        int64  `json:"uid"`
	Email      string `json:"email"`
	Generation uint64 `json:"gen"`
}

// Issuer mints and verifies access tokens and opaque refresh tokens.
// The secret and pepper are fixed for the lifetime of the process.
type Issuer struct {
	secret []byte
	pepper string
	now    func() time.Time
}

type Option func(*Issuer)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(secret, refreshPepper string, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	i := &Issuer{
		secret: []byte(secret),
		pepper: refreshPepper,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	return i, nil
}

// Mint creates an HS256 access token bound to the account's current generation.
func (i *Issuer) Mint(
	accountID int64,
	email string,
	gen models.Generation,
	ttl time.Duration,
) (token string, expiresAt time.Time, err error) {
	const op = "jwt.Mint"

	now := i.now()
	expiresAt = now.Add(ttl)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:        accountID,
		Email:      email,
		Generation: uint64(gen),
	})

	token, err = t.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return token, expiresAt, nil
}

// Verify checks signature, structure and expiry only. It never consults a store.
func (i *Issuer) Verify(token string) (models.AccessClaims, error) {
	var claims Claims

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return models.AccessClaims{}, ErrInvalidToken
	}

	if claims.UID == 0 {
		return models.AccessClaims{}, ErrInvalidToken
	}

	return models.AccessClaims{
		AccountID:  claims.UID,
		Email:      claims.Email,
		Generation: models.Generation(claims.Generation),
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// MintRefresh generates a random refresh token. The plaintext goes to the
// caller once; only the digest is meant to be stored.
func (i *Issuer) MintRefresh() (plaintext, digest string, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("jwt.MintRefresh: %w", err)
	}

	plaintext = base64.RawURLEncoding.EncodeToString(b)

	return plaintext, i.DigestOf(plaintext), nil
}

// DigestOf computes SHA-256 of the token with the server pepper.
func (i *Issuer) DigestOf(plaintext string) string {
	h := sha256.New()
	h.Write([]byte(plaintext + i.pepper))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
