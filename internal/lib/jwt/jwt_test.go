package jwt

import (
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/domain/models"
)

const (
	testSecret = "test-secret"
	testPepper = "test-pepper"
)

func newIssuer(t *testing.T, now func() time.Time) *Issuer {
	t.Helper()

	opts := []Option{}
	if now != nil {
		opts = append(opts, WithClock(now))
	}

	i, err := NewIssuer(testSecret, testPepper, opts...)
	require.NoError(t, err)
	return i
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	_, err := NewIssuer("", testPepper)
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestMintAndVerify(t *testing.T) {
	i := newIssuer(t, nil)
	email := gofakeit.Email()

	token, exp, err := i.Mint(42, email, 7, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Second)

	claims, err := i.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.AccountID)
	assert.Equal(t, email, claims.Email)
	assert.Equal(t, models.Generation(7), claims.Generation)
	assert.Equal(t, exp.Unix(), claims.ExpiresAt.Unix())
}

func TestMint_DistinctTokensWithinSameSecond(t *testing.T) {
	now := time.Now()
	i := newIssuer(t, func() time.Time { return now })

	first, _, err := i.Mint(1, "a@example.com", 1, time.Hour)
	require.NoError(t, err)
	second, _, err := i.Mint(1, "a@example.com", 1, time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerify_FailCases(t *testing.T) {
	now := time.Now()
	i := newIssuer(t, func() time.Time { return now })

	valid, _, err := i.Mint(1, "a@example.com", 1, time.Minute)
	require.NoError(t, err)

	other, err := NewIssuer("other-secret", testPepper, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	foreign, _, err := other.Mint(1, "a@example.com", 1, time.Minute)
	require.NoError(t, err)

	expired, _, err := i.Mint(1, "a@example.com", 1, -time.Minute)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		UID:              1,
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-token"},
		{name: "foreign signature", token: foreign},
		{name: "expired", token: expired},
		{name: "alg none", token: unsigned},
		{name: "tampered payload", token: tampered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := i.Verify(tt.token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestMintRefresh(t *testing.T) {
	i := newIssuer(t, nil)

	plain, digest, err := i.MintRefresh()
	require.NoError(t, err)
	assert.NotEmpty(t, plain)
	assert.NotEqual(t, plain, digest)
	assert.Equal(t, digest, i.DigestOf(plain))

	plain2, digest2, err := i.MintRefresh()
	require.NoError(t, err)
	assert.NotEqual(t, plain, plain2)
	assert.NotEqual(t, digest, digest2)
}

func TestDigestOf_DeterministicAndPeppered(t *testing.T) {
	i := newIssuer(t, nil)
	plain := gofakeit.UUID()

	assert.Equal(t, i.DigestOf(plain), i.DigestOf(plain))
	assert.NotEqual(t, plain, i.DigestOf(plain))

	unpeppered, err := NewIssuer(testSecret, "")
	require.NoError(t, err)
	assert.NotEqual(t, i.DigestOf(plain), unpeppered.DigestOf(plain))
}
