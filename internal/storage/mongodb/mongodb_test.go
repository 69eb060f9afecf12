package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/domain/models"
	"subtrack/internal/storage"
)

func TestDocConversion_RoundTripsRefreshFields(t *testing.T) {
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	acc := &models.Account{
		ID:         7,
		Email:      "alice@example.com",
		Name:       "Alice",
		PassHash:   []byte("hash"),
		Generation: 3,
		Version:    2,
	}
	acc.SetRefresh("digest", exp)

	doc := toDoc(acc)
	require.NotNil(t, doc.RefreshExpiresAt)
	assert.Equal(t, "digest", doc.RefreshDigest)

	back := toModel(doc)
	assert.Equal(t, acc.ID, back.ID)
	assert.Equal(t, acc.Generation, back.Generation)
	assert.Equal(t, "digest", back.RefreshDigest)
	assert.True(t, exp.Equal(back.RefreshExpiresAt))
}

func TestDocConversion_AbsentRefresh(t *testing.T) {
	doc := toDoc(&models.Account{ID: 1, Email: "bob@example.com"})
	assert.Empty(t, doc.RefreshDigest)
	assert.Nil(t, doc.RefreshExpiresAt)

	assert.False(t, toModel(doc).HasRefresh())
}

func TestDocConversion_Preferences(t *testing.T) {
	acc := &models.Account{
		ID:    3,
		Email: "carol@example.com",
		Preferences: models.Preferences{
			Currency:      models.CurrencyGBP,
			Notifications: models.Notifications{Email: false, Push: true},
		},
	}

	doc := toDoc(acc)
	require.NotNil(t, doc.Preferences)
	assert.Equal(t, "GBP", doc.Preferences.Currency)

	assert.Equal(t, acc.Preferences, toModel(doc).Preferences)
}

func TestDocConversion_MissingPreferencesGetDefaults(t *testing.T) {
	back := toModel(accountDoc{ID: 4, Email: "dave@example.com"})

	assert.Equal(t, models.DefaultPreferences(), back.Preferences)
}

func TestNew_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	s, err := New(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200", "subtrack_test")
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "ping")
}

// newIntegrationStorage connects to MONGO_URI and skips the test when unset.
func newIntegrationStorage(t *testing.T) *Storage {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, uri, "subtrack_test")
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		_ = s.Close(cleanupCtx)
	})

	return s
}

func TestStorage_Integration(t *testing.T) {
	s := newIntegrationStorage(t)
	ctx := context.Background()

	acc := &models.Account{
		Email:      gofakeit.Email(),
		Name:       gofakeit.Name(),
		PassHash:   []byte("hash"),
		Generation: 1,
	}
	digest := gofakeit.UUID()
	acc.SetRefresh(digest, time.Now().Add(time.Hour))
	require.NoError(t, s.SaveAccount(ctx, acc))

	dup := &models.Account{Email: acc.Email, PassHash: []byte("hash")}
	require.ErrorIs(t, s.SaveAccount(ctx, dup), storage.ErrAccountExists)

	stale, err := s.AccountByRefreshDigest(ctx, digest)
	require.NoError(t, err)

	acc.RevokeAll()
	require.NoError(t, s.SaveAccount(ctx, acc))

	stale.ClearRefresh()
	require.ErrorIs(t, s.SaveAccount(ctx, stale), storage.ErrVersionConflict)

	_, err = s.AccountByRefreshDigest(ctx, digest)
	require.ErrorIs(t, err, storage.ErrAccountNotFound)

	loaded, err := s.AccountByEmail(ctx, acc.Email)
	require.NoError(t, err)
	assert.Equal(t, models.Generation(2), loaded.Generation)
	assert.False(t, loaded.HasRefresh())
	assert.Equal(t, models.Currency(""), loaded.Preferences.Currency)

	loaded.Preferences = models.DefaultPreferences()
	loaded.Preferences.Currency = models.CurrencyCAD
	require.NoError(t, s.SaveAccount(ctx, loaded))

	again, err := s.AccountByID(ctx, loaded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CurrencyCAD, again.Preferences.Currency)
}
