package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"subtrack/internal/domain/models"
	"subtrack/internal/lib/sl"
	"subtrack/internal/metrics"
	"subtrack/internal/storage"
)

// maxSaveAttempts bounds reload-and-reapply cycles on version conflicts.
const maxSaveAttempts = 3

// Auth is the session authority. It issues, rotates, verifies and revokes
// tokens and keeps the account store and the session cache consistent.
// The account store is the only source of truth; the cache may be nil.
type Auth struct {
	log             *slog.Logger
	accountSaver    AccountSaver
	accountProvider AccountProvider
	hasher          CredentialHasher
	tokens          TokenIssuer
	cache           SessionCache
	metrics         *metrics.Metrics
	cfg             Config
	now             func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

type Config struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	StoreTimeout time.Duration
	CacheTimeout time.Duration
}

type AccountSaver interface {
	// SaveAccount inserts when Version is zero, otherwise writes only if the
	// stored version still equals acc.Version.
	SaveAccount(ctx context.Context, acc *models.Account) error
}

type AccountProvider interface {
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	AccountByRefreshDigest(ctx context.Context, digest string) (*models.Account, error)
}

type CredentialHasher interface {
	Hash(secret string) ([]byte, error)
	Verify(secret string, hash []byte) bool
}

type TokenIssuer interface {
	Mint(accountID int64, email string, gen models.Generation, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (models.AccessClaims, error)
	MintRefresh() (plaintext, digest string, err error)
	DigestOf(plaintext string) string
}

// SessionCache is the volatile blacklist and session-marker store. Failures
// are logged and skipped, never surfaced.
type SessionCache interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	SetSessionMarker(ctx context.Context, accountID int64, gen models.Generation, ttl time.Duration) error
	ClearSessionMarker(ctx context.Context, accountID int64) error
}

type Option func(*Auth)

// WithCache attaches a session cache. A nil cache leaves the authority
// running on the account store alone.
func WithCache(cache SessionCache) Option {
	return func(a *Auth) { a.cache = cache }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Auth) { a.metrics = m }
}

// WithClock overrides the time source used for refresh expiry and blacklist TTLs.
func WithClock(now func() time.Time) Option {
	return func(a *Auth) { a.now = now }
}

// New returns a new instance of the Auth service.
func New(
	log *slog.Logger,
	accountSaver AccountSaver,
	accountProvider AccountProvider,
	hasher CredentialHasher,
	tokens TokenIssuer,
	cfg Config,
	opts ...Option,
) *Auth {
	a := &Auth{
		log:             log,
		accountSaver:    accountSaver,
		accountProvider: accountProvider,
		hasher:          hasher,
		tokens:          tokens,
		cfg:             cfg,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register creates an account with default preferences and returns its
// first token pair. The access token needs the id assigned on insert, so it
// is minted after the account is stored; if minting fails the account exists
// and the caller recovers through Login.
func (a *Auth) Register(
	ctx context.Context,
	email string,
	secret string,
	name string,
) (pair models.TokenPair, acc *models.Account, err error) {
	const op = "auth.Register"
	defer func() { a.metrics.Observe("register", resultLabel(err)) }()

	email = NormalizeEmail(email)
	log := a.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)
	log.Info("register request")

	if email == "" || secret == "" {
		return models.TokenPair{}, nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	_, err = a.accountByEmail(ctx, email)
	switch {
	case err == nil:
		log.Warn("account already exists")
		return models.TokenPair{}, nil, fmt.Errorf("%s: %w", op, ErrConflict)
	case !errors.Is(err, storage.ErrAccountNotFound):
		log.Error("failed to look up account", sl.Err(err))
		return models.TokenPair{}, nil, fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}

	passHash, err := a.hasher.Hash(secret)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.TokenPair{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	acc = &models.Account{
		Email:       email,
		Name:        strings.TrimSpace(name),
		PassHash:    passHash,
		Preferences: models.DefaultPreferences(),
		Generation:  1,
	}

	// The account id is assigned on insert, so the refresh digest is
	// persisted with the account and the access token minted afterwards.
	refresh, err := a.rotateRefresh(acc)
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return models.TokenPair{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.save(ctx, acc); err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			log.Warn("account already exists", sl.Err(err))
			return models.TokenPair{}, nil, fmt.Errorf("%s: %w", op, ErrConflict)
		}
		log.Error("failed to save account", sl.Err(err))
		return models.TokenPair{}, nil, fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}

	pair, err = a.pair(acc, refresh)
	if err != nil {
		log.Error("account stored but access token not issued", slog.Int64("accountID", acc.ID), sl.Err(err))
		return models.TokenPair{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	a.setSessionMarker(ctx, log, acc)

	log.Info("account registered", slog.Int64("accountID", acc.ID))

	return pair, acc, nil
}

// Login verifies the secret and issues a token pair bound to the account's
// current generation. Only the refresh token is rotated.
func (a *Auth) Login(
	ctx context.Context,
	email string,
	secret string,
) (pair models.TokenPair, acc *models.Account, err error) {
	const op = "auth.Login"
	defer func() { a.metrics.Observe("login", resultLabel(err)) }()

	email = NormalizeEmail(email)
	log := a.log.With(slog.String("op", op))
	log.Info("login request", slog.String("email", email))

	if email == "" || secret == "" {
		return models.TokenPair{}, nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	acc, err = a.mutate(ctx,
		func(ctx context.Context) (*models.Account, error) {
			return a.accountByEmail(ctx, email)
		},
		func(acc *models.Account) error {
			if !a.hasher.Verify(secret, acc.PassHash) {
				return ErrUnauthorized
			}
			return a.issue(acc, &pair)
		},
	)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAccountNotFound):
			// Burn the same work as a real check so timing does not reveal
			// whether the email exists.
			a.hasher.Verify(secret, a.dummy())
			log.Warn("account not found")
			return models.TokenPair{}, nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		case errors.Is(err, ErrUnauthorized):
			log.Warn("invalid password")
			return models.TokenPair{}, nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		log.Error("failed to log in", sl.Err(err))
		return models.TokenPair{}, nil, a.storeFailure(op, err)
	}

	a.setSessionMarker(ctx, log, acc)

	log.Info("account logged in", slog.Int64("accountID", acc.ID))

	return pair, acc, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// single-use: its digest is overwritten in the same write that stores the
// new one, and a concurrent rotation makes the loser fail.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (pair models.TokenPair, err error) {
	const op = "auth.Refresh"
	defer func() { a.metrics.Observe("refresh", resultLabel(err)) }()

	log := a.log.With(slog.String("op", op))
	log.Info("refresh request")

	if refreshToken == "" {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	digest := a.tokens.DigestOf(refreshToken)

	acc, err := a.mutate(ctx,
		func(ctx context.Context) (*models.Account, error) {
			return a.accountByRefreshDigest(ctx, digest)
		},
		func(acc *models.Account) error {
			if acc.RefreshDigest != digest || !acc.RefreshValid(a.now()) {
				return ErrUnauthorized
			}
			return a.issue(acc, &pair)
		},
	)
	if err != nil {
		// Unknown, expired and already rotated tokens look the same outside.
		switch {
		case errors.Is(err, storage.ErrAccountNotFound):
			log.Warn("refresh token not found")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		case errors.Is(err, ErrUnauthorized):
			log.Warn("refresh token expired")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		case errors.Is(err, storage.ErrVersionConflict):
			log.Warn("refresh token rotated concurrently")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		log.Error("failed to rotate refresh token", sl.Err(err))
		return models.TokenPair{}, a.storeFailure(op, err)
	}

	a.setSessionMarker(ctx, log, acc)

	log.Info("tokens refreshed", slog.Int64("accountID", acc.ID))

	return pair, nil
}

// Logout ends the session that presented accessToken. It is idempotent:
// repeating it, or calling it for an account that no longer holds a refresh
// token, succeeds.
func (a *Auth) Logout(ctx context.Context, accessToken string, claims models.AccessClaims) (err error) {
	const op = "auth.Logout"
	defer func() { a.metrics.Observe("logout", resultLabel(err)) }()

	log := a.log.With(
		slog.String("op", op),
		slog.Int64("accountID", claims.AccountID),
	)
	log.Info("logout request")

	_, err = a.mutate(ctx,
		func(ctx context.Context) (*models.Account, error) {
			return a.accountByID(ctx, claims.AccountID)
		},
		func(acc *models.Account) error {
			if !acc.HasRefresh() {
				return errUnchanged
			}
			acc.ClearRefresh()
			return nil
		},
	)
	if err != nil && !errors.Is(err, storage.ErrAccountNotFound) {
		log.Error("failed to clear refresh token", sl.Err(err))
		return a.storeFailure(op, err)
	}

	// An already expired token is inert and is not blacklisted.
	if ttl := claims.Remaining(a.now()); ttl > 0 && accessToken != "" {
		a.blacklist(ctx, log, accessToken, ttl)
	}
	a.clearSessionMarker(ctx, log, claims.AccountID)

	log.Info("logged out")

	return nil
}

// LogoutAllDevices advances the account generation, which invalidates every
// access token minted so far, and drops the refresh token.
func (a *Auth) LogoutAllDevices(ctx context.Context, accountID int64) (err error) {
	const op = "auth.LogoutAllDevices"
	defer func() { a.metrics.Observe("logout_all", resultLabel(err)) }()

	log := a.log.With(
		slog.String("op", op),
		slog.Int64("accountID", accountID),
	)
	log.Info("logout all devices request")

	acc, err := a.mutate(ctx,
		func(ctx context.Context) (*models.Account, error) {
			return a.accountByID(ctx, accountID)
		},
		func(acc *models.Account) error {
			acc.RevokeAll()
			return nil
		},
	)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("account not found")
			return fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		log.Error("failed to revoke sessions", sl.Err(err))
		return a.storeFailure(op, err)
	}

	a.clearSessionMarker(ctx, log, accountID)

	log.Info("all sessions revoked", slog.Uint64("generation", uint64(acc.Generation)))

	return nil
}

// ChangePassword replaces the secret and advances the generation, so every
// other session ends. The caller gets a fresh pair to continue with.
func (a *Auth) ChangePassword(
	ctx context.Context,
	accountID int64,
	currentSecret string,
	newSecret string,
) (pair models.TokenPair, err error) {
	const op = "auth.ChangePassword"
	defer func() { a.metrics.Observe("change_password", resultLabel(err)) }()

	log := a.log.With(
		slog.String("op", op),
		slog.Int64("accountID", accountID),
	)
	log.Info("change password request")

	if newSecret == "" {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	newHash, err := a.hasher.Hash(newSecret)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	acc, err := a.mutate(ctx,
		func(ctx context.Context) (*models.Account, error) {
			return a.accountByID(ctx, accountID)
		},
		func(acc *models.Account) error {
			if !a.hasher.Verify(currentSecret, acc.PassHash) {
				return ErrInvalidCredential
			}
			acc.PassHash = newHash
			acc.Generation = acc.Generation.Next()
			return a.issue(acc, &pair)
		},
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredential):
			log.Warn("current password is incorrect")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredential)
		case errors.Is(err, storage.ErrAccountNotFound):
			log.Warn("account not found")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		log.Error("failed to change password", sl.Err(err))
		return models.TokenPair{}, a.storeFailure(op, err)
	}

	a.setSessionMarker(ctx, log, acc)

	log.Info("password changed", slog.Uint64("generation", uint64(acc.Generation)))

	return pair, nil
}

// VerifyRequest admits a request carrying accessToken. Checks run cheapest
// first: signature and expiry, blacklist, account lookup, generation.
func (a *Auth) VerifyRequest(ctx context.Context, accessToken string) (p *models.Principal, err error) {
	const op = "auth.VerifyRequest"
	defer func() { a.metrics.Observe("verify", resultLabel(err)) }()

	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.Verify(accessToken)
	if err != nil {
		log.Debug("token rejected", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	log = log.With(slog.Int64("accountID", claims.AccountID))

	if a.isBlacklisted(ctx, log, accessToken) {
		log.Debug("token is blacklisted")
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	acc, err := a.accountByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("account not found")
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		log.Error("failed to load account", sl.Err(err))
		return nil, a.storeFailure(op, err)
	}

	if claims.Generation != acc.Generation {
		log.Debug("token generation mismatch",
			slog.Uint64("token", uint64(claims.Generation)),
			slog.Uint64("account", uint64(acc.Generation)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	return &models.Principal{
		Token:   accessToken,
		Claims:  claims,
		Account: acc,
	}, nil
}

// Profile returns the account of an authenticated caller.
func (a *Auth) Profile(ctx context.Context, accountID int64) (acc *models.Account, err error) {
	const op = "auth.Profile"
	defer func() { a.metrics.Observe("profile", resultLabel(err)) }()

	log := a.log.With(
		slog.String("op", op),
		slog.Int64("accountID", accountID),
	)

	acc, err = a.accountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("account not found")
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		log.Error("failed to load account", sl.Err(err))
		return nil, a.storeFailure(op, err)
	}

	return acc, nil
}

// UpdateProfile changes the display name, email and preferences. Empty
// values are left untouched.
func (a *Auth) UpdateProfile(ctx context.Context, accountID int64, upd models.ProfileUpdate) (acc *models.Account, err error) {
	const op = "auth.UpdateProfile"
	defer func() { a.metrics.Observe("update_profile", resultLabel(err)) }()

	log := a.log.With(
		slog.String("op", op),
		slog.Int64("accountID", accountID),
	)
	log.Info("update profile request")

	name := strings.TrimSpace(upd.Name)
	email := NormalizeEmail(upd.Email)

	if upd.Preferences != nil && upd.Preferences.Currency != "" && !upd.Preferences.Currency.Valid() {
		log.Warn("unsupported currency", slog.String("currency", string(upd.Preferences.Currency)))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	acc, err = a.mutate(ctx,
		func(ctx context.Context) (*models.Account, error) {
			return a.accountByID(ctx, accountID)
		},
		func(acc *models.Account) error {
			changed := false
			if name != "" && name != acc.Name {
				acc.Name = name
				changed = true
			}
			if email != "" && email != acc.Email {
				acc.Email = email
				changed = true
			}
			if upd.Preferences != nil && upd.Preferences.Apply(&acc.Preferences) {
				changed = true
			}
			if !changed {
				return errUnchanged
			}
			return nil
		},
	)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAccountExists):
			log.Warn("email already taken")
			return nil, fmt.Errorf("%s: %w", op, ErrConflict)
		case errors.Is(err, storage.ErrAccountNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		log.Error("failed to update profile", sl.Err(err))
		return nil, a.storeFailure(op, err)
	}

	log.Info("profile updated")

	return acc, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// mutate loads an account, applies change and writes the whole snapshot with
// compare-and-swap. On a version conflict it reloads and reapplies, up to
// maxSaveAttempts times. A change returning errUnchanged skips the write.
func (a *Auth) mutate(
	ctx context.Context,
	load func(context.Context) (*models.Account, error),
	change func(*models.Account) error,
) (*models.Account, error) {
	var lastErr error

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		acc, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if err := change(acc); err != nil {
			if errors.Is(err, errUnchanged) {
				return acc, nil
			}
			return nil, err
		}

		err = a.save(ctx, acc)
		if err == nil {
			return acc, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// issue rotates the refresh token on acc and mints an access token bound to
// acc's generation. Both land in pair; the caller persists acc.
func (a *Auth) issue(acc *models.Account, pair *models.TokenPair) error {
	refresh, err := a.rotateRefresh(acc)
	if err != nil {
		return fmt.Errorf("%w: %w", errIssue, err)
	}

	p, err := a.pair(acc, refresh)
	if err != nil {
		return fmt.Errorf("%w: %w", errIssue, err)
	}

	*pair = p
	return nil
}

func (a *Auth) rotateRefresh(acc *models.Account) (string, error) {
	plain, digest, err := a.tokens.MintRefresh()
	if err != nil {
		return "", err
	}

	acc.SetRefresh(digest, a.now().Add(a.cfg.RefreshTTL))

	return plain, nil
}

func (a *Auth) pair(acc *models.Account, refresh string) (models.TokenPair, error) {
	access, _, err := a.tokens.Mint(acc.ID, acc.Email, acc.Generation, a.cfg.AccessTTL)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    a.cfg.AccessTTL,
	}, nil
}

// storeFailure wraps an unexpected account store error as transient.
// Token minting failures are not store outages and stay internal.
func (a *Auth) storeFailure(op string, err error) error {
	if errors.Is(err, errIssue) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

// dummy returns a hash used to equalize login timing for unknown emails.
func (a *Auth) dummy() []byte {
	a.dummyOnce.Do(func() {
		hash, err := a.hasher.Hash("subtrack-dummy-secret")
		if err == nil {
			a.dummyHash = hash
		}
	})
	return a.dummyHash
}
