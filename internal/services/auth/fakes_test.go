package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"subtrack/internal/domain/models"
	"subtrack/internal/lib/jwt"
	"subtrack/internal/storage"
)

// memStore is an in-memory account store with the same compare-and-swap
// contract as the real ones.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]models.Account
	fail     error
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[int64]models.Account)}
}

func (s *memStore) setFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *memStore) get(id int64) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memStore) find(match func(models.Account) bool) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return nil, s.fail
	}
	for _, acc := range s.accounts {
		if match(acc) {
			cp := acc
			return &cp, nil
		}
	}
	return nil, storage.ErrAccountNotFound
}

func (s *memStore) AccountByEmail(_ context.Context, email string) (*models.Account, error) {
	return s.find(func(acc models.Account) bool { return acc.Email == email })
}

func (s *memStore) AccountByID(_ context.Context, id int64) (*models.Account, error) {
	return s.find(func(acc models.Account) bool { return acc.ID == id })
}

func (s *memStore) AccountByRefreshDigest(_ context.Context, digest string) (*models.Account, error) {
	if digest == "" {
		return nil, storage.ErrAccountNotFound
	}
	return s.find(func(acc models.Account) bool { return acc.RefreshDigest == digest })
}

func (s *memStore) SaveAccount(_ context.Context, acc *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return s.fail
	}

	for id, other := range s.accounts {
		if id != acc.ID && other.Email == acc.Email {
			return storage.ErrAccountExists
		}
	}

	if acc.Version == 0 {
		s.nextID++
		acc.ID = s.nextID
		acc.Version = 1
		s.accounts[acc.ID] = *acc
		return nil
	}

	stored, ok := s.accounts[acc.ID]
	if !ok || stored.Version != acc.Version {
		return storage.ErrVersionConflict
	}

	acc.Version++
	s.accounts[acc.ID] = *acc
	return nil
}

type blacklistEntry struct {
	expiresAt time.Time
}

// memCache records cache calls and honors TTLs against a clock.
type memCache struct {
	mu        sync.Mutex
	now       func() time.Time
	blacklist map[string]blacklistEntry
	ttls      map[string]time.Duration
	markers   map[int64]models.Generation
}

func newMemCache(now func() time.Time) *memCache {
	return &memCache{
		now:       now,
		blacklist: make(map[string]blacklistEntry),
		ttls:      make(map[string]time.Duration),
		markers:   make(map[int64]models.Generation),
	}
}

func (c *memCache) IsBlacklisted(_ context.Context, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.blacklist[token]
	return ok && c.now().Before(e.expiresAt), nil
}

func (c *memCache) Blacklist(_ context.Context, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		return nil
	}
	c.blacklist[token] = blacklistEntry{expiresAt: c.now().Add(ttl)}
	c.ttls[token] = ttl
	return nil
}

func (c *memCache) SetSessionMarker(_ context.Context, accountID int64, gen models.Generation, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers[accountID] = gen
	return nil
}

func (c *memCache) ClearSessionMarker(_ context.Context, accountID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markers, accountID)
	return nil
}

func (c *memCache) marker(accountID int64) (models.Generation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen, ok := c.markers[accountID]
	return gen, ok
}

var errCacheDown = errors.New("dial tcp: connection refused")

// downCache fails every call, as an unreachable backend would.
type downCache struct {
	calls int
	mu    sync.Mutex
}

func (c *downCache) hit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return errCacheDown
}

func (c *downCache) IsBlacklisted(context.Context, string) (bool, error) { return false, c.hit() }

func (c *downCache) Blacklist(context.Context, string, time.Duration) error { return c.hit() }

func (c *downCache) SetSessionMarker(context.Context, int64, models.Generation, time.Duration) error {
	return c.hit()
}

func (c *downCache) ClearSessionMarker(context.Context, int64) error { return c.hit() }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyIssuer delegates to a real issuer unless an error is set.
type flakyIssuer struct {
	*jwt.Issuer

	mintErr    error
	refreshErr error
}

func (i *flakyIssuer) Mint(accountID int64, email string, gen models.Generation, ttl time.Duration) (string, time.Time, error) {
	if i.mintErr != nil {
		return "", time.Time{}, i.mintErr
	}
	return i.Issuer.Mint(accountID, email, gen, ttl)
}

func (i *flakyIssuer) MintRefresh() (string, string, error) {
	if i.refreshErr != nil {
		return "", "", i.refreshErr
	}
	return i.Issuer.MintRefresh()
}
