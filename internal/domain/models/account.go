package models

import "time"

// Generation is the revocation epoch of an account. Access tokens embed the
// generation current at mint time and stop verifying once it advances.
type Generation uint64

// Next returns the generation that supersedes g.
func (g Generation) Next() Generation { return g + 1 }

// Account is the durable identity record.
type Account struct {
	ID       int64
	Email    string
	Name     string
	PassHash []byte

	Preferences Preferences

	Generation Generation

	// RefreshDigest and RefreshExpiresAt are both set or both zero.
	RefreshDigest    string
	RefreshExpiresAt time.Time

	// Version is bumped by the store on every successful save and is used
	// for compare-and-swap writes. Zero means not yet persisted.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRefresh reports whether the account holds a refresh digest.
func (a *Account) HasRefresh() bool {
	return a.RefreshDigest != ""
}

// SetRefresh replaces the current refresh digest. Rotation never appends.
func (a *Account) SetRefresh(digest string, expiresAt time.Time) {
	a.RefreshDigest = digest
	a.RefreshExpiresAt = expiresAt
}

// ClearRefresh drops the refresh digest together with its expiry.
func (a *Account) ClearRefresh() {
	a.RefreshDigest = ""
	a.RefreshExpiresAt = time.Time{}
}

// RefreshValid reports whether a refresh digest is held and not expired at now.
func (a *Account) RefreshValid(now time.Time) bool {
	return a.HasRefresh() && now.Before(a.RefreshExpiresAt)
}

// RevokeAll advances the generation and drops the refresh digest, which
// invalidates every access and refresh token issued so far.
func (a *Account) RevokeAll() {
	a.Generation = a.Generation.Next()
	a.ClearRefresh()
}
