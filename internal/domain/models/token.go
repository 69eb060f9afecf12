package models

import "time"

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	AccountID  int64
	Email      string
	Generation Generation
	ExpiresAt  time.Time
}

// Remaining returns the lifetime left at now, floored at zero.
func (c AccessClaims) Remaining(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// TokenPair is handed to the caller on every issuance or rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Principal is an authenticated request: the presented token, its claims
// and the account they were checked against.
type Principal struct {
	Token   string
	Claims  AccessClaims
	Account *Account
}
