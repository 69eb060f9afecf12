package auth

import (
	"errors"

	"subtrack/internal/metrics"
)

var (
	// ErrUnauthorized covers every rejected credential or token. Callers
	// never learn which check failed.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict is returned when the email is already taken.
	ErrConflict = errors.New("account already exists")
	// ErrInvalidCredential is returned by ChangePassword when the current
	// password does not match.
	ErrInvalidCredential = errors.New("current password is incorrect")
	// ErrTransient means the account store could not be reached; retryable.
	ErrTransient = errors.New("account store unavailable")
	// ErrInvalidArgument is returned for empty emails or secrets.
	ErrInvalidArgument = errors.New("invalid argument")
)

// errUnchanged tells mutate that the account needs no write.
var errUnchanged = errors.New("unchanged")

// errIssue marks a token minting failure inside a mutation.
var errIssue = errors.New("failed to issue tokens")

// resultLabel maps an operation outcome to a metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return metrics.ResultError
	}
}
