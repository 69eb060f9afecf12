package auth

import (
	"context"
	"log/slog"
	"time"

	"subtrack/internal/domain/models"
	"subtrack/internal/lib/sl"
)

// The helpers below never fail an operation: a missing or unreachable cache
// is logged, counted and treated as a miss.

func (a *Auth) cacheCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.CacheTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.CacheTimeout)
}

func (a *Auth) degraded(log *slog.Logger, op string, err error) {
	log.Warn("session cache unavailable", slog.String("cacheOp", op), sl.Err(err))
	a.metrics.CacheDegraded(op)
}

func (a *Auth) isBlacklisted(ctx context.Context, log *slog.Logger, token string) bool {
	if a.cache == nil {
		return false
	}

	ctx, cancel := a.cacheCtx(ctx)
	defer cancel()

	ok, err := a.cache.IsBlacklisted(ctx, token)
	if err != nil {
		a.degraded(log, "is_blacklisted", err)
		return false
	}
	return ok
}

func (a *Auth) blacklist(ctx context.Context, log *slog.Logger, token string, ttl time.Duration) {
	if a.cache == nil {
		return
	}

	ctx, cancel := a.cacheCtx(ctx)
	defer cancel()

	if err := a.cache.Blacklist(ctx, token, ttl); err != nil {
		a.degraded(log, "blacklist", err)
	}
}

func (a *Auth) setSessionMarker(ctx context.Context, log *slog.Logger, acc *models.Account) {
	if a.cache == nil {
		return
	}

	ctx, cancel := a.cacheCtx(ctx)
	defer cancel()

	if err := a.cache.SetSessionMarker(ctx, acc.ID, acc.Generation, a.cfg.AccessTTL); err != nil {
		a.degraded(log, "set_session_marker", err)
	}
}

func (a *Auth) clearSessionMarker(ctx context.Context, log *slog.Logger, accountID int64) {
	if a.cache == nil {
		return
	}

	ctx, cancel := a.cacheCtx(ctx)
	defer cancel()

	if err := a.cache.ClearSessionMarker(ctx, accountID); err != nil {
		a.degraded(log, "clear_session_marker", err)
	}
}
