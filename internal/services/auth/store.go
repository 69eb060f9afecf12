package auth

import (
	"context"

	"subtrack/internal/domain/models"
)

// Every account store call runs under cfg.StoreTimeout.

func (a *Auth) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.StoreTimeout)
}

func (a *Auth) accountByEmail(ctx context.Context, email string) (*models.Account, error) {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()

	return a.accountProvider.AccountByEmail(ctx, email)
}

func (a *Auth) accountByID(ctx context.Context, id int64) (*models.Account, error) {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()

	return a.accountProvider.AccountByID(ctx, id)
}

func (a *Auth) accountByRefreshDigest(ctx context.Context, digest string) (*models.Account, error) {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()

	return a.accountProvider.AccountByRefreshDigest(ctx, digest)
}

func (a *Auth) save(ctx context.Context, acc *models.Account) error {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()

	return a.accountSaver.SaveAccount(ctx, acc)
}
