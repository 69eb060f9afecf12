package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"subtrack/internal/domain/models"
	authsvc "subtrack/internal/services/auth"
)

type verifierFunc func(ctx context.Context, token string) (*models.Principal, error)

func (f verifierFunc) VerifyRequest(ctx context.Context, token string) (*models.Principal, error) {
	return f(ctx, token)
}

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestAuthInterceptor_PublicMethodSkipsVerification(t *testing.T) {
	interceptor := AuthInterceptor(verifierFunc(func(context.Context, string) (*models.Principal, error) {
		t.Fatal("verifier must not be called for public methods")
		return nil, nil
	}))

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: MethodLogin},
		func(ctx context.Context, req any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestAuthInterceptor_StoresPrincipal(t *testing.T) {
	want := &models.Principal{Token: "abc", Claims: models.AccessClaims{AccountID: 7}}

	interceptor := AuthInterceptor(verifierFunc(func(_ context.Context, token string) (*models.Principal, error) {
		assert.Equal(t, "abc", token)
		return want, nil
	}))

	var got *models.Principal
	_, err := interceptor(incoming("authorization", "bearer abc"), nil, &grpc.UnaryServerInfo{FullMethod: MethodProfile},
		func(ctx context.Context, req any) (any, error) {
			p, err := principalFrom(ctx)
			got = p
			return nil, err
		})
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestAuthInterceptor_FailCases(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		verify  error
		code    codes.Code
		message string
	}{
		{
			name:    "no metadata",
			ctx:     context.Background(),
			code:    codes.Unauthenticated,
			message: "missing token",
		},
		{
			name:    "wrong scheme",
			ctx:     incoming("authorization", "Basic dXNlcjpwYXNz"),
			code:    codes.Unauthenticated,
			message: "missing token",
		},
		{
			name:    "rejected token",
			ctx:     incoming("authorization", "Bearer abc"),
			verify:  fmt.Errorf("auth.VerifyRequest: %w", authsvc.ErrUnauthorized),
			code:    codes.Unauthenticated,
			message: "unauthorized",
		},
		{
			name:    "store down",
			ctx:     incoming("authorization", "Bearer abc"),
			verify:  fmt.Errorf("auth.VerifyRequest: %w: %w", authsvc.ErrTransient, fmt.Errorf("dial tcp: refused")),
			code:    codes.Unavailable,
			message: "service temporarily unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interceptor := AuthInterceptor(verifierFunc(func(context.Context, string) (*models.Principal, error) {
				return nil, tt.verify
			}))

			_, err := interceptor(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: MethodLogoutAll},
				func(ctx context.Context, req any) (any, error) {
					t.Fatal("handler should not be called")
					return nil, nil
				})

			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, st.Code())
			assert.Equal(t, tt.message, st.Message())
		})
	}
}

func TestTimeoutInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: MethodLogin}

	_, err := TimeoutInterceptor(time.Minute)(context.Background(), nil, info,
		func(ctx context.Context, req any) (any, error) {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
			return nil, nil
		})
	require.NoError(t, err)

	_, err = TimeoutInterceptor(0)(context.Background(), nil, info,
		func(ctx context.Context, req any) (any, error) {
			_, ok := ctx.Deadline()
			assert.False(t, ok)
			return nil, nil
		})
	require.NoError(t, err)
}

func TestToStatus_HidesInternals(t *testing.T) {
	err := toStatus(fmt.Errorf("storage.sqlite.SaveAccount: disk I/O error"))

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
}
