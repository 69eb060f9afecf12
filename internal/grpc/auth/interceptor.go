package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"subtrack/internal/domain/models"
)

const (
	authorizationHeader = "authorization"
	requestIDHeader     = "x-request-id"
	bearerPrefix        = "bearer "
)

type ctxKey string

const principalKey ctxKey = "principal"

// protectedMethods require a verified access token.
var protectedMethods = map[string]bool{
	MethodLogout:         true,
	MethodLogoutAll:      true,
	MethodChangePassword: true,
	MethodProfile:        true,
	MethodUpdateProfile:  true,
}

type RequestVerifier interface {
	VerifyRequest(ctx context.Context, accessToken string) (*models.Principal, error)
}

// AuthInterceptor admits calls to protected methods only with a bearer token
// that passes verification, and stores the principal in the context.
func AuthInterceptor(verifier RequestVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !protectedMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		token := bearerToken(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		p, err := verifier.VerifyRequest(ctx, token)
		if err != nil {
			return nil, toStatus(err)
		}

		return handler(context.WithValue(ctx, principalKey, p), req)
	}
}

// TimeoutInterceptor bounds every call to d. A non-positive d disables it.
func TimeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		return handler(ctx, req)
	}
}

// LoggingInterceptor tags every call with a request id, returned to the
// caller in the x-request-id header, and logs its outcome.
func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := ulid.Make().String()

		log := log.With(
			slog.String("method", info.FullMethod),
			slog.String("requestID", requestID),
		)

		// Fails only outside a real server stream, e.g. when called directly.
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		attrs := []any{
			slog.String("code", code.String()),
			slog.Duration("duration", time.Since(start)),
		}

		switch code {
		case codes.OK:
			log.Info("request completed", attrs...)
		case codes.Internal, codes.Unavailable, codes.Unknown:
			log.Error("request failed", append(attrs, slog.String("error", status.Convert(err).Message()))...)
		default:
			log.Warn("request rejected", attrs...)
		}

		return resp, err
	}
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	values := md.Get(authorizationHeader)
	if len(values) == 0 {
		return ""
	}

	v := strings.TrimSpace(values[0])
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}

	return strings.TrimSpace(v[len(bearerPrefix):])
}

func principalFrom(ctx context.Context) (*models.Principal, error) {
	p, ok := ctx.Value(principalKey).(*models.Principal)
	if !ok || p == nil {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	return p, nil
}
