package auth

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"subtrack/internal/domain/models"
	"subtrack/internal/services/auth"
)

type Auth interface {
	Register(
		ctx context.Context,
		email string,
		password string,
		name string,
	) (models.TokenPair, *models.Account, error)
	Login(
		ctx context.Context,
		email string,
		password string,
	) (models.TokenPair, *models.Account, error)
	Refresh(
		ctx context.Context,
		refreshToken string,
	) (models.TokenPair, error)
	Logout(
		ctx context.Context,
		accessToken string,
		claims models.AccessClaims,
	) error
	LogoutAllDevices(
		ctx context.Context,
		accountID int64,
	) error
	ChangePassword(
		ctx context.Context,
		accountID int64,
		currentPassword string,
		newPassword string,
	) (models.TokenPair, error)
	Profile(
		ctx context.Context,
		accountID int64,
	) (*models.Account, error)
	UpdateProfile(
		ctx context.Context,
		accountID int64,
		upd models.ProfileUpdate,
	) (*models.Account, error)
}

type serverAPI struct {
	auth     Auth
	validate *validator.Validate
}

func Register(gRPC *grpc.Server, auth Auth) {
	gRPC.RegisterService(&serviceDesc, &serverAPI{
		auth:     auth,
		validate: newValidator(),
	})
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *serverAPI) Register(
	ctx context.Context,
	req *RegisterRequest,
) (*TokenResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	pair, acc, err := s.auth.Register(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}

	return tokenResponse(pair, acc), nil
}

func (s *serverAPI) Login(
	ctx context.Context,
	req *LoginRequest,
) (*TokenResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	pair, acc, err := s.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus(err)
	}

	return tokenResponse(pair, acc), nil
}

func (s *serverAPI) Refresh(
	ctx context.Context,
	req *RefreshRequest,
) (*TokenResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	pair, err := s.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, toStatus(err)
	}

	return tokenResponse(pair, nil), nil
}

func (s *serverAPI) Logout(ctx context.Context, _ *Empty) (*Empty, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.auth.Logout(ctx, p.Token, p.Claims); err != nil {
		return nil, toStatus(err)
	}

	return &Empty{}, nil
}

func (s *serverAPI) LogoutAll(ctx context.Context, _ *Empty) (*Empty, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.auth.LogoutAllDevices(ctx, p.Claims.AccountID); err != nil {
		return nil, toStatus(err)
	}

	return &Empty{}, nil
}

func (s *serverAPI) ChangePassword(
	ctx context.Context,
	req *ChangePasswordRequest,
) (*TokenResponse, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	pair, err := s.auth.ChangePassword(ctx, p.Claims.AccountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return nil, toStatus(err)
	}

	return tokenResponse(pair, nil), nil
}

func (s *serverAPI) Profile(ctx context.Context, _ *Empty) (*User, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	acc, err := s.auth.Profile(ctx, p.Claims.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}

	return toUser(acc), nil
}

func (s *serverAPI) UpdateProfile(
	ctx context.Context,
	req *UpdateProfileRequest,
) (*User, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	upd := models.ProfileUpdate{
		Name:  req.Name,
		Email: req.Email,
	}
	if req.Preferences != nil {
		upd.Preferences = &models.PreferencesUpdate{
			Currency: models.Currency(req.Preferences.Currency),
		}
		if n := req.Preferences.Notifications; n != nil {
			upd.Preferences.EmailNotifications = n.Email
			upd.Preferences.PushNotifications = n.Push
		}
	}
	if upd.Name == "" && upd.Email == "" && !hasPreferenceChange(upd.Preferences) {
		return nil, status.Error(codes.InvalidArgument, "nothing to update")
	}

	acc, err := s.auth.UpdateProfile(ctx, p.Claims.AccountID, upd)
	if err != nil {
		return nil, toStatus(err)
	}

	return toUser(acc), nil
}

func hasPreferenceChange(p *models.PreferencesUpdate) bool {
	if p == nil {
		return false
	}
	return p.Currency != "" || p.EmailNotifications != nil || p.PushNotifications != nil
}

func (s *serverAPI) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return status.Error(codes.InvalidArgument, "invalid request")
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msgs = append(msgs, fieldMessage(fe))
	}

	return status.Error(codes.InvalidArgument, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return field + " must be one of " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// toStatus maps service errors to gRPC statuses. Nothing below the
// service taxonomy reaches the caller.
func toStatus(err error) error {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, auth.ErrConflict):
		return status.Error(codes.AlreadyExists, "user already exists")
	case errors.Is(err, auth.ErrInvalidCredential):
		return status.Error(codes.InvalidArgument, "current password is incorrect")
	case errors.Is(err, auth.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, "invalid argument")
	case errors.Is(err, auth.ErrTransient):
		return status.Error(codes.Unavailable, "service temporarily unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func tokenResponse(pair models.TokenPair, acc *models.Account) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
	}
	if acc != nil {
		resp.User = toUser(acc)
	}
	return resp
}

func toUser(acc *models.Account) *User {
	prefs := Preferences{
		Currency: string(acc.Preferences.Currency),
		Notifications: NotificationSettings{
			Email: acc.Preferences.Notifications.Email,
			Push:  acc.Preferences.Notifications.Push,
		},
	}

	return &User{
		ID:          acc.ID,
		Email:       acc.Email,
		Name:        acc.Name,
		Preferences: prefs,
		CreatedAt:   acc.CreatedAt,
		UpdatedAt:   acc.UpdatedAt,
	}
}
