package auth

import "time"

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required,min=2,max=50"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

type UpdateProfileRequest struct {
	Name        string              `json:"name,omitempty" validate:"omitempty,min=2,max=50"`
	Email       string              `json:"email,omitempty" validate:"omitempty,email"`
	Preferences *PreferencesRequest `json:"preferences,omitempty"`
}

// PreferencesRequest is a partial change; absent fields are kept.
type PreferencesRequest struct {
	Currency      string               `json:"currency,omitempty" validate:"omitempty,oneof=USD EUR GBP CAD AUD"`
	Notifications *NotificationsRequest `json:"notifications,omitempty"`
}

type NotificationsRequest struct {
	Email *bool `json:"email,omitempty"`
	Push  *bool `json:"push,omitempty"`
}

type Empty struct{}

// TokenResponse is returned by every call that issues credentials.
// ExpiresIn is the access token lifetime in seconds.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *User  `json:"user,omitempty"`
}

type User struct {
	ID          int64       `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type Preferences struct {
	Currency      string               `json:"currency"`
	Notifications NotificationSettings `json:"notifications"`
}

type NotificationSettings struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
}
