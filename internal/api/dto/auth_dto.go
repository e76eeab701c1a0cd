package dto

import "time"

// LoginRequest carries the upstream access token produced by the OAuth2 exchange.
type LoginRequest struct {
	AccessToken string `json:"access_token"`
}

// UserResponse describes the authenticated user.
type UserResponse struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
