package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the tagged variant that decides which dashboard a user gets.
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleTenant, RoleLandlord, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"user_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRecord is the server-side row, password hash included.
type UserRecord struct {
	User
	PasswordHash []byte
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type RegisterRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	Phone                string `json:"phone,omitempty" validate:"omitempty,min=7,max=20"`
	Role                 Role   `json:"user_type" validate:"required,oneof=tenant landlord"`
}

// AuthResult is the data part of login/register responses.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// SavedCredentials is the remember-me blob kept on the device.
type SavedCredentials struct {
	Email          string    `json:"email"`
	SealedPassword string    `json:"sealedPassword"`
	RememberMe     bool      `json:"rememberMe"`
	LastUsed       time.Time `json:"lastUsed"`
}
