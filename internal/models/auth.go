package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the token payload identifying the authenticated principal.
type JWTClaims struct {
	UserID    string    `json:"userId"`
	Role      UserRole  `json:"role"`
	ClassName ClassName `json:"className,omitempty"`
	jwt.RegisteredClaims
}

// RegisterRequest holds the signup payload. ClassName is mandatory for
// students only.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=3"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	ClassName string `json:"className" validate:"omitempty,class_name"`
	Role      string `json:"role" validate:"omitempty,oneof=ADMIN STUDENT"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse returns the issued token and user info.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expiresIn"`
	IssuedAt  time.Time `json:"issuedAt"`
	User      User      `json:"user"`
}
