package model

import (
	"github.com/google/uuid"
)

// User roles
const (
	RoleUser      = "end-user"
	RoleClinician = "clinician"
	RoleAdmin     = "admin"
)

// Account status constants
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusRejected = "rejected"
	StatusDisabled = "disabled"
)

// User is the stored shape of a principal. Name, gender, birthdate and
// position live only inside the encoded SensitiveData column; everything else
// is the queryable cleartext envelope.
type User struct {
	Base
	Email         string  `json:"email" db:"email"`
	Role          string  `json:"role" db:"role"`
	Status        string  `json:"status" db:"status"`
	MFAEnabled    bool    `json:"mfaEnabled" db:"mfa_enabled"`
	MFASecret     *string `json:"-" db:"mfa_secret"`
	PasswordHash  string  `json:"-" db:"password_hash"`
	SensitiveData string  `json:"-" db:"sensitive_data"`
}

// UserSensitive is the cleartext demographic tuple collapsed into the
// protected payload of a User record.
type UserSensitive struct {
	Name      string `json:"name"`
	Gender    string `json:"gender"`
	Birthdate string `json:"birthdate"`
	Position  string `json:"position,omitempty"`
}

// Principal is the authenticated actor attached to a request context.
type Principal struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	MFAEnabled bool      `json:"mfaEnabled"`
}

// UserView is a reconstructed logical user record with the protected
// demographic fields unwrapped at the top level.
type UserView struct {
	Base
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	Status     string  `json:"status"`
	MFAEnabled bool    `json:"mfaEnabled"`
	Name       *string `json:"name,omitempty"`
	Gender     *string `json:"gender,omitempty"`
	Birthdate  *string `json:"birthdate,omitempty"`
	Position   *string `json:"position,omitempty"`
}

// RegisterRequest represents self-service registration parameters
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Name      string `json:"name" binding:"required"`
	Gender    string `json:"gender" binding:"required"`
	Birthdate string `json:"birthdate" binding:"required,datetime=2006-01-02,pastdate"`
	Role      string `json:"role" binding:"required,oneof=end-user clinician"`
	Position  string `json:"position"`
}

// RegisterResponse carries the verification link for the new account.
type RegisterResponse struct {
	ID               uuid.UUID `json:"id"`
	Status           string    `json:"status"`
	VerificationLink string    `json:"verificationLink"`
}

// CreateProfileRequest creates a user record for an identity that already
// exists at the identity provider.
type CreateProfileRequest struct {
	ID        string `json:"id" binding:"required,uuid"`
	Email     string `json:"email" binding:"required,email"`
	Name      string `json:"name" binding:"required"`
	Gender    string `json:"gender" binding:"required"`
	Birthdate string `json:"birthdate" binding:"required,datetime=2006-01-02,pastdate"`
	Role      string `json:"role" binding:"required,oneof=end-user clinician admin"`
	Position  string `json:"position"`
}

// UpdateStatusRequest represents an admin account decision.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active pending rejected disabled"`
	Reason string `json:"reason"`
}
