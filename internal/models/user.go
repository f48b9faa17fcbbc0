package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole mirrors the platform's historical group codes.
type UserRole string

// Platform roles, from broadest administrative scope to narrowest.
const (
	RoleOperator                   UserRole = "REF-TEC"
	RoleMasterEstablishmentManager UserRole = "REF-ETAB-MAITRE"
	RoleEstablishmentManager       UserRole = "REF-ETAB"
	RoleStructureManager           UserRole = "REF-STR"
	RoleHighSchoolManager          UserRole = "REF-LYC"
	RoleStructureObserver          UserRole = "CONS-STR"
	RoleSpeaker                    UserRole = "INTER"
	RoleStudent                    UserRole = "ETU"
	RolePupil                      UserRole = "LYC"
	RoleVisitor                    UserRole = "VIS"
)

// ImmersionUser is any account on the platform.
type ImmersionUser struct {
	ID                string     `db:"id" json:"id"`
	Email             string     `db:"email" json:"email"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	FirstName         string     `db:"first_name" json:"first_name"`
	LastName          string     `db:"last_name" json:"last_name"`
	Role              UserRole   `db:"role" json:"role"`
	Superuser         bool       `db:"superuser" json:"superuser"`
	Active            bool       `db:"active" json:"active"`
	EstablishmentID   *string    `db:"establishment_id" json:"establishment_id,omitempty"`
	HighSchoolID      *string    `db:"highschool_id" json:"highschool_id,omitempty"`
	CreationEmailSent bool       `db:"creation_email_sent" json:"creation_email_sent"`
	EmailChangeDate   *time.Time `db:"email_change_date" json:"email_change_date,omitempty"`
	LastLogin         *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// IsManager reports whether the role sits on the administrative ladder.
func (u ImmersionUser) IsManager() bool {
	switch u.Role {
	case RoleOperator, RoleMasterEstablishmentManager, RoleEstablishmentManager,
		RoleStructureManager, RoleHighSchoolManager:
		return true
	}
	return u.Superuser
}

// IsRegistrant reports whether the user registers to slots on their own
// behalf (pupil, post-bac student or external visitor).
func (u ImmersionUser) IsRegistrant() bool {
	switch u.Role {
	case RolePupil, RoleStudent, RoleVisitor:
		return true
	}
	return false
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Role      UserRole `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens. HijackedBy is
// set when the token was issued through the acting-as flow.
type JWTClaims struct {
	UserID     string   `json:"user_id"`
	Role       UserRole `json:"role"`
	Email      string   `json:"email"`
	Superuser  bool     `json:"superuser,omitempty"`
	HijackedBy string   `json:"hijacked_by,omitempty"`
	jwt.RegisteredClaims
}
