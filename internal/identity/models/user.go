package models

import (
	"net/mail"
	"strings"
	"time"

	id "kvault/pkg/domain"
	dErrors "kvault/pkg/domain-errors"
	"kvault/pkg/email"
)

// User is an account bound to one region. Role and region are fixed at creation.
type User struct {
	ID           id.UserID
	Name         string
	Email        string
	PasswordHash string
	Role         id.Role
	RegionID     id.RegionID
	CreatedAt    time.Time
}

func NewUser(userID id.UserID, name, email, passwordHash string, role id.Role, regionID id.RegionID, now time.Time) (*User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user name cannot be empty")
	}
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user email cannot be empty")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user credential cannot be empty")
	}
	if regionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user region cannot be empty")
	}
	switch role {
	case id.RoleUser, id.RoleAdmin, id.RoleReviewer:
	default:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown role")
	}
	return &User{
		ID:           userID,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		RegionID:     regionID,
		CreatedAt:    now,
	}, nil
}

// Actor is the request identity derived from this user.
func (u *User) Actor() id.Actor {
	return id.Actor{ID: u.ID, Role: u.Role, RegionID: u.RegionID}
}

// NormalizeEmail lowercases and trims so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserView is the public projection of a user; it never carries the credential hash.
type UserView struct {
	ID        id.UserID   `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      id.Role     `json:"role"`
	RegionID  id.RegionID `json:"regionId"`
	CreatedAt time.Time   `json:"createdAt"`
}

func (u *User) View() UserView {
	return UserView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		RegionID:  u.RegionID,
		CreatedAt: u.CreatedAt,
	}
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RegionID string `json:"regionId"`
}

func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	r.RegionID = strings.TrimSpace(r.RegionID)
	if r.Name == "" && r.Email != "" {
		r.Name = email.DisplayName(r.Email)
	}
}

func (r *RegisterRequest) Validate() error {
	if r.Name == "" || r.Email == "" || r.Password == "" || r.RegionID == "" {
		return dErrors.New(dErrors.CodeValidation, "email, password and region are required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if len(r.Name) > 128 {
		return dErrors.New(dErrors.CodeValidation, "name must be 128 characters or less")
	}
	return nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password required")
	}
	return nil
}

// AuthResult is returned by register and login.
type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserView  `json:"user"`
}
