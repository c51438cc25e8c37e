package user

import (
	"time"

	"github.com/google/uuid"

	"github.com/mossline/account-api/internal/database"
)

// Role tags. Coarse authorization only; there is no permission engine behind
// these.
const (
	RoleUser  = 1
	RoleAdmin = 2
)

type User struct {
	ID              uuid.UUID  `json:"id"`
	RoleID          int        `json:"role_id"`
	FullName        string     `json:"full_name"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"` // Never expose password hash in JSON
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EmailVerified reports whether the verify-email flow has completed for this
// user.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// FromRecord converts a database row into the domain model.
func FromRecord(dbu *database.User) *User {
	return &User{
		ID:              dbu.ID,
		RoleID:          dbu.RoleID,
		FullName:        dbu.FullName,
		Email:           dbu.Email,
		PasswordHash:    dbu.PasswordHash,
		EmailVerifiedAt: dbu.EmailVerifiedAt,
		CreatedAt:       dbu.CreatedAt,
		UpdatedAt:       dbu.UpdatedAt,
	}
}
