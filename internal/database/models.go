package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the Bun row model for the users table.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid"`
	RoleID          int        `bun:"role_id,notnull,default:1"`
	FullName        string     `bun:"full_name,notnull"`
	Email           string     `bun:"email,notnull,unique"`
	PasswordHash    string     `bun:"password_hash,notnull"`
	EmailVerifiedAt *time.Time `bun:"email_verified_at"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Token is the Bun row model for the tokens table. A row references its owner
// but does not own the user's lifecycle; deleting tokens never touches users.
type Token struct {
	bun.BaseModel `bun:"table:tokens,alias:t"`

	ID        int64      `bun:"id,pk,autoincrement"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	Purpose   string     `bun:"purpose,notnull"`
	Value     string     `bun:"value,notnull"`
	ExpiresAt *time.Time `bun:"expires_at"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`

	Owner *User `bun:"rel:belongs-to,join:user_id=id"`
}
