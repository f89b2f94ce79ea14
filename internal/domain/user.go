package domain

import "time"

type UserRole string

const (
	UserRoleAdmin UserRole = "ADMIN"
	UserRoleUser  UserRole = "USER"
)

type User struct {
	ID                int32      `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Role              UserRole   `json:"role"`
	Verified          bool       `json:"verified"`
	VerificationToken string     `json:"-"`
	TokenExpiresAt    *time.Time `json:"-"`
	CreatedOn         time.Time  `json:"created_on"`
	UpdatedOn         time.Time  `json:"updated_on"`
}

// Identity is the authenticated caller as established by the transport
// layer. Services receive it instead of reading tokens themselves.
type Identity struct {
	UserID int32
	Email  string
	Role   UserRole
}

func (i Identity) IsAdmin() bool {
	return i.Role == UserRoleAdmin
}
