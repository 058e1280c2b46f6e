package models

import (
	"time"
)

// Role is a user's permission level.
type Role string

// Roles, lowest to highest.
const (
	RolePlayer Role = "player"
	RoleJudge  Role = "judge"
	RoleAdmin  Role = "admin"
)

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleJudge:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}

// IsStaff reports whether the role handles tickets (judge or admin).
func (r Role) IsStaff() bool {
	return r.AtLeast(RoleJudge)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePlayer || r == RoleJudge || r == RoleAdmin
}

// User represents a chat user known to the helpdesk.
// ID is the platform's user id, not generated locally.
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username  *string   `gorm:"size:255" json:"username,omitempty"`
	FirstName string    `gorm:"size:255" json:"first_name"`
	Role      Role      `gorm:"size:20;not null;default:player" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// DisplayName returns "@username" when known, otherwise the first name.
func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return "unknown"
}
