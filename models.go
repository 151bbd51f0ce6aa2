package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Rank is the gamification tier of a user
type Rank string

const (
	// RankRecruit is the tier every new member starts at
	RankRecruit Rank = "recruit"
	// RankElite is granted to allow-listed accounts
	RankElite Rank = "elite"
)

const (
	// RoleUser is held by every member
	RoleUser = "user"
	// RoleAdmin is granted to allow-listed accounts
	RoleAdmin = "admin"
)

// DefaultLevel is the level assigned to new records
const DefaultLevel = 1

// ContributionStats holds the contribution counters of a member.
type ContributionStats struct {
	Submissions int `json:"submissions"`
	Approved    int `json:"approved"`
	Reviews     int `json:"reviews"`
	Comments    int `json:"comments"`
	Upvotes     int `json:"upvotes"`
}

// Preferences holds user toggles.
type Preferences struct {
	EmailNotifications bool `json:"emailNotifications"`
	PublicProfile      bool `json:"publicProfile"`
}

// DefaultPreferences returns the preferences assigned to new records.
func DefaultPreferences() Preferences {
	return Preferences{
		EmailNotifications: false,
		PublicProfile:      true,
	}
}

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	Email         string            `bun:"email,notnull,unique" json:"email"`
	DisplayName   string            `bun:"display_name,notnull" json:"displayName"`
	Username      string            `bun:"username,notnull,unique" json:"username"`
	Image         string            `bun:"image" json:"image,omitempty"`
	Level         int               `bun:"level,notnull" json:"level"`
	Rank          Rank              `bun:"rank,notnull" json:"rank"`
	Badges        []string          `bun:"badges,type:jsonb" json:"badges"`
	Roles         []string          `bun:"roles,type:jsonb" json:"roles"`
	Contributions ContributionStats `bun:"contributions,type:jsonb" json:"contributions"`
	Preferences   Preferences       `bun:"preferences,type:jsonb" json:"preferences"`
	IsActive      bool              `bun:"is_active,notnull" json:"isActive"`
	IsBanned      bool              `bun:"is_banned,notnull" json:"isBanned"`
	LastLoginAt   time.Time         `bun:"last_login_at,nullzero" json:"lastLoginAt"`
	CreatedAt     time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// HasRole reports whether the user holds role
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return HasRole(u.Roles, role)
}

// Clone returns a copy that shares no slices with u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Badges = append([]string(nil), u.Badges...)
	out.Roles = append([]string(nil), u.Roles...)
	return &out
}

// projectedColumns are the columns read when building a session token.
var projectedColumns = []string{
	"id",
	"display_name",
	"username",
	"image",
	"rank",
	"roles",
	"is_banned",
}

// ProjectedColumns returns the column selector used by the token projector.
func ProjectedColumns() []string {
	return append([]string(nil), projectedColumns...)
}
