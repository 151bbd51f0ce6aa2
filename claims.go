package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the payload of a session token. The user fields are a
// snapshot taken at sign-in or on an explicit refresh.
type SessionClaims struct {
	jwt.RegisteredClaims
	ID          string         `json:"id,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
	Username    string         `json:"username,omitempty"`
	Image       string         `json:"image,omitempty"`
	Rank        Rank           `json:"rank,omitempty"`
	Roles       []string       `json:"roles,omitempty"`
	IsBanned    bool           `json:"isBanned"`
	Ext         map[string]any `json:"ext,omitempty"`
}

// UserID returns the internal user id carried by the token
func (c *SessionClaims) UserID() string {
	if c == nil {
		return ""
	}
	if c.ID != "" {
		return c.ID
	}
	return c.Subject
}

// ParsedUserID returns UserID as a uuid
func (c *SessionClaims) ParsedUserID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID())
}

// HasRole reports whether the token grants role
func (c *SessionClaims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	return HasRole(c.Roles, role)
}

// Expires returns the expiration time, zero if unset
func (c *SessionClaims) Expires() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Clone returns a deep copy of the claims
func (c *SessionClaims) Clone() *SessionClaims {
	if c == nil {
		return nil
	}
	out := *c
	out.Roles = append([]string(nil), c.Roles...)
	if c.Audience != nil {
		out.Audience = append(jwt.ClaimStrings(nil), c.Audience...)
	}
	if c.Ext != nil {
		out.Ext = make(map[string]any, len(c.Ext))
		for k, v := range c.Ext {
			out.Ext[k] = v
		}
	}
	return &out
}

// ProjectUser copies the projected record fields into the claims. Nothing
// else on the token is touched.
func (c *SessionClaims) ProjectUser(u *User) {
	if c == nil || u == nil {
		return
	}
	c.ID = u.ID.String()
	c.Subject = c.ID
	c.DisplayName = u.DisplayName
	c.Username = u.Username
	c.Image = u.Image
	c.Rank = u.Rank
	c.Roles = RolesOrDefault(u.Roles)
	c.IsBanned = u.IsBanned
}
