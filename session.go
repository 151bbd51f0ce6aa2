package auth

import (
	"time"
)

// SessionUser is the client visible view of the signed in user.
type SessionUser struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Username    string   `json:"username"`
	Image       string   `json:"image,omitempty"`
	Rank        Rank     `json:"rank"`
	Roles       []string `json:"roles"`
	IsBanned    bool     `json:"isBanned"`
}

// Session is the outward session object built from a token on every request.
type Session struct {
	User    SessionUser `json:"user"`
	Expires time.Time   `json:"expires"`
}

// HasRole reports whether the session user holds role
func (s *Session) HasRole(role string) bool {
	if s == nil {
		return false
	}
	return HasRole(s.User.Roles, role)
}

// IsZero reports whether s carries no user
func (s *Session) IsZero() bool {
	return s == nil || s.User.ID == ""
}

// SessionFromClaims copies the token fields into a Session. It never reads
// the store.
func SessionFromClaims(claims *SessionClaims) *Session {
	if claims == nil {
		return nil
	}
	return &Session{
		User: SessionUser{
			ID:          claims.UserID(),
			DisplayName: claims.DisplayName,
			Username:    claims.Username,
			Image:       claims.Image,
			Rank:        claims.Rank,
			Roles:       append([]string(nil), claims.Roles...),
			IsBanned:    claims.IsBanned,
		},
		Expires: claims.Expires(),
	}
}

// SessionUpdate is caller supplied session data merged on refresh. Nil
// fields are left untouched.
type SessionUpdate struct {
	DisplayName *string   `json:"displayName,omitempty"`
	Username    *string   `json:"username,omitempty"`
	Image       *string   `json:"image,omitempty"`
	Rank        *Rank     `json:"rank,omitempty"`
	Roles       *[]string `json:"roles,omitempty"`
	IsBanned    *bool     `json:"isBanned,omitempty"`
}

// ProfileUpdate is the part of a SessionUpdate a signed-in user may send
// over HTTP. Privilege fields only come from the stored record.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	Username    *string `json:"username,omitempty"`
	Image       *string `json:"image,omitempty"`
}

// SessionUpdate returns the update to merge on refresh.
func (u *ProfileUpdate) SessionUpdate() *SessionUpdate {
	if u == nil {
		return nil
	}
	return &SessionUpdate{
		DisplayName: u.DisplayName,
		Username:    u.Username,
		Image:       u.Image,
	}
}

// IsEmpty reports whether the update carries no field
func (u *SessionUpdate) IsEmpty() bool {
	return u == nil || (u.DisplayName == nil && u.Username == nil && u.Image == nil &&
		u.Rank == nil && u.Roles == nil && u.IsBanned == nil)
}

// Apply merges the non-nil fields into claims.
func (u *SessionUpdate) Apply(claims *SessionClaims) {
	if u == nil || claims == nil {
		return
	}
	if u.DisplayName != nil {
		claims.DisplayName = *u.DisplayName
	}
	if u.Username != nil {
		claims.Username = *u.Username
	}
	if u.Image != nil {
		claims.Image = *u.Image
	}
	if u.Rank != nil {
		claims.Rank = *u.Rank
	}
	if u.Roles != nil {
		claims.Roles = append([]string(nil), (*u.Roles)...)
	}
	if u.IsBanned != nil {
		claims.IsBanned = *u.IsBanned
	}
}
