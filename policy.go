package auth

import (
	"strings"
	"time"
)

// PrivilegeConfig is the e-mail allow-list for automatic admin escalation.
type PrivilegeConfig struct {
	AdminEmails []string
}

// NewPrivilegeConfig builds an allow-list from the given addresses, skipping
// blanks.
func NewPrivilegeConfig(emails ...string) PrivilegeConfig {
	cfg := PrivilegeConfig{}
	for _, e := range emails {
		if n := NormalizeEmail(e); n != "" {
			cfg.AdminEmails = append(cfg.AdminEmails, n)
		}
	}
	return cfg
}

// IsPrivileged reports whether email is on the allow-list. Comparison is
// case-insensitive and an empty e-mail never matches.
func IsPrivileged(email string, cfg PrivilegeConfig) bool {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return false
	}
	for _, admin := range cfg.AdminEmails {
		if strings.EqualFold(NormalizeEmail(admin), normalized) {
			return true
		}
	}
	return false
}

// Reconcile applies the sign-in policy to an existing record and returns the
// updated copy. The bool reports whether privileges were escalated. The
// last login timestamp is always set to now; roles are never removed and
// rank never drops.
func Reconcile(existing *User, identity *FederatedIdentity, cfg PrivilegeConfig, now time.Time) (*User, bool) {
	if existing == nil {
		return nil, false
	}

	updated := existing.Clone()
	updated.LastLoginAt = now

	email := updated.Email
	if identity != nil && identity.Email != "" {
		email = identity.Email
	}

	changed := false
	if IsPrivileged(email, cfg) && !HasRole(updated.Roles, RoleAdmin) {
		updated.Roles = AddRole(RolesOrDefault(updated.Roles), RoleAdmin)
		updated.Rank = RankElite
		changed = true
	}

	return updated, changed
}

// NewUserFromIdentity returns the record created on a first sign-in.
func NewUserFromIdentity(identity *FederatedIdentity, username string, cfg PrivilegeConfig, now time.Time) *User {
	email := identity.NormalizedEmail()

	rank := RankRecruit
	roles := DefaultRoles()
	if IsPrivileged(email, cfg) {
		rank = RankElite
		roles = PrivilegedRoles()
	}

	displayName := strings.TrimSpace(identity.Name)
	if displayName == "" {
		displayName = username
	}

	return &User{
		Email:         email,
		DisplayName:   displayName,
		Username:      username,
		Image:         identity.Image,
		Level:         DefaultLevel,
		Rank:          rank,
		Badges:        []string{},
		Roles:         roles,
		Contributions: ContributionStats{},
		Preferences:   DefaultPreferences(),
		IsActive:      true,
		IsBanned:      false,
		LastLoginAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
