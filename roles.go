package auth

import "strings"

// IsValid checks if the rank is one of the predefined ranks
func (r Rank) IsValid() bool {
	switch r {
	case RankRecruit, RankElite:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this rank meets the minimum required tier
func (r Rank) IsAtLeast(min Rank) bool {
	hierarchy := map[Rank]int{
		RankRecruit: 0,
		RankElite:   1,
	}

	current, ok := hierarchy[r]
	if !ok {
		return false
	}

	required, ok := hierarchy[min]
	if !ok {
		return false
	}

	return current >= required
}

// ParseRank safely parses a string into a Rank
func ParseRank(s string) (Rank, bool) {
	rank := Rank(strings.ToLower(strings.TrimSpace(s)))
	return rank, rank.IsValid()
}

// HasRole reports whether roles contains role.
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// AddRole appends role unless it is already present.
func AddRole(roles []string, role string) []string {
	if HasRole(roles, role) {
		return roles
	}
	return append(roles, role)
}

// DefaultRoles returns the role set of a regular member.
func DefaultRoles() []string {
	return []string{RoleUser}
}

// PrivilegedRoles returns the role set of an allow-listed member.
func PrivilegedRoles() []string {
	return []string{RoleUser, RoleAdmin}
}

// RolesOrDefault returns a copy of roles, or DefaultRoles when empty.
func RolesOrDefault(roles []string) []string {
	if len(roles) == 0 {
		return DefaultRoles()
	}
	return append([]string(nil), roles...)
}
