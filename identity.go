package auth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Supported provider identifiers.
const (
	ProviderDiscord = "discord"
	ProviderGoogle  = "google"
)

// ReconciledProviders is the fixed set of providers whose identities are
// synchronized with the user store.
var ReconciledProviders = []string{ProviderDiscord, ProviderGoogle}

// IsReconciledProvider reports whether provider belongs to ReconciledProviders.
func IsReconciledProvider(provider string) bool {
	for _, p := range ReconciledProviders {
		if p == provider {
			return true
		}
	}
	return false
}

// FederatedIdentity is a user identity asserted by an external provider.
// ID is empty until the reconciler writes the internal user id back.
type FederatedIdentity struct {
	ID              string
	Email           string
	Name            string
	Image           string
	PreferredHandle string
	Provider        string
}

// NormalizedEmail returns the lower-cased, trimmed e-mail used as lookup key.
func (f *FederatedIdentity) NormalizedEmail() string {
	if f == nil {
		return ""
	}
	return NormalizeEmail(f.Email)
}

// Validate checks the identity carries what reconciliation needs.
func (f FederatedIdentity) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Email, validation.Required, is.Email),
		validation.Field(&f.Provider, validation.Required),
	)
}

// Account is the provider account the identity was asserted through.
type Account struct {
	Provider          string
	ProviderAccountID string
	Type              string
}

// NormalizeEmail lower-cases and trims an e-mail address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
