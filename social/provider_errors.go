package social

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/oauth2"
)

// ProviderError captures normalized provider response details.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
	Raw         map[string]any
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	scope := "provider"
	if e.Provider != "" && e.Operation != "" {
		scope = fmt.Sprintf("%s %s", e.Provider, e.Operation)
	} else if e.Provider != "" {
		scope = e.Provider
	} else if e.Operation != "" {
		scope = e.Operation
	}

	if e.Description != "" {
		return fmt.Sprintf("%s failed: %s", scope, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s failed: %s", scope, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	}

	return fmt.Sprintf("%s failed", scope)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	if e.Provider != "" {
		meta["provider"] = e.Provider
	}
	if e.Operation != "" {
		meta["operation"] = e.Operation
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if e.Code != "" {
		meta["code"] = e.Code
	}
	if e.Description != "" {
		meta["description"] = e.Description
	}
	if len(e.Raw) > 0 {
		meta["raw"] = e.Raw
	}

	return meta
}

func wrapProviderError(base *goerrors.Error, provider, operation string, err error) error {
	if base == nil {
		return err
	}

	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if err == nil {
		return clone.WithMetadata(map[string]any{"provider": provider, "operation": operation})
	}

	perr := NewProviderError(provider, operation, err)
	meta := perr.Metadata()
	if perr.Err != nil && perr.Description == "" && perr.Code == "" {
		meta["error"] = perr.Err.Error()
	}

	clone.Source = perr
	return clone.WithMetadata(meta)
}

// NewProviderError normalizes err into a ProviderError. Token endpoint
// failures reported by oauth2 keep their status, code and description.
func NewProviderError(provider, operation string, err error) *ProviderError {
	perr := &ProviderError{
		Provider:  provider,
		Operation: operation,
		Err:       err,
	}

	var existing *ProviderError
	if errors.As(err, &existing) && existing != nil {
		out := *existing
		if out.Provider == "" {
			out.Provider = provider
		}
		if out.Operation == "" {
			out.Operation = operation
		}
		return &out
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr != nil {
		if rerr.Response != nil {
			perr.Status = rerr.Response.StatusCode
		}
		perr.Code = rerr.ErrorCode
		perr.Description = rerr.ErrorDescription
		if rerr.ErrorURI != "" {
			perr.Raw = map[string]any{"error_uri": rerr.ErrorURI}
		}
	}

	return perr
}
