package auth

import (
	"context"
	"time"
)

// SignInResult is the outcome of reconciling a federated identity.
type SignInResult struct {
	Allowed bool
	NewUser bool
	// Escalated is set when the allow-list granted admin on this sign-in
	Escalated bool
	User      *User
}

// Reconciler maps federated identities to local user records on every
// sign-in, creating or updating the record and applying the allow-list.
type Reconciler struct {
	store      UserStore
	usernames  UsernameGenerator
	privileges PrivilegeConfig
	logger     Logger
	activity   ActivitySink
	now        func() time.Time
}

// ReconcilerOption configures a Reconciler
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger sets the logger
func WithReconcilerLogger(l Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = normalizeLogger(l)
	}
}

// WithReconcilerActivitySink sets the activity sink
func WithReconcilerActivitySink(s ActivitySink) ReconcilerOption {
	return func(r *Reconciler) {
		r.activity = normalizeActivitySink(s)
	}
}

// WithReconcilerClock overrides time.Now
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithUsernameGenerator replaces the default slug generator
func WithUsernameGenerator(g UsernameGenerator) ReconcilerOption {
	return func(r *Reconciler) {
		if g != nil {
			r.usernames = g
		}
	}
}

// NewReconciler returns a Reconciler backed by store
func NewReconciler(store UserStore, privileges PrivilegeConfig, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:      store,
		usernames:  NewSlugUsernameGenerator(store),
		privileges: privileges,
		logger:     DefaultLogger(),
		activity:   noopActivitySink{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// SignIn is the boolean sign-in callback. Providers outside
// ReconciledProviders pass through. Store failures are logged and turned
// into a refusal; only username exhaustion is returned as an error.
func (r *Reconciler) SignIn(ctx context.Context, identity *FederatedIdentity, account *Account) (bool, error) {
	res, err := r.ResolveSignIn(ctx, identity, account)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// ResolveSignIn does the work of SignIn and reports whether the record was
// created on this call.
func (r *Reconciler) ResolveSignIn(ctx context.Context, identity *FederatedIdentity, account *Account) (SignInResult, error) {
	provider := providerOf(identity, account)
	if !IsReconciledProvider(provider) {
		return SignInResult{Allowed: true}, nil
	}

	if identity == nil {
		r.refuse(ctx, "", provider, "missing identity", nil)
		return SignInResult{}, nil
	}

	email := identity.NormalizedEmail()
	if err := identity.Validate(); err != nil {
		r.refuse(ctx, email, provider, "invalid identity", err)
		return SignInResult{}, nil
	}

	existing, err := r.store.FindByEmail(ctx, email)
	if err != nil && !IsNotFound(err) {
		r.refuse(ctx, email, provider, "user lookup failed", err)
		return SignInResult{}, nil
	}

	if existing == nil {
		return r.create(ctx, identity, provider)
	}

	return r.update(ctx, existing, identity, provider)
}

func (r *Reconciler) create(ctx context.Context, identity *FederatedIdentity, provider string) (SignInResult, error) {
	email := identity.NormalizedEmail()

	candidate := r.usernames.Generate(UsernameProfile{
		PreferredHandle: identity.PreferredHandle,
		DisplayName:     identity.Name,
		Email:           email,
	})

	username, err := r.usernames.EnsureUnique(ctx, candidate)
	if err != nil {
		if HasTextCode(err, TextCodeUsernameExhausted) {
			r.logger.Error("username exhausted", "email", email, "provider", provider, "candidate", candidate)
			return SignInResult{}, err
		}
		r.refuse(ctx, email, provider, "username check failed", err)
		return SignInResult{}, nil
	}

	user := NewUserFromIdentity(identity, username, r.privileges, r.now())
	if err := r.store.Save(ctx, user); err != nil {
		r.refuse(ctx, email, provider, "user create failed", err)
		return SignInResult{}, nil
	}

	identity.ID = user.ID.String()
	escalated := user.HasRole(RoleAdmin)

	r.logger.Info("user created", "email", email, "provider", provider, "user_id", identity.ID, "username", username)
	r.record(ctx, ActivityEventUserCreated, user, provider, nil)
	if escalated {
		r.record(ctx, ActivityEventPrivilegeGranted, user, provider, map[string]any{"rank": string(user.Rank)})
	}
	r.record(ctx, ActivityEventSignInSuccess, user, provider, map[string]any{"new_user": true})

	return SignInResult{Allowed: true, NewUser: true, Escalated: escalated, User: user}, nil
}

func (r *Reconciler) update(ctx context.Context, existing *User, identity *FederatedIdentity, provider string) (SignInResult, error) {
	email := identity.NormalizedEmail()

	user, escalated := Reconcile(existing, identity, r.privileges, r.now())
	if err := r.store.Save(ctx, user); err != nil {
		r.refuse(ctx, email, provider, "user update failed", err)
		return SignInResult{}, nil
	}

	identity.ID = user.ID.String()

	if escalated {
		r.logger.Info("privileges granted", "email", email, "provider", provider, "user_id", identity.ID)
		r.record(ctx, ActivityEventPrivilegeGranted, user, provider, map[string]any{"rank": string(user.Rank)})
	}
	r.record(ctx, ActivityEventSignInSuccess, user, provider, nil)

	return SignInResult{Allowed: true, Escalated: escalated, User: user}, nil
}

func (r *Reconciler) refuse(ctx context.Context, email, provider, reason string, err error) {
	args := []any{"email", email, "provider", provider, "reason", reason}
	if err != nil {
		args = append(args, "error", err)
	}
	r.logger.Error("sign in refused", args...)

	meta := map[string]any{"reason": reason}
	if err != nil {
		meta["error"] = err.Error()
	}
	r.emit(ctx, ActivityEvent{
		EventType:  ActivityEventSignInRefused,
		Email:      email,
		Provider:   provider,
		Metadata:   meta,
		OccurredAt: r.now(),
	})
}

func (r *Reconciler) record(ctx context.Context, typ ActivityEventType, user *User, provider string, meta map[string]any) {
	r.emit(ctx, ActivityEvent{
		EventType:  typ,
		UserID:     user.ID.String(),
		Email:      user.Email,
		Provider:   provider,
		Metadata:   meta,
		OccurredAt: r.now(),
	})
}

func (r *Reconciler) emit(ctx context.Context, evt ActivityEvent) {
	if err := r.activity.Record(ctx, evt); err != nil {
		r.logger.Warn("activity sink failed", "event", string(evt.EventType), "error", err)
	}
}

func providerOf(identity *FederatedIdentity, account *Account) string {
	if account != nil && account.Provider != "" {
		return account.Provider
	}
	if identity != nil {
		return identity.Provider
	}
	return ""
}
