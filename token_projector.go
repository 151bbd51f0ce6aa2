package auth

import (
	"context"

	"github.com/google/uuid"
)

// ProjectTrigger tells the projector why it is being called.
type ProjectTrigger string

const (
	// TriggerSignIn is the initial issuance, identity and account present
	TriggerSignIn ProjectTrigger = "signIn"
	// TriggerUpdate is an explicit refresh request
	TriggerUpdate ProjectTrigger = "update"
	// TriggerNone is any other use of the token
	TriggerNone ProjectTrigger = ""
)

// ProjectInput bundles what a projector call may carry.
type ProjectInput struct {
	Token    *SessionClaims
	Identity *FederatedIdentity
	Account  *Account
	Trigger  ProjectTrigger
	Update   *SessionUpdate
}

// UserReader is the read side of the store used by the projector
type UserReader interface {
	FindByID(ctx context.Context, id uuid.UUID, columns ...string) (*User, error)
}

// TokenProjector keeps a token in sync with a fixed subset of the user
// record. It only reads the store at initial issuance and on TriggerUpdate.
type TokenProjector struct {
	store  UserReader
	logger Logger
}

// NewTokenProjector returns a projector reading from store
func NewTokenProjector(store UserReader, logger Logger) *TokenProjector {
	return &TokenProjector{
		store:  store,
		logger: normalizeLogger(logger),
	}
}

// JWT returns the token to sign. The input token is never mutated; a copy
// is returned when anything changes.
func (p *TokenProjector) JWT(ctx context.Context, in ProjectInput) (*SessionClaims, error) {
	if in.Token == nil {
		return nil, withMetadata(ErrTokenMalformed, nil, map[string]any{
			"reason":  "no token to project",
			"trigger": string(in.Trigger),
		})
	}

	switch {
	case in.Identity != nil && in.Account != nil:
		return p.initial(ctx, in.Token, in.Identity)
	case in.Trigger == TriggerUpdate:
		return p.refresh(ctx, in.Token, in.Update)
	default:
		return in.Token, nil
	}
}

func (p *TokenProjector) initial(ctx context.Context, token *SessionClaims, identity *FederatedIdentity) (*SessionClaims, error) {
	out := token.Clone()
	if identity.ID == "" {
		return out, nil
	}

	out.ID = identity.ID
	out.Subject = identity.ID
	return p.project(ctx, out, identity.ID)
}

func (p *TokenProjector) refresh(ctx context.Context, token *SessionClaims, update *SessionUpdate) (*SessionClaims, error) {
	out := token.Clone()

	projected, err := p.project(ctx, out, out.UserID())
	if err != nil {
		return nil, err
	}

	update.Apply(projected)
	return projected, nil
}

func (p *TokenProjector) project(ctx context.Context, token *SessionClaims, rawID string) (*SessionClaims, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		p.logger.Warn("token projector skipped record with invalid id", "user_id", rawID)
		return token, nil
	}

	user, err := p.store.FindByID(ctx, id, ProjectedColumns()...)
	if err != nil {
		if IsNotFound(err) {
			p.logger.Warn("token projector found no record", "user_id", rawID)
			return token, nil
		}
		return nil, err
	}
	if user == nil {
		p.logger.Warn("token projector found no record", "user_id", rawID)
		return token, nil
	}

	token.ProjectUser(user)
	return token, nil
}

// Session builds the outward session from claims, without store access.
func (p *TokenProjector) Session(claims *SessionClaims) *Session {
	return SessionFromClaims(claims)
}
