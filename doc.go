// Package auth provides the sign-in reconciliation and session primitives of
// the guild portal (user records, privilege policy, JWT sessions) plus the
// storage layer they run on.
//
// Sign-in reconciliation:
//   - Reconciler runs once per federated sign-in. Discord and Google identities
//     are matched to a single User by lower-cased e-mail; new records get a
//     unique username from UsernameGenerator and allow-listed e-mails are
//     escalated to admin. Privileges are never removed automatically.
//   - Any store or validation failure refuses the sign-in instead of surfacing
//     an error, except username exhaustion which is returned to the caller.
//
// Session tokens:
//   - TokenProjector copies the session-visible subset of a User into
//     SessionClaims on initial sign-in and re-reads the record on explicit
//     refresh. Every other invocation returns the token untouched.
//   - TokenService signs and validates the claims; MultiTokenValidator keeps
//     accepting tokens signed with a retired secret during rotation.
//
// Activity sinks:
//   - ActivitySink receives sign-in and lifecycle events.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking authentication.
package auth
