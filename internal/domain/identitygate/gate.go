// Package identitygate implements spec §4.1: verifying the bearer token
// presented at connection handshake and resolving it to a principal. It
// never issues tokens — credential issuance is an external collaborator
// (spec §1).
package identitygate

import (
	"context"
	"errors"
)

// Principal is what a successfully verified handshake resolves to.
// Gate.Authenticate fills UserID only; Username is left empty, and callers
// that need it look it up from the store themselves.
type Principal struct {
	UserID   string
	Username string
}

// ErrAuthentication is the single opaque error surfaced to clients for every
// rejection reason (spec §4.1: "returned to the client as a single opaque
// 'authentication error' to avoid enumeration"). The underlying cause (one
// of the sentinels below, or a lookup error) stays reachable only through
// the returned error's Cause method; errors.Is against those sentinels does
// not match it.
var ErrAuthentication = errors.New("identitygate: authentication error")

// Distinct internal failure categories, collapsed to ErrAuthentication
// before they ever reach a client.
var (
	ErrMissingToken = errors.New("identitygate: missing token")
	ErrInvalidToken = errors.New("identitygate: invalid or expired token")
	ErrUserNotFound = errors.New("identitygate: referenced user not found")
)

// UserLookup is the narrow slice of the Store Adapter the gate needs: does
// the user a verified token names actually exist?
type UserLookup interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// TokenVerifier authenticates an opaque bearer token down to a subject
// (user id) and any claims the gate needs (here, just the id — username is
// resolved from the store so the gate never trusts a claim for display
// data).
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// Gate is the Identity Gate component. It is deliberately tiny: verify, then
// confirm the subject still exists.
type Gate struct {
	verifier TokenVerifier
	users    UserLookup
}

// NewGate wires a Gate from a token verifier and a user-existence check.
func NewGate(verifier TokenVerifier, users UserLookup) *Gate {
	return &Gate{verifier: verifier, users: users}
}

// Authenticate resolves an opaque bearer token to a Principal, or a single
// ErrAuthentication to the caller regardless of which internal sentinel
// actually fired. Callers that need to log the specific cause read it from
// the error's Cause method; the error itself unwraps only to
// ErrAuthentication.
func (g *Gate) Authenticate(ctx context.Context, token string) (Principal, error) {
	principal, cause := g.authenticate(ctx, token)
	if cause != nil {
		return Principal{}, &authFailure{public: ErrAuthentication, cause: cause}
	}
	return principal, nil
}

func (g *Gate) authenticate(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrMissingToken
	}

	userID, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return Principal{}, errors.Join(ErrInvalidToken, err)
	}

	ok, err := g.users.UserExists(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if !ok {
		return Principal{}, ErrUserNotFound
	}

	return Principal{UserID: userID}, nil
}

// authFailure carries the internal cause alongside the opaque public error
// so logging middleware can unwrap it, while errors.Is(err, ErrAuthentication)
// still succeeds for callers that only care about the public shape.
type authFailure struct {
	public error
	cause  error
}

func (f *authFailure) Error() string { return f.public.Error() }
func (f *authFailure) Unwrap() error { return f.public }

// Cause returns the internal failure reason, for logging only — never for
// display to a client.
func (f *authFailure) Cause() error { return f.cause }
