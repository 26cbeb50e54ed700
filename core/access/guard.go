// Package access holds the single authorization gate every protected operation goes through:
// a signed-in principal, an allowed email domain and, optionally, ownership of the target row.
package access

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnauthenticated  = errors.New("you need to sign in first")
	ErrDomainNotAllowed = errors.New("only school email accounts are allowed")
	ErrNotOwner         = errors.New("you can only change your own content")
)

// Principal is the signed-in user of a request.
type Principal struct {
	UserID string
	Email  string
}

// DomainPredicate reports whether an email is allowed to use the application.
type DomainPredicate func(email string) bool

// EmailSuffix allows emails ending with suffix (case-insensitive), e.g. "@basischina.com".
func EmailSuffix(suffix string) DomainPredicate {
	suffix = strings.ToLower(strings.TrimSpace(suffix))
	return func(email string) bool {
		email = strings.ToLower(strings.TrimSpace(email))
		return suffix != "" && strings.HasSuffix(email, suffix) && len(email) > len(suffix)
	}
}

// OwnerLookup fetches the current owner id of the target row.
type OwnerLookup func(ctx context.Context) (ownerID string, err error)

type Guard struct {
	allowed DomainPredicate
}

func NewGuard(allowed DomainPredicate) *Guard {
	return &Guard{allowed: allowed}
}

// AllowedEmail applies the domain predicate alone (sign-up / sign-in).
func (g *Guard) AllowedEmail(email string) bool {
	return g.allowed == nil || g.allowed(email)
}

// Check runs, in order: session present, email domain allowed, then owner match when
// owner is not nil. The lookup's own error (e.g. not found) is returned as is.
func (g *Guard) Check(ctx context.Context, p *Principal, owner OwnerLookup) error {
	if p == nil || p.UserID == "" {
		return ErrUnauthenticated
	}
	if !g.AllowedEmail(p.Email) {
		return ErrDomainNotAllowed
	}
	if owner == nil {
		return nil
	}

	ownerID, err := owner(ctx)
	if err != nil {
		return err
	}
	if ownerID == "" || ownerID != p.UserID {
		return ErrNotOwner
	}
	return nil
}

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored in ctx, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}
