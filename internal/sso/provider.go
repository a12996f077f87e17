// Package sso implements the external identity providers: the two
// discourse forums and Patreon. Providers fill in the SSO fields of a session
// on start and turn a provider callback into a verified ExternalIdentity.
package sso

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
)

// Tag identifies a provider. It is stored on sessions and users.
type Tag string

const (
	TagDevForum       Tag = "devforum"
	TagCommunityForum Tag = "communityforum"
	TagPatreon        Tag = "patreon"
)

var (
	// ErrInvalidParameters covers every protocol failure on the return leg.
	// Callers must not reveal which check failed.
	ErrInvalidParameters = errors.New("invalid sso parameters")
	ErrUnknownProvider   = errors.New("unknown sso provider")
)

// Rejection is a policy outcome with a message safe to show the user.
type Rejection struct {
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// UpstreamError wraps a failed provider call. Message is shown to the user,
// Err is only logged.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string { return e.Message + ": " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// ExternalIdentity is the verified result of a provider exchange.
type ExternalIdentity struct {
	Email    string
	Username string
	Provider Tag
	Groups   []string
	Entitled bool
}

// SessionLookup returns the session waiting on nonce for provider. It must
// return ErrInvalidParameters when no such attempt exists.
type SessionLookup func(ctx context.Context, nonce string, provider Tag) (*entity.Session, error)

// Provider is one external identity source.
type Provider interface {
	Tag() Tag
	// Configured reports whether the provider has its secrets.
	Configured() bool
	// Initiate stores a fresh nonce and the return url on sess and returns
	// the url to send the browser to. sess is not persisted.
	Initiate(sess *entity.Session, returnURL string, now time.Time) (string, error)
	// CompleteReturn validates callback params and resolves the identity.
	CompleteReturn(ctx context.Context, params url.Values, lookup SessionLookup) (*ExternalIdentity, error)
}

// Registry maps provider tags to providers.
type Registry struct {
	providers map[Tag]Provider
	order     []Tag
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[Tag]Provider, len(providers))}
	for _, p := range providers {
		if _, ok := r.providers[p.Tag()]; !ok {
			r.order = append(r.order, p.Tag())
		}
		r.providers[p.Tag()] = p
	}
	return r
}

// Get returns the provider for tag or ErrUnknownProvider.
func (r *Registry) Get(tag string) (Provider, error) {
	p, ok := r.providers[Tag(tag)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.providers[t])
	}
	return out
}

// CallbackURL is the url providers send the browser back to.
func CallbackURL(appBaseURL string, tag Tag) string {
	u, err := url.JoinPath(appBaseURL, "/api/v1/login/return", string(tag))
	if err != nil {
		return appBaseURL + "/api/v1/login/return/" + string(tag)
	}
	return u
}

func setPending(sess *entity.Session, nonce, returnURL string, tag Tag, now time.Time) {
	p := string(tag)
	sess.SsoNonce = &nonce
	sess.SsoProvider = &p
	if returnURL != "" {
		sess.SsoReturnURL = &returnURL
	} else {
		sess.SsoReturnURL = nil
	}
	sess.SsoStartTime = &now
}
