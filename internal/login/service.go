// Package login drives every login transition: SSO start and return, local
// password login, logout and CSRF token issuance. Each request runs in one
// store transaction; expected failures commit and surface as *Failure.
package login

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/csrf"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/mailer"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/redirect"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/sso"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// PasswordVerifier checks a candidate password against a stored hash.
type PasswordVerifier interface {
	Verify(hash, candidate string) bool
}

// Client identifies the caller of one request.
type Client struct {
	SessionID  string
	RemoteAddr string
}

// Outcome tells the handler where to send the browser. Cookie is set when a
// session was created or bound; ClearCookie removes the session cookie.
type Outcome struct {
	Redirect    string
	Cookie      *http.Cookie
	ClearCookie bool
}

// Config holds the collaborators of a Service.
type Config struct {
	Store        store.Store
	Sessions     *session.Store
	Providers    *sso.Registry
	Resolver     *account.Resolver
	CSRF         *csrf.Verifier
	Passwords    PasswordVerifier
	Sanitizer    *redirect.Sanitizer
	Limiter      ratelimit.Limiter
	Notifier     mailer.Notifier
	Metrics      *metrics.Metrics
	LocalEnabled bool
	Logger       *zap.SugaredLogger
}

type Service struct {
	Config
}

func NewService(opts Config) *Service {
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Noop{}
	}
	if opts.Notifier == nil {
		opts.Notifier = mailer.Noop{}
	}
	return &Service{Config: opts}
}

func userIDOf(s *entity.Session) *int64 {
	if s == nil {
		return nil
	}
	return s.UserID
}

// throttle returns a Failure once the caller exceeded the login rate.
// Limiter errors let the attempt through.
func (s *Service) throttle(ctx context.Context, c Client) *Failure {
	res, err := s.Limiter.Allow(ctx, "login:"+c.RemoteAddr)
	if err != nil {
		s.Logger.Warnw("login rate limiter unavailable", "err", err)
		return nil
	}
	if !res.Allowed {
		s.Logger.Infow("login throttled", "remote", c.RemoteAddr, "retry_after", res.RetryAfter)
		return fail(KindPolicy, MsgThrottled)
	}
	return nil
}

// IssueCSRF mints a token bound to the user of the caller's session.
func (s *Service) IssueCSRF(ctx context.Context, c Client) (string, time.Time, error) {
	var userID *int64
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := s.Sessions.Load(ctx, tx, c.SessionID)
		userID = userIDOf(existing)
		return err
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return s.CSRF.Issue(userID)
}

// StartSSO begins an SSO login with the provider named ssoType.
func (s *Service) StartSSO(ctx context.Context, c Client, ssoType, csrfToken, returnURL string) (*Outcome, error) {
	var out *Outcome
	var failure *Failure
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := s.Sessions.Load(ctx, tx, c.SessionID)
		if err != nil {
			return err
		}
		if !s.CSRF.IsValid(csrfToken, userIDOf(existing)) {
			failure = fail(KindCSRF, MsgCSRF)
			return nil
		}
		provider, err := s.Providers.Get(ssoType)
		if err != nil {
			failure = fail(KindInvalidParameters, MsgInvalidSsoType)
			return nil
		}
		if !provider.Configured() {
			failure = fail(KindDisabled, MsgDisabled)
			return nil
		}
		if failure = s.throttle(ctx, c); failure != nil {
			return nil
		}

		prepared, err := s.Sessions.PrepareForLogin(ctx, tx, existing)
		if err != nil {
			return err
		}
		var target string
		sess, err := s.Sessions.BeginSSO(ctx, tx, prepared, func(sess *entity.Session) error {
			var err error
			target, err = provider.Initiate(sess, returnURL, s.Sessions.Now())
			return err
		})
		if err != nil {
			return err
		}
		s.Logger.Infow("sso login started", "provider", provider.Tag(), "session", sess.ID)
		out = &Outcome{Redirect: target, Cookie: s.Sessions.Cookie(sess)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if failure != nil {
		s.Metrics.LoginAttempt("sso_start", failure.Kind.String())
		return nil, failure
	}
	s.Metrics.LoginAttempt("sso_start", "redirected")
	return out, nil
}

// HandleReturn completes an SSO login for the provider named providerTag.
func (s *Service) HandleReturn(ctx context.Context, c Client, providerTag string, params url.Values) (*Outcome, error) {
	provider, err := s.Providers.Get(providerTag)
	if err != nil {
		return nil, fail(KindInvalidParameters, MsgInvalidSSOParameters)
	}
	if !provider.Configured() {
		return nil, fail(KindDisabled, MsgDisabled)
	}

	var out *Outcome
	var failure *Failure
	var created *userentity.User
	err = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var matched *entity.Session
		var returnURL string
		lookup := func(ctx context.Context, nonce string, tag sso.Tag) (*entity.Session, error) {
			sess, err := s.Sessions.FindPendingSSO(ctx, tx, nonce, string(tag))
			if err != nil {
				if errors.Is(err, session.ErrNoPendingSSO) {
					return nil, sso.ErrInvalidParameters
				}
				return nil, err
			}
			if sess.SsoReturnURL != nil {
				returnURL = *sess.SsoReturnURL
			}
			// the nonce is spent whatever the outcome
			if err := s.Sessions.ConsumeSSO(ctx, tx, sess); err != nil {
				return nil, err
			}
			matched = sess
			return sess, nil
		}

		ident, err := provider.CompleteReturn(ctx, params, lookup)
		if err != nil {
			if failure = asFailure(err); failure != nil {
				return nil
			}
			return err
		}
		if matched == nil {
			return errors.New("provider returned an identity without matching a session")
		}

		res, err := s.Resolver.Resolve(ctx, tx, account.Request{
			Identity:   ident,
			Session:    matched,
			ReturnURL:  returnURL,
			RemoteAddr: c.RemoteAddr,
		})
		if err != nil {
			if failure = asFailure(err); failure != nil {
				return nil
			}
			return err
		}
		if res.Created {
			created = res.User
		}
		out = &Outcome{Redirect: res.Redirect, Cookie: s.Sessions.Cookie(matched)}
		return nil
	})
	if err != nil {
		s.Metrics.SSOReturn(providerTag, "error")
		return nil, err
	}
	if failure != nil {
		s.Logger.Infow("sso return rejected", "provider", providerTag, "kind", failure.Kind, "message", failure.Message)
		s.Metrics.SSOReturn(providerTag, failure.Kind.String())
		return nil, failure
	}
	if created != nil {
		s.Notifier.UserCreated(ctx, created)
	}
	s.Metrics.SSOReturn(providerTag, "success")
	return out, nil
}

// LocalLogin authenticates a local account by email and password.
func (s *Service) LocalLogin(ctx context.Context, c Client, email, password, csrfToken, returnURL string) (*Outcome, error) {
	if !s.LocalEnabled {
		return nil, fail(KindDisabled, MsgDisabled)
	}

	var out *Outcome
	var failure *Failure
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := s.Sessions.Load(ctx, tx, c.SessionID)
		if err != nil {
			return err
		}
		if !s.CSRF.IsValid(csrfToken, userIDOf(existing)) {
			failure = fail(KindCSRF, MsgCSRF)
			return nil
		}
		if failure = s.throttle(ctx, c); failure != nil {
			return nil
		}
		prepared, err := s.Sessions.PrepareForLogin(ctx, tx, existing)
		if err != nil {
			return err
		}

		u, err := tx.Users().GetLocalByEmail(ctx, strings.TrimSpace(email))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if u == nil || u.PasswordHash == nil || !s.Passwords.Verify(*u.PasswordHash, password) {
			failure = fail(KindPolicy, MsgInvalidCredentials)
			return nil
		}

		sess, isNew, err := s.Sessions.ReuseOrCreate(prepared)
		if err != nil {
			return err
		}
		if err := s.Sessions.Bind(ctx, tx, sess, isNew, u, c.RemoteAddr); err != nil {
			return err
		}
		s.Logger.Infow("successful login", "email", u.Email, "remote", c.RemoteAddr, "session", sess.ID)
		out = &Outcome{Redirect: s.Sanitizer.SafeOrDefault(returnURL), Cookie: s.Sessions.Cookie(sess)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if failure != nil {
		s.Metrics.LoginAttempt("local", failure.Kind.String())
		return nil, failure
	}
	s.Metrics.LoginAttempt("local", "success")
	return out, nil
}

// Logout destroys the caller's session.
func (s *Service) Logout(ctx context.Context, c Client, csrfToken string) (*Outcome, error) {
	var failure *Failure
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := s.Sessions.Load(ctx, tx, c.SessionID)
		if err != nil || existing == nil {
			return err
		}
		if !s.CSRF.IsValid(csrfToken, userIDOf(existing)) {
			failure = fail(KindCSRF, MsgCSRF)
			return nil
		}
		s.Logger.Infow("logging out session", "session", existing.ID)
		return s.Sessions.Destroy(ctx, tx, existing.ID)
	})
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return &Outcome{Redirect: redirect.DefaultTarget, ClearCookie: true}, nil
}
