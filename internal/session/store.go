// Package session manages the browser session lifecycle: loading the
// cookie session, pre-login hygiene, SSO start, binding a user and
// expiry sweeps. All writes go through the caller's store.Tx.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// ErrNoPendingSSO is returned when no live SSO attempt matches a nonce.
var ErrNoPendingSSO = errors.New("no pending sso attempt")

// session ids are 32 random bytes, hex encoded.
const idBytes = 32

type Config struct {
	CookieName    string
	CookieExpiry  time.Duration
	Lifetime      time.Duration
	CloseToExpiry time.Duration
	SSOTimeout    time.Duration
	Secure        bool
}

type Store struct {
	cfg    Config
	now    func() time.Time
	logger *zap.SugaredLogger
}

func NewStore(cfg Config, logger *zap.SugaredLogger) *Store {
	return &Store{cfg: cfg, now: func() time.Time { return time.Now().UTC() }, logger: logger}
}

// WithClock replaces the time source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Now() time.Time { return s.now() }

func (s *Store) CookieName() string { return s.cfg.CookieName }

// Load returns the session with id, or nil when it is missing or expired.
func (s *Store) Load(ctx context.Context, tx store.Tx, id string) (*entity.Session, error) {
	if id == "" {
		return nil, nil
	}
	sess, err := tx.Sessions().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if s.now().Sub(sess.LastUsed) > s.cfg.Lifetime {
		return nil, nil
	}
	return sess, nil
}

// IsCloseToExpiry reports whether sess is within the close-to-expiry window.
func (s *Store) IsCloseToExpiry(sess *entity.Session) bool {
	return s.now().Sub(sess.LastUsed) > s.cfg.Lifetime-s.cfg.CloseToExpiry
}

// PrepareForLogin applies pre-login hygiene to the caller's existing session.
// A session close to expiry is destroyed and nil is returned; otherwise the
// user is detached and lastUsed refreshed.
func (s *Store) PrepareForLogin(ctx context.Context, tx store.Tx, existing *entity.Session) (*entity.Session, error) {
	if existing == nil {
		return nil, nil
	}
	if s.IsCloseToExpiry(existing) {
		s.logger.Infow("destroying existing session close to expiry before login", "session", existing.ID)
		if err := tx.Sessions().Delete(ctx, existing.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	existing.UserID = nil
	existing.LastUsed = s.now()
	if err := tx.Sessions().Update(ctx, existing); err != nil {
		return nil, err
	}
	s.logger.Infow("login starting for an existing session", "session", existing.ID)
	return existing, nil
}

// newSession builds an unsaved anonymous session with a random id.
func (s *Store) newSession() (*entity.Session, error) {
	id, err := utilities.NewOpaqueToken(idBytes)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &entity.Session{ID: id, SessionVersion: 1, LastUsed: now, CreatedAt: now}, nil
}

func (s *Store) save(ctx context.Context, tx store.Tx, sess *entity.Session, created bool) error {
	if created {
		return tx.Sessions().Create(ctx, sess)
	}
	return tx.Sessions().Update(ctx, sess)
}

// BeginSSO reuses existing (or creates a session), clears any bound user,
// lets initiate fill the SSO fields and persists the result.
func (s *Store) BeginSSO(ctx context.Context, tx store.Tx, existing *entity.Session, initiate func(*entity.Session) error) (*entity.Session, error) {
	sess, created := existing, false
	if sess == nil {
		var err error
		if sess, err = s.newSession(); err != nil {
			return nil, err
		}
		created = true
	} else {
		s.logger.Infow("repurposing session for sso login", "session", sess.ID)
		sess.UserID = nil
		sess.SessionVersion = 1
	}
	if err := initiate(sess); err != nil {
		return nil, err
	}
	if err := s.save(ctx, tx, sess, created); err != nil {
		return nil, err
	}
	return sess, nil
}

// FindPendingSSO locks and returns the session waiting on nonce for provider.
// Mismatched provider and timed out attempts yield ErrNoPendingSSO.
func (s *Store) FindPendingSSO(ctx context.Context, tx store.Tx, nonce, provider string) (*entity.Session, error) {
	if nonce == "" {
		return nil, ErrNoPendingSSO
	}
	sess, err := tx.Sessions().GetByNonceForUpdate(ctx, nonce)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoPendingSSO
		}
		return nil, err
	}
	if sess.SsoProvider == nil || *sess.SsoProvider != provider {
		s.logger.Infow("sso return provider mismatch", "session", sess.ID, "provider", provider)
		return nil, ErrNoPendingSSO
	}
	if sess.SsoStartTime != nil && s.cfg.SSOTimeout > 0 && s.now().Sub(*sess.SsoStartTime) > s.cfg.SSOTimeout {
		s.logger.Infow("sso attempt timed out", "session", sess.ID)
		return nil, ErrNoPendingSSO
	}
	return sess, nil
}

// ConsumeSSO clears the SSO fields of sess and persists it.
func (s *Store) ConsumeSSO(ctx context.Context, tx store.Tx, sess *entity.Session) error {
	sess.ClearSSO()
	return tx.Sessions().Update(ctx, sess)
}

// Bind attaches u to sess and persists it. sess may be unsaved (created).
func (s *Store) Bind(ctx context.Context, tx store.Tx, sess *entity.Session, created bool, u *userentity.User, remoteAddr string) error {
	id := u.ID
	sess.UserID = &id
	sess.SessionVersion = u.SessionVersion
	sess.LastUsed = s.now()
	if remoteAddr != "" {
		sess.LastUsedFrom = &remoteAddr
	}
	sess.ClearSSO()
	return s.save(ctx, tx, sess, created)
}

// ReuseOrCreate returns existing, or a new unsaved session when nil.
func (s *Store) ReuseOrCreate(existing *entity.Session) (*entity.Session, bool, error) {
	if existing != nil {
		s.logger.Infow("repurposing session for new login", "session", existing.ID)
		existing.ClearSSO()
		existing.LastUsed = s.now()
		return existing, false, nil
	}
	sess, err := s.newSession()
	return sess, true, err
}

// Destroy deletes the session with id.
func (s *Store) Destroy(ctx context.Context, tx store.Tx, id string) error {
	return tx.Sessions().Delete(ctx, id)
}

// Sweep deletes every session unused for longer than the lifetime.
func (s *Store) Sweep(ctx context.Context, st store.Store) (int64, error) {
	var n int64
	err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.Sessions().DeleteLastUsedBefore(ctx, s.now().Add(-s.cfg.Lifetime))
		return err
	})
	return n, err
}

// RunSweeper sweeps every interval until ctx is done. onSwept, when set,
// receives the number of sessions removed by each successful sweep.
func (s *Store) RunSweeper(ctx context.Context, st store.Store, interval time.Duration, onSwept func(int64)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx, st)
			if err != nil {
				s.logger.Errorw("session sweep failed", "err", err)
				continue
			}
			if onSwept != nil {
				onSwept(n)
			}
			if n > 0 {
				s.logger.Infow("expired sessions removed", "count", n)
			}
		}
	}
}

// Cookie returns the session cookie for sess.
func (s *Store) Cookie(sess *entity.Session) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  s.now().Add(s.cfg.CookieExpiry),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.Secure,
	}
}

// ClearCookie returns a cookie that removes the session cookie.
func (s *Store) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.Secure,
	}
}
