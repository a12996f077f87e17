package entity

import "time"

// Session is a browser session. ID is the literal cookie value.
type Session struct {
	ID             string     `db:"id"`
	UserID         *int64     `db:"user_id"`
	SessionVersion int64      `db:"session_version"`
	LastUsed       time.Time  `db:"last_used"`
	LastUsedFrom   *string    `db:"last_used_from"`
	SsoNonce       *string    `db:"sso_nonce"`
	SsoReturnURL   *string    `db:"sso_return_url"`
	SsoProvider    *string    `db:"sso_provider"`
	SsoStartTime   *time.Time `db:"sso_start_time"`
	CreatedAt      time.Time  `db:"created_at"`
}

// PendingSSO reports whether an SSO attempt is in progress on the session.
func (s *Session) PendingSSO() bool {
	return s.SsoNonce != nil && *s.SsoNonce != ""
}

// ClearSSO drops all SSO-pending fields.
func (s *Session) ClearSSO() {
	s.SsoNonce = nil
	s.SsoReturnURL = nil
	s.SsoProvider = nil
	s.SsoStartTime = nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.UserID = clonePtr(s.UserID)
	c.LastUsedFrom = clonePtr(s.LastUsedFrom)
	c.SsoNonce = clonePtr(s.SsoNonce)
	c.SsoReturnURL = clonePtr(s.SsoReturnURL)
	c.SsoProvider = clonePtr(s.SsoProvider)
	c.SsoStartTime = clonePtr(s.SsoStartTime)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
