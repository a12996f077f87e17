package login

import (
	"errors"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/sso"
)

// Kind classifies an expected login failure.
type Kind int

const (
	KindInvalidParameters Kind = iota + 1
	KindPolicy
	KindUpstream
	KindCSRF
	KindDisabled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameters:
		return "invalid_parameters"
	case KindPolicy:
		return "policy"
	case KindUpstream:
		return "upstream"
	case KindCSRF:
		return "csrf"
	case KindDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// User visible messages.
const (
	MsgInvalidSSOParameters = "Invalid or expired SSO login attempt. Please try logging in again."
	MsgInvalidCredentials   = "Invalid username or password"
	MsgDisabled             = "This login option is not enabled"
	MsgInvalidSsoType       = "Invalid SsoType"
	MsgCSRF                 = "Invalid CSRF token. Please refresh the previous page and try logging in again"
	MsgThrottled            = "Too many login attempts, please try again later"
)

// Failure is an expected login outcome. The request transaction still
// commits and the client is redirected to the login page with Message.
type Failure struct {
	Kind    Kind
	Message string
}

func (f *Failure) Error() string { return f.Kind.String() + ": " + f.Message }

func fail(kind Kind, msg string) *Failure { return &Failure{Kind: kind, Message: msg} }

// asFailure maps provider and resolver outcomes onto a Failure. Errors that
// are not expected outcomes return nil.
func asFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, sso.ErrInvalidParameters) {
		return fail(KindInvalidParameters, MsgInvalidSSOParameters)
	}
	var rej *sso.Rejection
	if errors.As(err, &rej) {
		return fail(KindPolicy, rej.Message)
	}
	var up *sso.UpstreamError
	if errors.As(err, &up) {
		return fail(KindUpstream, up.Message)
	}
	return nil
}
