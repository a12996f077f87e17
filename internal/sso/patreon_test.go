package sso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	patronentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/patron/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/setting"
)

type fakeDirectory map[string]*patronentity.Patron

func (f fakeDirectory) FindByEmail(_ context.Context, email string) (*patronentity.Patron, error) {
	return f[email], nil
}

type fakePolicy struct {
	entitled bool
	err      error
}

func (f fakePolicy) IsEntitled(context.Context, *patronentity.Patron) (bool, error) {
	return f.entitled, f.err
}

type patreonUpstream struct {
	email        string
	failures     int32
	delay        time.Duration
	identityHits atomic.Int32
}

func (u *patreonUpstream) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/api/identity", func(w http.ResponseWriter, r *http.Request) {
		n := u.identityHits.Add(1)
		if u.delay > 0 {
			select {
			case <-time.After(u.delay):
			case <-r.Context().Done():
				return
			}
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if n <= u.failures {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if u.email == "" {
			fmt.Fprint(w, `{"data":{"id":"1","attributes":{"full_name":"No Mail"}}}`)
			return
		}
		fmt.Fprintf(w, `{"data":{"id":"1","attributes":{"email":%q,"full_name":"Pat"}}}`, u.email)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestPatreon(srv *httptest.Server, dir PatronDirectory, policy EntitlementPolicy, timeout time.Duration) *Patreon {
	return NewPatreon(PatreonOptions{
		ClientID:     "client",
		ClientSecret: "secret",
		AuthorizeURL: srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
		APIURL:       srv.URL + "/api",
		CallbackURL:  "https://app.example.com/api/v1/login/return/patreon",
		Timeout:      timeout,
		HTTPClient:   srv.Client(),
	}, dir, policy, zap.NewNop().Sugar())
}

func strPtr(s string) *string { return &s }

func TestPatreonInitiate(t *testing.T) {
	up := &patreonUpstream{}
	p := newTestPatreon(up.server(t), fakeDirectory{}, fakePolicy{}, time.Second)
	sess := &entity.Session{}

	redirect, err := p.Initiate(sess, "https://app.example.com/", time.Now())
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/api/v1/login/return/patreon", q.Get("redirect_uri"))
	assert.Equal(t, "identity identity[email]", q.Get("scope"))
	assert.Equal(t, *sess.SsoNonce, q.Get("state"))
	assert.Equal(t, "patreon", *sess.SsoProvider)
}

func TestPatreonCompleteReturn(t *testing.T) {
	up := &patreonUpstream{email: "pat@example.com", failures: 1}
	dir := fakeDirectory{"pat@example.com": {Email: "pat@example.com", Username: "Pat", RewardID: strPtr("dev")}}
	p := newTestPatreon(up.server(t), dir, fakePolicy{entitled: true}, 5*time.Second)
	lookup, calls := lookupFor("state-1", TagPatreon)

	ident, err := p.CompleteReturn(context.Background(), url.Values{"state": {"state-1"}, "code": {"good-code"}}, lookup)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, "pat@example.com", ident.Email)
	assert.Equal(t, "Pat", ident.Username)
	assert.True(t, ident.Entitled)
	assert.Equal(t, int32(2), up.identityHits.Load(), "a 5xx from the identity endpoint is retried")
}

func TestPatreonErrorParam(t *testing.T) {
	up := &patreonUpstream{}
	p := newTestPatreon(up.server(t), fakeDirectory{}, fakePolicy{}, time.Second)
	lookup, calls := lookupFor("state-1", TagPatreon)

	_, err := p.CompleteReturn(context.Background(), url.Values{"state": {"state-1"}, "error": {"access_denied"}}, lookup)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Error from patreon: access_denied", rej.Message)
	assert.Equal(t, 0, *calls)
}

func TestPatreonRejections(t *testing.T) {
	suspended := &patronentity.Patron{Email: "s@example.com", Suspended: true, SuspendedReason: strPtr("payment declined")}
	regular := &patronentity.Patron{Email: "pat@example.com", Username: "Pat"}

	cases := []struct {
		name    string
		email   string
		dir     fakeDirectory
		policy  fakePolicy
		message string
	}{
		{"not a patron", "nobody@example.com", fakeDirectory{}, fakePolicy{entitled: true}, PatreonNotPatronMessage},
		{"suspended", "s@example.com", fakeDirectory{"s@example.com": suspended}, fakePolicy{entitled: true},
			"Your Patron status is currently suspended. Reason: payment declined"},
		{"unconfigured", "pat@example.com", fakeDirectory{"pat@example.com": regular}, fakePolicy{err: setting.ErrUnconfigured},
			PatreonUnconfiguredMessage},
		{"low tier", "pat@example.com", fakeDirectory{"pat@example.com": regular}, fakePolicy{}, PatreonTierMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := &patreonUpstream{email: tc.email}
			p := newTestPatreon(up.server(t), tc.dir, tc.policy, 5*time.Second)
			lookup, _ := lookupFor("st", TagPatreon)

			_, err := p.CompleteReturn(context.Background(), url.Values{"state": {"st"}, "code": {"good-code"}}, lookup)
			var rej *Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tc.message, rej.Message)
		})
	}
}

func TestPatreonUpstreamFailures(t *testing.T) {
	cases := []struct {
		name    string
		up      *patreonUpstream
		code    string
		timeout time.Duration
		policy  fakePolicy
	}{
		{"bad code", &patreonUpstream{email: "pat@example.com"}, "bad-code", 5 * time.Second, fakePolicy{entitled: true}},
		{"no email", &patreonUpstream{}, "good-code", 5 * time.Second, fakePolicy{entitled: true}},
		{"timeout", &patreonUpstream{email: "pat@example.com", delay: time.Second}, "good-code", 100 * time.Millisecond, fakePolicy{entitled: true}},
		{"policy error", &patreonUpstream{email: "pat@example.com"}, "good-code", 5 * time.Second, fakePolicy{err: errors.New("db down")}},
	}
	dir := fakeDirectory{"pat@example.com": {Email: "pat@example.com", Username: "Pat"}}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPatreon(tc.up.server(t), dir, tc.policy, tc.timeout)
			lookup, _ := lookupFor("st", TagPatreon)

			start := time.Now()
			_, err := p.CompleteReturn(context.Background(), url.Values{"state": {"st"}, "code": {tc.code}}, lookup)
			var up *UpstreamError
			require.ErrorAs(t, err, &up)
			assert.Equal(t, PatreonFailedMessage, up.Message)
			assert.Less(t, time.Since(start), 3*time.Second)
		})
	}
}

func TestPatreonInvalidParameters(t *testing.T) {
	up := &patreonUpstream{}
	p := newTestPatreon(up.server(t), fakeDirectory{}, fakePolicy{}, time.Second)

	lookup, calls := lookupFor("st", TagPatreon)
	_, err := p.CompleteReturn(context.Background(), url.Values{"state": {"st"}}, lookup)
	assert.ErrorIs(t, err, ErrInvalidParameters)
	assert.Equal(t, 0, *calls)

	_, err = p.CompleteReturn(context.Background(), url.Values{"state": {"other"}, "code": {"good-code"}}, lookup)
	assert.ErrorIs(t, err, ErrInvalidParameters)
	assert.Equal(t, int32(0), up.identityHits.Load())
}
