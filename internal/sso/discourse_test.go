package sso

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
)

const forumSecret = "forum-secret"

func discourseOpts() DiscourseOptions {
	return DiscourseOptions{
		Secret:      forumSecret,
		ForumURL:    "https://forum.example.com",
		CallbackURL: "https://app.example.com/api/v1/login/return/communityforum",
	}
}

func signedReturn(values url.Values, secret string) url.Values {
	payload := base64.StdEncoding.EncodeToString([]byte(values.Encode()))
	return url.Values{"sso": {payload}, "sig": {Sign(payload, secret)}}
}

// lookupFor accepts only the given nonce and provider.
func lookupFor(nonce string, tag Tag) (SessionLookup, *int) {
	calls := 0
	return func(_ context.Context, n string, p Tag) (*entity.Session, error) {
		calls++
		if n != nonce || p != tag {
			return nil, ErrInvalidParameters
		}
		return &entity.Session{ID: "s1", SsoNonce: &n}, nil
	}, &calls
}

func TestDiscourseInitiate(t *testing.T) {
	d := NewDevForum(discourseOpts(), zap.NewNop().Sugar())
	sess := &entity.Session{ID: "s1"}
	now := time.Now()

	redirect, err := d.Initiate(sess, "https://app.example.com/profile", now)
	require.NoError(t, err)

	require.NotNil(t, sess.SsoNonce)
	assert.Len(t, *sess.SsoNonce, 64)
	assert.Equal(t, "devforum", *sess.SsoProvider)
	assert.Equal(t, "https://app.example.com/profile", *sess.SsoReturnURL)
	assert.Equal(t, now, *sess.SsoStartTime)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "forum.example.com", u.Host)
	assert.Equal(t, "/session/sso_provider", u.Path)
	payload := u.Query().Get("sso")
	assert.True(t, Verify(payload, u.Query().Get("sig"), forumSecret))

	values, err := DecodePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, *sess.SsoNonce, values.Get("nonce"))
	assert.Equal(t, discourseOpts().CallbackURL, values.Get("return_sso_url"))
}

func TestDiscourseInitiateFreshNonce(t *testing.T) {
	d := NewDevForum(discourseOpts(), zap.NewNop().Sugar())
	a, b := &entity.Session{}, &entity.Session{}
	_, err := d.Initiate(a, "", time.Now())
	require.NoError(t, err)
	_, err = d.Initiate(b, "", time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, *a.SsoNonce, *b.SsoNonce)
	assert.Nil(t, a.SsoReturnURL)
}

func TestDiscourseCompleteReturn(t *testing.T) {
	d := NewDevForum(discourseOpts(), zap.NewNop().Sugar())
	lookup, calls := lookupFor("n1", TagDevForum)

	ident, err := d.CompleteReturn(context.Background(), signedReturn(url.Values{
		"nonce":    {"n1"},
		"email":    {"dev@example.com"},
		"username": {"dev"},
	}, forumSecret), lookup)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, &ExternalIdentity{Email: "dev@example.com", Username: "dev", Provider: TagDevForum}, ident)
}

func TestDiscourseUsernameFallsBackToEmail(t *testing.T) {
	d := NewDevForum(discourseOpts(), zap.NewNop().Sugar())
	lookup, _ := lookupFor("n1", TagDevForum)

	ident, err := d.CompleteReturn(context.Background(), signedReturn(url.Values{
		"nonce": {"n1"},
		"email": {"dev@example.com"},
	}, forumSecret), lookup)
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", ident.Username)
}

func TestDiscourseInvalidReturns(t *testing.T) {
	d := NewDevForum(discourseOpts(), zap.NewNop().Sugar())
	valid := url.Values{"nonce": {"n1"}, "email": {"dev@example.com"}}

	tamperedSig := signedReturn(valid, forumSecret)
	tamperedSig.Set("sig", strings.Repeat("0", 64))

	cases := []struct {
		name        string
		params      url.Values
		wantLookups int
	}{
		{"missing params", url.Values{}, 0},
		{"wrong secret", signedReturn(valid, "other"), 0},
		{"tampered signature", tamperedSig, 0},
		{"missing nonce", signedReturn(url.Values{"email": {"a@b.c"}}, forumSecret), 0},
		{"two nonces", signedReturn(url.Values{"nonce": {"n1", "n2"}, "email": {"a@b.c"}}, forumSecret), 0},
		{"unknown nonce", signedReturn(url.Values{"nonce": {"n2"}, "email": {"a@b.c"}}, forumSecret), 1},
		{"missing email", signedReturn(url.Values{"nonce": {"n1"}}, forumSecret), 1},
		{"two emails", signedReturn(url.Values{"nonce": {"n1"}, "email": {"a@b.c", "d@e.f"}}, forumSecret), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lookup, calls := lookupFor("n1", TagDevForum)
			_, err := d.CompleteReturn(context.Background(), tc.params, lookup)
			assert.ErrorIs(t, err, ErrInvalidParameters)
			assert.Equal(t, tc.wantLookups, *calls)
		})
	}
}

func TestDiscourseCrossProviderNonce(t *testing.T) {
	community := NewCommunityForum(discourseOpts(), "Supporter", "VIP_supporter", zap.NewNop().Sugar())
	lookup, _ := lookupFor("n1", TagDevForum)

	_, err := community.CompleteReturn(context.Background(), signedReturn(url.Values{
		"nonce":  {"n1"},
		"email":  {"a@b.c"},
		"groups": {"Supporter"},
	}, forumSecret), lookup)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestCommunityGroups(t *testing.T) {
	community := NewCommunityForum(discourseOpts(), "Supporter", "VIP_supporter", zap.NewNop().Sugar())

	cases := []struct {
		name    string
		groups  []string
		wantErr error
	}{
		{"supporter", []string{"Supporter"}, nil},
		{"vip in list", []string{"trust_level_0,VIP_supporter"}, nil},
		{"repeated keys", []string{"trust_level_0", "Other,Supporter"}, nil},
		{"other group", []string{"SomeOtherGroup"}, &Rejection{Message: GroupsMessage}},
		{"case differs", []string{"supporter"}, &Rejection{Message: GroupsMessage}},
		{"no groups key", nil, ErrInvalidParameters},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values := url.Values{"nonce": {"n1"}, "email": {"p@example.com"}, "username": {"p"}}
			if tc.groups != nil {
				values["groups"] = tc.groups
			}
			lookup, _ := lookupFor("n1", TagCommunityForum)
			ident, err := community.CompleteReturn(context.Background(), signedReturn(values, forumSecret), lookup)
			if tc.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, TagCommunityForum, ident.Provider)
				return
			}
			var rej *Rejection
			if errors.As(tc.wantErr, &rej) {
				var got *Rejection
				require.ErrorAs(t, err, &got)
				assert.Contains(t, got.Message, "Supporter or VIP supporter group")
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRegistry(t *testing.T) {
	dev := NewDevForum(discourseOpts(), zap.NewNop().Sugar())
	community := NewCommunityForum(DiscourseOptions{}, "a", "b", zap.NewNop().Sugar())
	r := NewRegistry(dev, community)

	p, err := r.Get("devforum")
	require.NoError(t, err)
	assert.True(t, p.Configured())

	p, err = r.Get("communityforum")
	require.NoError(t, err)
	assert.False(t, p.Configured())

	_, err = r.Get("github")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	require.Len(t, r.Providers(), 2)
	assert.Equal(t, TagDevForum, r.Providers()[0].Tag())
}

func TestCallbackURL(t *testing.T) {
	assert.Equal(t, "https://app.example.com/api/v1/login/return/patreon", CallbackURL("https://app.example.com", TagPatreon))
	assert.Equal(t, "https://app.example.com/api/v1/login/return/patreon", CallbackURL("https://app.example.com/", TagPatreon))
}
