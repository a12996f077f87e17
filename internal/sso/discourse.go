package sso

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

const discourseSSOEndpoint = "/session/sso_provider"

// GroupsMessage is shown when a community forum user lacks a supporter group.
const GroupsMessage = "You must be either in the Supporter or VIP supporter group to login. " +
	"These are granted to our Patrons. If you just signed up, please wait up to an " +
	"hour for groups to sync."

// DiscourseOptions configures one discourse forum.
type DiscourseOptions struct {
	Secret      string
	ForumURL    string
	CallbackURL string
	// RequiredGroups, when non-empty, must intersect the returned groups.
	RequiredGroups []string
}

// Discourse implements the discourse SSO provider protocol.
type Discourse struct {
	tag    Tag
	opts   DiscourseOptions
	logger *zap.SugaredLogger
}

// NewDevForum returns the developer forum provider.
func NewDevForum(opts DiscourseOptions, logger *zap.SugaredLogger) *Discourse {
	opts.RequiredGroups = nil
	return &Discourse{tag: TagDevForum, opts: opts, logger: logger}
}

// NewCommunityForum returns the community forum provider. Logins require
// membership in one of supporterGroup or vipGroup.
func NewCommunityForum(opts DiscourseOptions, supporterGroup, vipGroup string, logger *zap.SugaredLogger) *Discourse {
	opts.RequiredGroups = []string{supporterGroup, vipGroup}
	return &Discourse{tag: TagCommunityForum, opts: opts, logger: logger}
}

func (d *Discourse) Tag() Tag { return d.tag }

func (d *Discourse) Configured() bool {
	return d.opts.Secret != "" && d.opts.ForumURL != ""
}

func (d *Discourse) Initiate(sess *entity.Session, returnURL string, now time.Time) (string, error) {
	nonce, err := utilities.NewOpaqueToken(32)
	if err != nil {
		return "", err
	}
	setPending(sess, nonce, returnURL, d.tag, now)

	payload := PreparePayload(nonce, d.opts.CallbackURL)
	endpoint, err := url.JoinPath(d.opts.ForumURL, discourseSSOEndpoint)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("sso", payload)
	q.Set("sig", Sign(payload, d.opts.Secret))
	return endpoint + "?" + q.Encode(), nil
}

func (d *Discourse) CompleteReturn(ctx context.Context, params url.Values, lookup SessionLookup) (*ExternalIdentity, error) {
	payloadRaw, sig := params.Get("sso"), params.Get("sig")
	if payloadRaw == "" || sig == "" {
		return nil, ErrInvalidParameters
	}
	if !Verify(payloadRaw, sig, d.opts.Secret) {
		d.logger.Infow("discourse signature mismatch", "provider", d.tag)
		return nil, ErrInvalidParameters
	}
	payload, err := DecodePayload(payloadRaw)
	if err != nil {
		return nil, ErrInvalidParameters
	}
	nonce := payload["nonce"]
	if len(nonce) != 1 || nonce[0] == "" {
		return nil, ErrInvalidParameters
	}
	if _, err := lookup(ctx, nonce[0], d.tag); err != nil {
		return nil, err
	}

	email := payload["email"]
	if len(email) != 1 {
		return nil, ErrInvalidParameters
	}

	var groups []string
	if len(d.opts.RequiredGroups) > 0 {
		raw, ok := payload["groups"]
		if !ok {
			return nil, ErrInvalidParameters
		}
		groups = flattenGroups(raw)
		if !containsAny(groups, d.opts.RequiredGroups) {
			d.logger.Infow("not allowing login due to missing group membership", "email", email[0], "groups", groups)
			return nil, &Rejection{Message: GroupsMessage}
		}
	}

	username := email[0]
	if u := payload["username"]; len(u) > 0 {
		username = u[0]
	}
	return &ExternalIdentity{
		Email:    email[0],
		Username: username,
		Provider: d.tag,
		Groups:   groups,
	}, nil
}

func flattenGroups(values []string) []string {
	var out []string
	for _, v := range values {
		for _, g := range strings.Split(v, ",") {
			if g != "" {
				out = append(out, g)
			}
		}
	}
	return out
}

func containsAny(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if w != "" && h == w {
				return true
			}
		}
	}
	return false
}
