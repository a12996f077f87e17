package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	patronentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/patron/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/setting"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// Messages shown for patreon outcomes.
const (
	PatreonFailedMessage       = "Failed to retrieve account details from Patreon."
	PatreonNotPatronMessage    = "You aren't a patron according to our latest information. Please become our patron and try again."
	PatreonUnconfiguredMessage = "Patreon settings are currently unconfigured, please contact a site admin."
	PatreonTierMessage         = "Your current reward is not the DevBuilds or higher tier"
)

// PatronDirectory finds synced patrons. FindByEmail returns nil, nil when
// no patron has email.
type PatronDirectory interface {
	FindByEmail(ctx context.Context, email string) (*patronentity.Patron, error)
}

// EntitlementPolicy decides whether a patron may log in. It returns
// setting.ErrUnconfigured when no policy is stored.
type EntitlementPolicy interface {
	IsEntitled(ctx context.Context, p *patronentity.Patron) (bool, error)
}

// PatreonOptions configures the patreon OAuth client.
type PatreonOptions struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	APIURL       string
	CallbackURL  string
	// Timeout bounds the code exchange and profile fetch together.
	Timeout time.Duration
	// HTTPClient is used for token and API calls when set.
	HTTPClient *http.Client
}

// Patreon implements the patreon OAuth provider.
type Patreon struct {
	opts      PatreonOptions
	oauth     *oauth2.Config
	directory PatronDirectory
	policy    EntitlementPolicy
	logger    *zap.SugaredLogger
}

func NewPatreon(opts PatreonOptions, directory PatronDirectory, policy EntitlementPolicy, logger *zap.SugaredLogger) *Patreon {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Patreon{
		opts: opts,
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthorizeURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: opts.CallbackURL,
			Scopes:      []string{"identity", "identity[email]"},
		},
		directory: directory,
		policy:    policy,
		logger:    logger,
	}
}

func (p *Patreon) Tag() Tag { return TagPatreon }

func (p *Patreon) Configured() bool {
	return p.opts.ClientID != "" && p.opts.ClientSecret != ""
}

func (p *Patreon) Initiate(sess *entity.Session, returnURL string, now time.Time) (string, error) {
	nonce, err := utilities.NewOpaqueToken(32)
	if err != nil {
		return "", err
	}
	setPending(sess, nonce, returnURL, TagPatreon, now)
	return p.oauth.AuthCodeURL(nonce), nil
}

func (p *Patreon) CompleteReturn(ctx context.Context, params url.Values, lookup SessionLookup) (*ExternalIdentity, error) {
	if e := params.Get("error"); e != "" {
		return nil, &Rejection{Message: "Error from patreon: " + e}
	}
	state, code := params.Get("state"), params.Get("code")
	if state == "" || code == "" {
		return nil, ErrInvalidParameters
	}
	if _, err := lookup(ctx, state, TagPatreon); err != nil {
		return nil, err
	}

	email, err := p.fetchEmail(ctx, code)
	if err != nil {
		p.logger.Warnw("patreon profile fetch failed", "err", err)
		return nil, &UpstreamError{Message: PatreonFailedMessage, Err: err}
	}

	patron, err := p.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, &UpstreamError{Message: PatreonFailedMessage, Err: oops.Code("PATRON_LOOKUP_FAILED").With("email", email).Wrap(err)}
	}
	if patron == nil {
		return nil, &Rejection{Message: PatreonNotPatronMessage}
	}
	if patron.Suspended {
		reason := ""
		if patron.SuspendedReason != nil {
			reason = *patron.SuspendedReason
		}
		return nil, &Rejection{Message: "Your Patron status is currently suspended. Reason: " + reason}
	}

	ok, err := p.policy.IsEntitled(ctx, patron)
	if err != nil {
		if errors.Is(err, setting.ErrUnconfigured) {
			return nil, &Rejection{Message: PatreonUnconfiguredMessage}
		}
		return nil, &UpstreamError{Message: PatreonFailedMessage, Err: oops.Code("ENTITLEMENT_FAILED").Wrap(err)}
	}
	if !ok {
		return nil, &Rejection{Message: PatreonTierMessage}
	}

	p.logger.Infow("patron logging in", "email", email)
	username := patron.Username
	if username == "" {
		username = email
	}
	return &ExternalIdentity{Email: email, Username: username, Provider: TagPatreon, Entitled: true}, nil
}

type patreonIdentity struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Email    *string `json:"email"`
			FullName string  `json:"full_name"`
		} `json:"attributes"`
	} `json:"data"`
}

// fetchEmail exchanges code and reads the authenticated user's email.
func (p *Patreon) fetchEmail(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	if p.opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.opts.HTTPClient)
	}

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return "", oops.Code("PATREON_EXCHANGE_FAILED").Wrap(err)
	}
	client := p.oauth.Client(ctx, token)

	endpoint, err := url.JoinPath(p.opts.APIURL, "identity")
	if err != nil {
		return "", err
	}
	endpoint += "?" + url.Values{"fields[user]": {"email,full_name"}}.Encode()

	var ident patreonIdentity
	backoff := retry.WithMaxRetries(2, retry.NewConstant(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("patreon identity: status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("patreon identity: status %d", resp.StatusCode)
		}
		return json.Unmarshal(body, &ident)
	})
	if err != nil {
		return "", oops.Code("PATREON_PROFILE_FAILED").Wrap(err)
	}
	if ident.Data.Attributes.Email == nil || *ident.Data.Attributes.Email == "" {
		return "", oops.Code("PATREON_PROFILE_FAILED").Errorf("patreon user %s has no email", ident.Data.ID)
	}
	return *ident.Data.Attributes.Email, nil
}
