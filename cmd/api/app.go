package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/csrf"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/login"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/mailer"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/patron"
	patronrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/patron/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/redirect"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/setting"
	settingrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/sso"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// settingsCacheTTL bounds how stale the patreon tier settings may be.
const settingsCacheTTL = 5 * time.Minute

// app holds the process wide dependencies shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	sugar    *zap.SugaredLogger
	db       *sqlx.DB
	store    *store.Postgres
	sessions *session.Store
	settings *setting.Service
	redis    *redis.Client
}

// bootstrap loads configuration, the logger and the database.
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	lg, err := utilities.InitLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	sugar := lg.Sugar()
	if err := utilities.SetSnowflakeNode(cfg.SnowflakeNode); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("node", cfg.SnowflakeNode).Wrap(err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	a := &app{
		cfg:    cfg,
		logger: lg,
		sugar:  sugar,
		db:     db,
		store:  store.NewPostgres(db),
		sessions: session.NewStore(session.Config{
			CookieName:    cfg.Session.CookieName,
			CookieExpiry:  cfg.Session.CookieExpiry,
			Lifetime:      cfg.Session.Lifetime,
			CloseToExpiry: cfg.Session.CloseToExpiry,
			SSOTimeout:    cfg.Session.SSOTimeout,
			Secure:        cfg.SecureCookies,
		}, sugar),
		settings: setting.NewService(settingrepo.NewRepo(db), settingsCacheTTL),
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, oops.Code("CONFIG_INVALID").With("key", "REDIS_URL").Wrap(err)
		}
		a.redis = redis.NewClient(opts)
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.db.Close()
	_ = a.logger.Sync()
}

func (a *app) registry() *sso.Registry {
	cfg := a.cfg
	return sso.NewRegistry(
		sso.NewDevForum(sso.DiscourseOptions{
			Secret:      cfg.DevForum.SsoSecret,
			ForumURL:    cfg.DevForum.BaseURL,
			CallbackURL: sso.CallbackURL(cfg.BaseURL, sso.TagDevForum),
		}, a.sugar),
		sso.NewCommunityForum(sso.DiscourseOptions{
			Secret:      cfg.Community.SsoSecret,
			ForumURL:    cfg.Community.BaseURL,
			CallbackURL: sso.CallbackURL(cfg.BaseURL, sso.TagCommunityForum),
		}, cfg.Community.SupporterGroup, cfg.Community.VIPGroup, a.sugar),
		sso.NewPatreon(sso.PatreonOptions{
			ClientID:     cfg.Patreon.ClientID,
			ClientSecret: cfg.Patreon.ClientSecret,
			AuthorizeURL: cfg.Patreon.AuthorizeURL,
			TokenURL:     cfg.Patreon.TokenURL,
			APIURL:       cfg.Patreon.APIURL,
			CallbackURL:  sso.CallbackURL(cfg.BaseURL, sso.TagPatreon),
			Timeout:      cfg.ProviderTimeout,
		}, patron.NewDirectory(patronrepo.NewPatronRepo(a.db)), a.settings, a.sugar),
	)
}

func (a *app) limiter() ratelimit.Limiter {
	rl := a.cfg.RateLimit
	if rl.Max <= 0 {
		return ratelimit.Noop{}
	}
	if a.redis != nil {
		return ratelimit.NewRedis(a.redis, "rl:", rl.Max, rl.Window)
	}
	a.sugar.Infow("REDIS_URL not set, login rate limits are per process")
	return ratelimit.NewMemory(rl.Max, rl.Window)
}

func (a *app) notifier() mailer.Notifier {
	smtp := a.cfg.SMTP
	if smtp.Host == "" {
		return mailer.Noop{}
	}
	return mailer.NewWelcome(mailer.NewSMTPSender(smtp.Host, smtp.Port, smtp.From, smtp.Username, smtp.Password), a.sugar)
}

// loginService wires the login orchestrator.
func (a *app) loginService(m *metrics.Metrics, notifier mailer.Notifier) (*login.Service, error) {
	verifier, err := csrf.NewVerifier(a.cfg.CSRF.Secret, a.cfg.CSRF.TTL)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("key", "CSRF_SECRET").Wrap(err)
	}
	sanitizer := redirect.NewSanitizer(a.cfg.BaseURL)
	return login.NewService(login.Config{
		Store:        a.store,
		Sessions:     a.sessions,
		Providers:    a.registry(),
		Resolver:     account.NewResolver(a.sessions, sanitizer, a.sugar),
		CSRF:         verifier,
		Passwords:    user.BcryptHasher{},
		Sanitizer:    sanitizer,
		Limiter:      a.limiter(),
		Notifier:     notifier,
		Metrics:      m,
		LocalEnabled: a.cfg.LocalLoginEnabled,
		Logger:       a.sugar,
	}), nil
}

func (a *app) userService() *user.UserService {
	return user.NewUserService(a.store, user.BcryptHasher{}, a.sugar)
}

// ensureSchema creates every table this service reads or writes.
func (a *app) ensureSchema(ctx context.Context) error {
	if err := a.store.EnsureSchema(ctx); err != nil {
		return oops.Code("MIGRATION_FAILED").With("tables", "users, sessions, log_entries").Wrap(err)
	}
	if err := patronrepo.NewPatronRepo(a.db).EnsureTable(ctx); err != nil {
		return oops.Code("MIGRATION_FAILED").With("tables", "patrons").Wrap(err)
	}
	if err := settingrepo.NewRepo(a.db).EnsureTable(ctx); err != nil {
		return oops.Code("MIGRATION_FAILED").With("tables", "settings").Wrap(err)
	}
	return nil
}
