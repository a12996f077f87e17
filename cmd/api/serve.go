package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/login"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/mailer"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
)

const shutdownGrace = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the session sweeper",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()
	sugar := a.sugar
	sugar.Infow("starting service-auth", "addr", a.cfg.HTTPAddr, "local_login", a.cfg.LocalLoginEnabled)

	m := metrics.New()
	notifier := a.notifier()
	svc, err := a.loginService(m, notifier)
	if err != nil {
		return err
	}

	handler := router.RegisterRoutes(sugar, router.Deps{
		Login:   login.NewHandler(svc, sugar),
		Metrics: m,
		Ping:    a.db.PingContext,
	})
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("HTTP_SERVER_FAILED").With("addr", srv.Addr).Wrap(err)
		}
		return nil
	})
	g.Go(func() error {
		return a.sessions.RunSweeper(gctx, a.store, a.cfg.Session.SweepInterval, m.SessionsSwept)
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("shutting down")
		doneCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(doneCtx); err != nil {
			sugar.Warnw("http server shutdown failed", "err", err)
		}
		return nil
	})

	err = g.Wait()
	if w, ok := notifier.(*mailer.Welcome); ok {
		// let queued welcome mails finish
		w.Wait()
	}
	sugar.Info("goodbye")
	return err
}
