package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fotofoto/filmreturn/internal/server"
	"github.com/fotofoto/filmreturn/internal/session"
	"github.com/fotofoto/filmreturn/internal/wizard"

	"github.com/juju/clock"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:   "filmreturn",
		Usage:  "Film return checkout service",
		Flags:  flags,
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("filmreturn exited")
	}
}

func run(c *cli.Context) error {
	if err := setLogging(c.String("log-level")); err != nil {
		return err
	}
	configureMetrics(c)

	// Cancelled on interrupt => graceful shutdown.
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.WallClock
	httpClient := makeHTTPClient(c.Duration("call-timeout"))

	gate, err := makeGate(ctx, c, clk)
	if err != nil {
		return err
	}
	orchestrator, err := makeOrchestrator(c, httpClient)
	if err != nil {
		return err
	}
	repo, err := makeSessionRepo(c, clk)
	if err != nil {
		return err
	}
	notifier := makeNotifier(c, httpClient)

	deps := wizard.Deps{
		Labels: makeLabelService(c, httpClient),
		Images: gate,
		Carts:  orchestrator,
		Events: notifier,
	}
	limits, err := makeLimits(c, clk)
	if err != nil {
		return err
	}
	sessions := session.MakeManager(repo, deps, clk, sessionTTL)
	srv := server.MakeServer(deps, sessions, limits)

	httpServer := &http.Server{
		Addr:    c.String("listen"),
		Handler: srv.Handler(log.Logger),
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("listening")
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down filmreturn")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := notifier.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("dropped queued events on shutdown")
	}
	return nil
}
