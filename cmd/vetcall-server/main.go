// Vetcall-server — the stateless signaling relay for video consultations.
//
// It maps marketplace identities (veterinarians, pet parents, paraveterinary
// workers) to live WebSocket connections, routes call invitations, relays
// room-scoped signaling between the two participants of a call, and issues
// short-lived media session tokens. All state is in-memory and ephemeral;
// calls in flight at restart are simply lost.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetlink/vetcall/internal/config"
	"github.com/vetlink/vetcall/internal/relay"
	"github.com/vetlink/vetcall/internal/token"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	issuer, err := token.NewIssuer(cfg.JWTSecret, "vetcall", cfg.TokenTTL)
	if err != nil {
		l.Fatal().Err(err).Msg("VETCALL_JWT_SECRET is required")
	}

	registry := relay.NewRegistry()
	rooms := relay.NewRooms()
	handler := relay.NewHandler(registry, rooms, l)
	server := relay.NewServer(handler, issuer, l)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	go func() {
		l.Info().Str("addr", cfg.ListenAddr).Msg("starting relay server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}
	l.Info().Msg("server exited")
}
