package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BugisoftRSG/subathon-timer/internal/config"
	"github.com/BugisoftRSG/subathon-timer/internal/gateway"
	"github.com/BugisoftRSG/subathon-timer/internal/store"
	"github.com/BugisoftRSG/subathon-timer/internal/timer"
	"github.com/BugisoftRSG/subathon-timer/internal/twitch"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfgPath := getEnv("CONFIG_PATH", "config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfgPath).Msg("failed to load config")
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database).Msg("failed to open database")
	}
	defer st.Close()

	boot, err := st.LoadState(cfg.Time.BaseValue)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load persisted timer state")
	}

	calc := timer.NewCalculator(cfg.Time.Multipliers)
	clock := clockwork.NewRealClock()

	hub := gateway.NewHub(gateway.DefaultConfig())
	engine := timer.NewEngine(boot, calc, st, hub, clock)
	hub.SetStateProvider(engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)
	go engine.Run(ctx)

	ingest := twitch.New(twitch.Config{
		Channel: cfg.Channel,
		Token:   cfg.Token,
		Admins:  cfg.Admins,
	}, engine, st, calc, clock)

	go func() {
		// A chat outage degrades to serving persisted state; the overlay
		// stays up without live contribution ingestion.
		if err := ingest.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("twitch chat connection failed")
		}
	}()

	srv := setupServer(cfg, hub, st)
	go func() {
		log.Info().Int("port", cfg.Port).Msgf("open the timer at http://localhost:%d/timer.html", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
