package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/BugisoftRSG/subathon-timer/internal/config"
	"github.com/BugisoftRSG/subathon-timer/internal/gateway"
	"github.com/BugisoftRSG/subathon-timer/internal/store"
)

func setupServer(cfg *config.Config, hub *gateway.Hub, st *store.Store) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	gateway.NewHandler(hub).RegisterRoutes(mux)
	setupGraph(mux, st)
	setupHealthCheck(mux)
	mux.Handle("/", http.FileServer(http.Dir(cfg.PublicDir)))

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: c.Handler(mux),
	}
}

// setupGraph serves the retained timer trajectory for the overlay's
// historical graph.
func setupGraph(mux *http.ServeMux, st *store.Store) {
	mux.HandleFunc("/graph", func(w http.ResponseWriter, r *http.Request) {
		samples, err := st.GraphSamples()
		if err != nil {
			log.Error().Err(err).Msg("failed to read graph samples")
			http.Error(w, "failed to read graph samples", http.StatusInternalServerError)
			return
		}
		if samples == nil {
			samples = []store.GraphSample{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(samples); err != nil {
			log.Error().Err(err).Msg("failed to write graph response")
		}
	})
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
