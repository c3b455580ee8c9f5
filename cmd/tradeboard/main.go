package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tradeboard/internal/config"
	"tradeboard/internal/control"
	"tradeboard/internal/controller"
	"tradeboard/internal/db"
	"tradeboard/internal/hub"
	"tradeboard/internal/mirror"
	"tradeboard/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	// --- Persistence ---
	var store mirror.Store
	if cfg.Storage.SQLitePath != "" {
		store, err = mirror.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("open mirror store")
		}
	} else {
		log.Info().Msg("no sqlite_path configured, session mirror is in-memory only")
		store = mirror.NewMemoryStore()
	}
	defer store.Close()

	var recorder controller.Recorder
	if cfg.Storage.PostgresDSN != "" {
		rec, err := db.NewRecorder(cfg.Storage.PostgresDSN, log)
		if err != nil {
			log.Fatal().Err(err).Msg("connect run recorder")
		}
		defer rec.Close()
		recorder = rec
	}

	// --- Engine collaborators ---
	controlClient := control.NewClient(cfg.Engine.BaseURL, log)

	var opener transport.Opener
	switch cfg.Engine.Transport {
	case "amqp":
		opener = &transport.AMQPOpener{URI: cfg.Engine.AMQPURI, Log: log}
	default:
		opener = &transport.WebsocketOpener{BaseURL: cfg.Engine.StreamURL, Log: log}
	}

	ctrl := controller.New(controller.Options{
		Control:         controlClient,
		Opener:          opener,
		Mirror:          mirror.New(store, log),
		Recorder:        recorder,
		Log:             log,
		LogCap:          cfg.Session.LogBuffer,
		MaxExportPoints: cfg.Session.MaxExportPoints,
	})

	// --- Dashboard boundary ---
	h := hub.NewHub(log)
	go h.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broadcaster := hub.NewBroadcaster(h, ctrl, time.Duration(cfg.Session.BroadcastMs)*time.Millisecond, log)
	go broadcaster.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWs)
	mux.HandleFunc("/api/strategies", func(w http.ResponseWriter, r *http.Request) {
		metas, err := controlClient.StaticMetadata(r.Context())
		if err != nil {
			log.Warn().Err(err).Msg("strategy metadata fetch failed")
			http.Error(w, "engine unavailable", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metas)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info().Str("addr", addr).Str("transport", cfg.Engine.Transport).Msg("tradeboard listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// --- Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := ctrl.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("session stop on shutdown failed")
	}
	ctrl.Wait()
	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown failed")
	}
}
