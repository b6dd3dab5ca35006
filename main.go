package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/pliu/easyrent/internal/auth"
	"github.com/pliu/easyrent/internal/config"
	"github.com/pliu/easyrent/internal/deal"
	"github.com/pliu/easyrent/internal/email"
	"github.com/pliu/easyrent/internal/handlers"
	"github.com/pliu/easyrent/internal/keys"
	"github.com/pliu/easyrent/internal/logger"
	"github.com/pliu/easyrent/internal/metrics"
	"github.com/pliu/easyrent/internal/middleware"
	"github.com/pliu/easyrent/internal/store/sqlstore"
	"github.com/pliu/easyrent/internal/ws"
)

var (
	configPath = flag.String("config", "", "path to a YAML config file")
	addr       = flag.String("addr", "", "http service address, overrides server.addr")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log, err := logger.New(cfg.Environment, cfg.Logger.Level, "easyrent")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	// Initialize Database
	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	verifier := auth.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer, store)
	keyRegistry := keys.NewRegistry(store, log.With(logger.String("component", "keys")))

	// Initialize WebSocket Hub
	hub := ws.NewHub(ws.NewRegistry(), store, verifier, log.With(logger.String("component", "ws")), ws.Options{
		SendBuffer:     cfg.Chat.SendBuffer,
		MaxMessageSize: cfg.Chat.MaxMessageSize,
		MaxContentLen:  cfg.Chat.MaxContentLen,
		WriteTimeout:   config.Duration(cfg.Chat.WriteTimeout),
		PingInterval:   config.Duration(cfg.Chat.PingInterval),
		ReplayUnread:   cfg.Chat.ReplayUnread,
		ReplayLimit:    cfg.Chat.ReplayLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Recorder:       m,
	})

	sender := email.NewSender(cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password, cfg.Email.From,
		log.With(logger.String("component", "email")))
	mailer := email.NewNotifier(sender, store, log.With(logger.String("component", "email")))
	defer mailer.Wait()

	engine := deal.NewEngine(store, keyRegistry, log.With(logger.String("component", "deal")),
		deal.WithNotifier(hub),
		deal.WithNotifier(mailer),
		deal.WithRecorder(m),
	)

	// Initialize Handlers
	chatHandler := &handlers.ChatHandler{Store: store, Hub: hub, Log: log}
	keyHandler := &handlers.KeyHandler{Keys: keyRegistry}
	dealHandler := &handlers.DealHandler{Engine: engine}

	r := mux.NewRouter()
	r.Use(middleware.Recover(log))
	r.Use(middleware.LoggingMiddleware(log))
	if cfg.Metrics.Enabled {
		r.Use(m.Middleware)
		r.Handle(cfg.Metrics.Path, m.Handler()).Methods("GET")
	}

	healthHandler := &handlers.HealthHandler{DB: store}
	r.HandleFunc("/healthz", healthHandler.Check).Methods("GET")

	// WebSocket Endpoint, authenticated by the hub itself
	r.HandleFunc("/ws", hub.ServeWs)

	// API Endpoints
	api := r.NewRoute().Subrouter()
	api.Use(middleware.AuthMiddleware(verifier))
	api.HandleFunc("/chat/{propertyId}/{userId}/{receiverId}", chatHandler.GetHistory).Methods("GET")
	api.HandleFunc("/chat/{propertyId}/{userId}/{receiverId}/read", chatHandler.MarkRead).Methods("PUT")
	api.HandleFunc("/deals", dealHandler.CreateDeal).Methods("POST")
	api.HandleFunc("/deals", dealHandler.GetDeals).Methods("GET")
	api.HandleFunc("/deals/sign", dealHandler.SignDeal).Methods("PUT")
	api.HandleFunc("/deals/{id}/sign", dealHandler.SignDeal).Methods("PUT")
	api.HandleFunc("/deals/{id}/cancel", dealHandler.CancelDeal).Methods("PUT")
	api.HandleFunc("/deals/{id}", dealHandler.GetDeal).Methods("GET")
	api.HandleFunc("/keys", keyHandler.PutKey).Methods("POST")
	api.HandleFunc("/keys/{userId}", keyHandler.GetKey).Methods("GET")

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", logger.String("addr", cfg.Server.Addr), logger.String("db_driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	return srv.Shutdown(ctx)
}
