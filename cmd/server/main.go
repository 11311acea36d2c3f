package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"

	fedHandlers "Harbor/internal/api/handlers/federation"
	"Harbor/internal/api/handlers/passkey"
	"Harbor/internal/api/handlers/password"
	"Harbor/internal/api/handlers/wellknown"
	"Harbor/internal/api/middleware"
	"Harbor/internal/api/routes"
	"Harbor/internal/config"
	"Harbor/internal/core/accounts"
	"Harbor/internal/core/federation"
	"Harbor/internal/db/postgres"
	"Harbor/internal/metrics"
	"Harbor/internal/oidc"
	"Harbor/internal/passkeys"
	"Harbor/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database: ", err)
	}

	log.Println("Connected to database")

	// Run migrations
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal("Failed to set goose dialect: ", err)
	}
	if err := goose.Up(db, "internal/db/migrations"); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	log.Println("Migrations completed successfully")

	// Stores and services
	sessionStore := postgres.NewSessionStore(db)
	directory := postgres.NewAccountRepository(db)
	accountService := accounts.NewService(directory)

	provider, err := oidc.NewClient(context.Background(), oidc.Config{
		IssuerURL:    cfg.IssuerURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
	})
	if err != nil {
		log.Fatal("Failed to create OIDC client: ", err)
	}

	passkeyService, err := passkeys.NewService(passkeys.Config{
		RPName:    cfg.RPName,
		RPID:      cfg.RPID,
		RPOrigins: cfg.RPOrigins,
	}, directory, sessionStore)
	if err != nil {
		log.Fatal("Failed to create passkey service: ", err)
	}

	controller := federation.NewController(sessionStore, directory, provider)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	sessionManager := middleware.NewSessionManager(
		[]byte(cfg.CookieSecret),
		sessionStore,
		int(postgres.SessionTTL.Seconds()),
		!cfg.DevMode,
	)

	r := chi.NewRouter()

	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(collector.Middleware)

	// Global limit; authentication routes add their own stricter ones.
	rateLimiter := middleware.NewRateLimiter(100, 1*time.Minute)
	r.Use(rateLimiter.Middleware)

	pages, err := web.NewPages()
	if err != nil {
		log.Fatal("Failed to load pages: ", err)
	}

	// Session-backed routes. Metrics, health and the well-known
	// documents stay outside so scrapers and app-link verifiers do not
	// mint sessions.
	r.Group(func(r chi.Router) {
		r.Use(sessionManager.WithSession)

		routes.RegisterWebRoutes(r, web.NewHandlers(pages, cfg.RPName))
		routes.RegisterFederationRoutes(r, fedHandlers.NewHandler(controller, collector))
		routes.RegisterAuthRoutes(r,
			password.NewHandler(accountService, sessionStore, sessionManager, collector),
			passkey.NewHandler(passkeyService, sessionStore, collector),
		)
	})

	routes.RegisterWellKnownRoutes(r, wellknown.NewHandler(cfg.AndroidPackageNames, cfg.AndroidFingerprints, cfg.DevMode))

	r.Method(http.MethodGet, "/metrics", metrics.Handler(registry))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	fmt.Printf("Harbor listening on port %s\n", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
