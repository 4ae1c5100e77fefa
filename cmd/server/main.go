package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strawberry/sitebuilder-go/internal/assistant"
	"github.com/strawberry/sitebuilder-go/internal/billing"
	"github.com/strawberry/sitebuilder-go/internal/chat"
	"github.com/strawberry/sitebuilder-go/internal/config"
	"github.com/strawberry/sitebuilder-go/internal/database"
	"github.com/strawberry/sitebuilder-go/internal/handler"
	"github.com/strawberry/sitebuilder-go/internal/jobs"
	"github.com/strawberry/sitebuilder-go/internal/middleware"
	"github.com/strawberry/sitebuilder-go/internal/pricing"
	"github.com/strawberry/sitebuilder-go/internal/publish"
	"github.com/strawberry/sitebuilder-go/internal/redis"
	"github.com/strawberry/sitebuilder-go/internal/repository"
	"github.com/strawberry/sitebuilder-go/internal/service"
	"github.com/strawberry/sitebuilder-go/internal/solana"
	"github.com/strawberry/sitebuilder-go/internal/sse"
	"github.com/strawberry/sitebuilder-go/internal/tools"
)

const (
	sitesURLPrefix = "/static/websites"
	audioURLPrefix = "/static/" + config.AudioGenDir
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	cancel()
	log.Info().Msg("database connected")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	} else {
		log.Warn().Msg("REDIS_URL is empty: rate limits and events stay local to this instance")
	}

	userRepo := repository.NewUserRepository(db.DB)
	webSessionRepo := repository.NewWebSessionRepository(db.DB)
	websiteRepo := repository.NewWebsiteRepository(db.DB)
	chatRepo := repository.NewChatRepository(db.DB)
	walletRepo := repository.NewWalletRepository(db.DB)
	depositRepo := repository.NewDepositRepository(db.DB)
	metricsRepo := repository.NewTokenMetricsRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	ledger := billing.NewLedger(userRepo, broker)
	registry := chat.NewRegistry(config.SessionInactiveTTL)

	profile, err := config.LoadAssistantProfile(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load assistant profile")
	}
	if profile.ID == "" {
		log.Warn().Msg("no assistant id configured: chat sessions will fail to start")
	}

	var images tools.ImageSearcher
	if cfg.PixabayAPIKey != "" {
		images = tools.NewPixabayClient(cfg.PixabayAPIKey)
	}
	generatorKey := cfg.GeneratorAPIKey
	if generatorKey == "" {
		generatorKey = cfg.OpenAIAPIKey
	}
	toolbox := tools.NewToolbox(
		images,
		tools.NewOpenAIDocumentGenerator(tools.GeneratorOptions{
			APIKey:  generatorKey,
			BaseURL: cfg.GeneratorBaseURL,
			Model:   cfg.GeneratorModel,
			Azure:   cfg.GeneratorAzure,
		}),
		tools.NewOpenAISpeech(
			cfg.OpenAIAPIKey, cfg.OpenAIBaseURL,
			filepath.Join(cfg.StaticDir, config.AudioGenDir), audioURLPrefix,
		),
	)

	chatService := service.NewChatService(
		service.ChatServiceOptions{
			Profile: profile,
			Rates: chat.Rates{
				Standard:   cfg.PricePerToken,
				Generation: cfg.PricePerGenToken,
				MusicFee:   cfg.PricePerMusic,
			},
			PollInterval: config.RunPollInterval,
			BaseURL:      cfg.BaseURL,
			RechargeURL:  cfg.RechargeURL,
			Provider:     assistant.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL),
			Tools:        toolbox,
			Ledger:       ledger,
			Counter:      billing.NewTokenCounter(),
		},
		chatRepo, websiteRepo, ledger, registry, broker,
	)

	publisher := publish.NewPublisher(
		publish.PublisherOptions{
			SitesDir:    filepath.Join(cfg.StaticDir, config.WebsitesDir),
			URLPrefix:   sitesURLPrefix,
			BaseURL:     cfg.BaseURL,
			RechargeURL: cfg.RechargeURL,
			Prices: publish.Prices{
				Publish:   cfg.PricePerPublish,
				Republish: cfg.PricePerRepublish,
				ImageSave: cfg.PricePerImageSave,
			},
		},
		websiteRepo, ledger, publish.NewLocalizer(cfg.StaticDir), registry,
	)

	dexscreener := pricing.NewClient()
	webhookAuth := middleware.NewWebhookAuth(cfg.JWTSecret)
	walletService := service.NewWalletService(
		service.WalletOptions{
			Mint:              cfg.TokenMint,
			Treasury:          cfg.TreasuryWallet,
			PaymentBackendURL: cfg.PaymentBackendURL,
			MinSignupUSD:      cfg.MinSignupBalanceUSD,
			MinDepositUSD:     cfg.MinDepositUSD,
		},
		db, userRepo, walletRepo, depositRepo, metricsRepo, ledger,
		pricing.NewCache(dexscreener),
		solana.NewClient(cfg.SolanaRPCURL, cfg.TokenMint),
		webhookAuth,
	)
	userService := service.NewUserService(userRepo, webSessionRepo, cfg.SessionSecret)

	sessionMiddleware := middleware.NewUserSessionMiddleware(webSessionRepo, userRepo, cfg.SessionSecret)
	csrfMiddleware := middleware.NewCSRFMiddleware(isProduction, "/api/webhooks/")
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(cfg.MaxBodyBytes)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction, sitesURLPrefix+"/")
	loginLimiter := middleware.NewLoginRateLimiter()

	var siteLimiter middleware.SiteLimiter
	if redisClient != nil {
		siteLimiter = middleware.NewRedisSiteLimiter(redisClient.Client, cfg.SiteHourlyLimit())
	} else {
		siteLimiter = middleware.NewMemorySiteLimiter(cfg.SiteHourlyLimit())
	}
	siteRateLimit := middleware.NewSiteRateLimitMiddleware(siteLimiter)

	expensive := func(next http.Handler) http.Handler { return next }
	if redisClient != nil {
		ipLimit := middleware.NewIPRateLimitMiddleware(
			service.NewRateLimiter(redisClient.Client), config.PublishPerIPPerHour, time.Hour, "publish",
		)
		expensive = ipLimit.Handler
	}

	authHandler := handler.NewAuthHandler(userService, csrfMiddleware, isProduction)
	chatHandler := handler.NewChatHandler(chatService)
	publishHandler := handler.NewPublishHandler(
		publisher, handler.NewUploader(cfg.StaticDir, cfg.BaseURL, publisher),
	)
	walletHandler := handler.NewWalletHandler(walletService, ledger, webhookAuth)
	eventsHandler := handler.NewEventsHandler(broker, ledger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
			"sessions":  registry.Len(),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		sites := handler.NewFileServer(filepath.Join(cfg.StaticDir, config.WebsitesDir))
		r.With(siteRateLimit.Handler).Get(sitesURLPrefix+"/{site}", sites.ServeHTTP)
		r.With(siteRateLimit.Handler).Get(sitesURLPrefix+"/{site}/*", sites.ServeHTTP)
		r.Get("/static/*", handler.NewFileServer(cfg.StaticDir).Hide(config.WebsitesDir).ServeHTTP)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(csrfMiddleware.Handler)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.With(loginLimiter.Handler).Mount("/auth", authHandler.Routes())
			r.Mount("/webhooks", walletHandler.WebhookRoutes())
			walletHandler.RegisterRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(sessionMiddleware.Handler)

			// Streams stay open; no request timeout.
			r.Get("/events", eventsHandler.ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(config.ChatRequestTimeout))
				chatHandler.RegisterRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
				r.Get("/me", authHandler.Me)
				walletHandler.RegisterAccountRoutes(r)
				r.Group(func(r chi.Router) {
					r.Use(expensive)
					publishHandler.RegisterRoutes(r)
				})
			})
		})
	})

	cleanupJob := jobs.NewCleanupJob(webSessionRepo, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	tempMediaJob := jobs.NewTempMediaJob(filepath.Join(cfg.StaticDir, config.TempMediaDir), config.TempMediaSchedule)
	if err := tempMediaJob.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule temp media cleanup")
	}
	defer tempMediaJob.Stop()

	if cfg.TokenMint != "" {
		metricsJob := jobs.NewTokenMetricsJob(cfg.TokenMint, dexscreener, metricsRepo, cfg.TokenMetricsEvery())
		metricsJob.Start()
		defer metricsJob.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
