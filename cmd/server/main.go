package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	ordersadapters "storefront/internal/orders/adapters"
	ordersapp "storefront/internal/orders/application"
	ordershttp "storefront/internal/orders/infrastructure"
	ordersports "storefront/internal/orders/ports"
	paymentsadapters "storefront/internal/payments/adapters"
	paymentsapp "storefront/internal/payments/application"
	paymentshttp "storefront/internal/payments/infrastructure"
	paymentsports "storefront/internal/payments/ports"
	"storefront/internal/security"
	"storefront/pkg/config"
	"storefront/pkg/db"
	"storefront/pkg/events"
	"storefront/pkg/logger"
	"storefront/pkg/middleware"
	"storefront/pkg/rabbitmq"
	tlspkg "storefront/pkg/tls"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	log.Info("starting storefront service")

	// Connect to database
	dbConn, err := db.NewConnection(db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Timeout:  cfg.DBTimeout,
	})
	if err != nil {
		log.Fatal("failed to connect to database: " + err.Error())
	}
	log.Info("connected to database")

	// Metadata encryption for stored payment details
	encryptor, err := security.NewEncryptor(cfg.MetadataKey)
	if err != nil {
		log.Fatal("invalid metadata encryption key: " + err.Error())
	}

	// Initialize repositories and run migrations
	orderRepo := ordersadapters.NewPostgresOrderRepository(dbConn)
	upiRepo := paymentsadapters.NewPostgresUPIIntentRepository(dbConn, encryptor)
	deadLetters := paymentsadapters.NewPostgresDeadLetterStore(dbConn)
	for _, migrate := range []func() error{orderRepo.Migrate, upiRepo.Migrate, deadLetters.Migrate} {
		if err := migrate(); err != nil {
			log.Fatal("failed to migrate database: " + err.Error())
		}
	}

	// Connect to RabbitMQ
	var eventPublisher ordersports.EventPublisher
	var failurePublisher paymentsports.PaymentEventPublisher
	rabbitConn, err := rabbitmq.NewConnection(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("failed to connect to RabbitMQ, events will be disabled: " + err.Error())
	} else {
		defer rabbitConn.Close()

		pub, err := rabbitmq.NewPublisher(rabbitConn, events.ExchangeOrders, log)
		if err != nil {
			log.Warn("failed to create order publisher: " + err.Error())
		} else {
			eventPublisher = ordersadapters.NewRabbitMQPublisher(pub, log)
		}

		payPub, err := rabbitmq.NewPublisher(rabbitConn, events.ExchangePayments, log)
		if err != nil {
			log.Warn("failed to create payment publisher: " + err.Error())
		} else {
			failurePublisher = paymentsadapters.NewRabbitMQPaymentPublisher(payPub, log)
		}
	}

	// Rate-limit / lockout store: Redis when configured, in-memory otherwise
	var store security.Store = security.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisStore := security.NewRedisStore(cfg.RedisAddr, cfg.ServiceName)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisStore.Ping(pingCtx); err != nil {
			log.Warn("failed to connect to Redis, using in-memory store: " + err.Error())
		} else {
			store = redisStore
			log.Info("connected to Redis")
		}
		pingCancel()
	}

	// External collaborators
	productClient := ordersadapters.NewHTTPProductClient(cfg.CatalogBaseURL, cfg.ClientTimeout)
	userClient := ordersadapters.NewHTTPUserClient(cfg.UsersBaseURL, cfg.ClientTimeout)
	gateway := paymentsadapters.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
	upiVerifier := paymentsadapters.NewHTTPUPIVerifier(cfg.UPIProviderURL, cfg.UPIProviderAPIKey, cfg.GatewayTimeout)

	// Initialize use cases
	orderUseCase := ordersapp.NewOrderUseCase(orderRepo, eventPublisher, productClient, log)
	lockout := security.NewLockout(store, cfg.LockoutMax, cfg.LockoutWindow)
	riskScorer := security.NewRiskScorer(cfg.AllowedCountries)
	paymentUseCase := paymentsapp.NewPaymentUseCase(
		gateway, orderUseCase, userClient, lockout, riskScorer, store, cfg.SupportedCurrencies, log)
	upiOrchestrator := paymentsapp.NewUPIOrchestrator(
		upiRepo, upiVerifier, orderUseCase, failurePublisher, cfg.UPIMerchantVPA, cfg.UPIPayeeName, log)
	webhookProcessor := paymentsapp.NewWebhookProcessor(
		cfg.WebhookSecret, cfg.WebhookTolerance, orderUseCase, deadLetters, failurePublisher, log)

	// Feed asynchronous payment failures into the lockout counter
	if rabbitConn != nil && failurePublisher != nil {
		failureConsumer, err := paymentsadapters.NewPaymentFailureConsumer(rabbitConn, lockout, log)
		if err != nil {
			log.Warn("failed to create payment failure consumer: " + err.Error())
		} else if err := failureConsumer.Start(context.Background()); err != nil {
			log.Warn("failed to start payment failure consumer: " + err.Error())
		}
	}

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.TraceID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))
	router.Use(middleware.CORS())
	router.Use(middleware.Identity())

	// The webhook route is registered on api directly; everything else
	// goes through the rate limiter and the JSON body sanitizer.
	rateLimiter := security.NewRateLimiter(store, cfg.RateLimitMax, cfg.RateLimitWindow)
	api := router.Group("/api/v1")
	limited := api.Group("",
		middleware.RateLimit(rateLimiter, log),
		middleware.SanitizeBody(security.SanitizeMap),
	)

	ordershttp.NewHTTPHandler(orderUseCase).RegisterRoutes(limited)

	// The UPI verify route gets its own tighter limiter on top of the
	// global one; each verification is an external call.
	verifyLimiter := security.NewRateLimiter(store, 3, time.Minute)
	paymentshttp.NewHTTPHandler(paymentUseCase, upiOrchestrator, webhookProcessor).
		RegisterRoutes(api, limited, middleware.RateLimit(verifyLimiter, log))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
	}

	go func() {
		var err error
		if cfg.TLSEnabled {
			tlsConfig, tlsErr := tlspkg.ServerConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
			if tlsErr != nil {
				log.Fatal("failed to load TLS config: " + tlsErr.Error())
			}
			httpServer.TLSConfig = tlsConfig
			log.Info("HTTPS server listening on :" + cfg.HTTPPort)
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			log.Info("HTTP server listening on :" + cfg.HTTPPort)
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error: " + err.Error())
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error: " + err.Error())
	}

	log.Info("server stopped")
}
