package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/myupstage/visitationbook-backend/account"
	"github.com/myupstage/visitationbook-backend/auth"
	"github.com/myupstage/visitationbook-backend/broker"
	"github.com/myupstage/visitationbook-backend/catalog"
	"github.com/myupstage/visitationbook-backend/db"
	"github.com/myupstage/visitationbook-backend/document"
	"github.com/myupstage/visitationbook-backend/entitlement"
	"github.com/myupstage/visitationbook-backend/external"
	"github.com/myupstage/visitationbook-backend/guest"
	"github.com/myupstage/visitationbook-backend/notify"
	"github.com/myupstage/visitationbook-backend/obituary"
	"github.com/myupstage/visitationbook-backend/payment"
	"github.com/myupstage/visitationbook-backend/purchase"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v7"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var authEnvironment auth.Environment
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("ENV")
	if "production" == env {
		dotFile = ".env.production"
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(authEnvironment),
		Debug:       authEnvironment == auth.EnvDevelopment,
	}); err != nil {
		logger.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "api",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Fatal("Cannot attach sentry to logger",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	defer logger.Sync()

	var stripeClient *client.API
	if mockURL := os.Getenv("STRIPE_API_URL"); mockURL != "" {
		stripeClient = external.NewStripeClientWithBackends(os.Getenv("STRIPE_KEY"), mockURL)
	} else {
		stripeClient = external.NewStripeClient(os.Getenv("STRIPE_KEY"))
	}

	db, err := db.New(db.Options{
		URI:    os.Getenv("POSTGRES_URI"),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{os.Getenv("REDIS_URI")},
		Password: os.Getenv("REDIS_PW"),
		DB:       0,
	})
	if _, err := rdb.Ping().Result(); err != nil {
		logger.Fatal("Cannot connect to Redis",
			zap.Error(err),
		)
	}
	defer rdb.Close()

	siteName := os.Getenv("SITE_NAME")
	smtpHostname := os.Getenv("SMTP_HOST") + ":" + os.Getenv("SMTP_PORT")
	smtpAuth := smtp.PlainAuth("", os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"), os.Getenv("SMTP_HOST"))

	authManager, err := auth.New(auth.Options{
		Redis:         rdb,
		Logger:        logger,
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),

		Environment: authEnvironment,
		SMTPAuth:    smtpAuth,
		From:        os.Getenv("SMTP_FROM"),
		Hostname:    smtpHostname,
		SignIn: auth.SignInOption{
			SiteName: siteName,
			Link: func(email, token string) string {
				return fmt.Sprintf("%s/login/%s/%s", os.Getenv("FRONTEND_URL"), email, token)
			},
		},
	})
	if err != nil {
		logger.Fatal("Cannot initialize Auth",
			zap.Error(err),
		)
	}

	// Notifications go through the worker when a broker is configured
	var notifier notify.Notifier
	switch {
	case os.Getenv("AMQP_URI") != "":
		amqpBroker, err := broker.NewAMQPBroker(os.Getenv("AMQP_URI"))
		if err != nil {
			logger.Fatal("Cannot connect to Broker",
				zap.Error(err),
			)
		}
		defer amqpBroker.Close()
		notifier, err = notify.NewQueueNotifier(amqpBroker)
		if err != nil {
			logger.Fatal("Cannot initialize QueueNotifier",
				zap.Error(err),
			)
		}
	case os.Getenv("SMTP_HOST") != "":
		notifier, err = notify.NewSMTPNotifier(notify.SMTPOptions{
			Hostname: smtpHostname,
			From:     os.Getenv("SMTP_FROM"),
			Auth:     smtpAuth,
		})
		if err != nil {
			logger.Fatal("Cannot initialize SMTPNotifier",
				zap.Error(err),
			)
		}
	default:
		notifier = &notify.LogNotifier{Logger: logger}
	}

	blobs, err := document.NewDiskStore(os.Getenv("BLOB_ROOT"))
	if err != nil {
		logger.Fatal("Cannot initialize document storage",
			zap.Error(err),
		)
	}

	renderer, err := document.NewPDFRenderer(document.PDFRendererOptions{
		Blobs:    blobs,
		SiteName: siteName,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize PDFRenderer",
			zap.Error(err),
		)
	}

	generator, err := document.NewGenerator(document.GeneratorOptions{
		Renderer: renderer,
		Blobs:    blobs,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize document Generator",
			zap.Error(err),
		)
	}

	accountManager, err := account.NewManager(account.ManagerOptions{
		StripeClient: stripeClient,
		DB:           db,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize AccountManager",
			zap.Error(err),
		)
	}

	accountRouter, err := account.NewService(account.ServiceOptions{
		Auth:           authManager,
		AccountManager: accountManager,
		Notifier:       notifier,
		Logger:         logger,
		SiteName:       siteName,
		LoginURL:       os.Getenv("FRONTEND_URL") + "/login",
	})
	if err != nil {
		logger.Fatal("Cannot initialize Account Service Router",
			zap.Error(err),
		)
	}

	catalogManager, err := catalog.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize CatalogManager",
			zap.Error(err),
		)
	}

	catalogRouter, err := catalog.NewService(logger, catalogManager)
	if err != nil {
		logger.Fatal("Cannot initialize Catalog Service Router",
			zap.Error(err),
		)
	}

	obituaryManager, err := obituary.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize ObituaryManager",
			zap.Error(err),
		)
	}

	obituaryRouter, err := obituary.NewService(obituary.ServiceOptions{
		Auth:            authManager,
		ObituaryManager: obituaryManager,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Obituary Service Router",
			zap.Error(err),
		)
	}

	taxRate := payment.DefaultTaxRate
	if raw := os.Getenv("TAX_RATE"); raw != "" {
		if taxRate, err = decimal.NewFromString(raw); err != nil {
			logger.Fatal("Invalid TAX_RATE",
				zap.String("TaxRate", raw),
				zap.Error(err),
			)
		}
	}

	paymentManager, err := payment.NewManager(payment.ManagerOptions{
		StripeClient: stripeClient,
		DB:           db,
		Logger:       logger,
		TaxRate:      taxRate,
		Currency:     os.Getenv("CURRENCY"),
	})
	if err != nil {
		logger.Fatal("Cannot initialize PaymentManager",
			zap.Error(err),
		)
	}

	paymentRouter, err := payment.NewService(payment.ServiceOptions{
		Auth:           authManager,
		PaymentManager: paymentManager,
		Accounts:       accountManager,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Payment Service Router",
			zap.Error(err),
		)
	}

	entitlementManager, err := entitlement.NewManager(entitlement.ManagerOptions{
		DB:             db,
		Logger:         logger,
		Payments:       paymentManager,
		Accounts:       accountManager,
		PathToPlanJSON: os.Getenv("PLANS_JSON"),
	})
	if err != nil {
		logger.Fatal("Cannot initialize EntitlementManager",
			zap.Error(err),
		)
	}

	entitlementRouter, err := entitlement.NewService(entitlement.ServiceOptions{
		Auth:               authManager,
		EntitlementManager: entitlementManager,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Entitlement Service Router",
			zap.Error(err),
		)
	}

	purchaseManager, err := purchase.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize PurchaseManager",
			zap.Error(err),
		)
	}

	guestManager, err := guest.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize GuestManager",
			zap.Error(err),
		)
	}

	machine, err := purchase.NewMachine(purchase.MachineOptions{
		Repository: purchaseManager,
		Ledger:     entitlementManager,
		Books:      catalogManager,
		Accounts:   accountManager,
		Obituaries: obituaryManager,
		Guests:     guest.CardSource{Repository: guestManager},
		Documents:  generator,
		Blobs:      blobs,
		Payments:   paymentManager,
		Notifier:   notifier,
		Logger:     logger,
		SiteName:   siteName,
	})
	if err != nil {
		logger.Fatal("Cannot initialize purchase Machine",
			zap.Error(err),
		)
	}

	guestHandler, err := guest.NewHandler(guest.HandlerOptions{
		Repository: guestManager,
		Purchases:  machine,
		Documents:  generator,
		Blobs:      blobs,
		Notifier:   notifier,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize guest Handler",
			zap.Error(err),
		)
	}

	guestRouter, err := guest.NewService(guest.ServiceOptions{
		Auth:    authManager,
		Handler: guestHandler,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Guest Service Router",
			zap.Error(err),
		)
	}

	purchaseRouter, err := purchase.NewService(purchase.ServiceOptions{
		Auth:        authManager,
		Machine:     machine,
		Blobs:       blobs,
		Logger:      logger,
		GuestRouter: guestRouter.PurchaseRouter(),
	})
	if err != nil {
		logger.Fatal("Cannot initialize Purchase Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{os.Getenv("FRONTEND_URL")},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rootRouter.Handle("/metrics", promhttp.Handler())
	rootRouter.Mount("/accounts", accountRouter.Router())
	rootRouter.Mount("/books", catalogRouter.Router())
	rootRouter.Mount("/obituaries", obituaryRouter.Router())
	rootRouter.Mount("/payments", paymentRouter.Router())
	rootRouter.Mount("/purchases", purchaseRouter.Router())
	rootRouter.Mount("/guests", guestRouter.Router())
	rootRouter.Mount("/", entitlementRouter.Router())

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8000"
	}
	srv := &http.Server{
		Handler: rootRouter,
		Addr:    listenAddr,
	}

	go func() {
		logger.Info("API server listening",
			zap.String("Addr", listenAddr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server exited",
				zap.Error(err),
			)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down API server")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Cannot gracefully shutdown API server",
			zap.Error(err),
		)
	}
}
