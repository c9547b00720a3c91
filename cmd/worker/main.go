package main

import (
	"context"
	"log"
	"net/smtp"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/myupstage/visitationbook-backend/auth"
	"github.com/myupstage/visitationbook-backend/broker"
	"github.com/myupstage/visitationbook-backend/metrics"
	"github.com/myupstage/visitationbook-backend/notify"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

const deliveryTimeout = time.Second * 30

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
			"component": "worker",
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

	amqpBroker, err := broker.NewAMQPBroker(os.Getenv("AMQP_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Broker",
			zap.Error(err),
		)
	}
	defer amqpBroker.Close()

	var delivery notify.Notifier
	if authEnvironment == auth.EnvProduction {
		delivery, err = notify.NewSMTPNotifier(notify.SMTPOptions{
			Hostname: os.Getenv("SMTP_HOST") + ":" + os.Getenv("SMTP_PORT"),
			From:     os.Getenv("SMTP_FROM"),
			Auth:     smtp.PlainAuth("", os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"), os.Getenv("SMTP_HOST")),
		})
		if err != nil {
			logger.Fatal("Cannot initialize SMTPNotifier",
				zap.Error(err),
			)
		}
	} else {
		delivery = &notify.LogNotifier{Logger: logger}
	}

	ctx, cancel := context.WithCancel(context.Background())

	msgChan, err := amqpBroker.ReceiveNotifications(ctx)
	if err != nil {
		logger.Fatal("Cannot get message channel",
			zap.Error(err),
		)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range msgChan {
			sendCtx, sendCancel := context.WithTimeout(context.Background(), deliveryTimeout)
			if err := delivery.Send(sendCtx, msg); err != nil {
				metrics.NotificationsFailedTotal.Inc()
				logger.Error("Unable to deliver notification",
					zap.String("Subject", msg.Subject),
					zap.Error(err),
				)
			}
			sendCancel()
		}
	}()

	logger.Info("Notification worker started")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down notification worker")
	cancel()
	wg.Wait()
}
