package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/myupstage/visitationbook-backend/entitlement"
	"github.com/myupstage/visitationbook-backend/external"

	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var dotFile string
	var err error

	plansFile := flag.String("plans", "", "path to the plans JSON file, PLANS_JSON when empty")
	dry := flag.Bool("dry", false, "only validate the plans and print their lookup keys")
	flag.Parse()

	env := os.Getenv("ENV")
	if "production" == env {
		dotFile = ".env.production"
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))
	defer logger.Sync()

	if err := godotenv.Load(dotFile); err != nil {
		logger.Warn("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	path := *plansFile
	if path == "" {
		path = os.Getenv("PLANS_JSON")
	}
	plans, err := entitlement.LoadPlans(path)
	if err != nil {
		logger.Fatal("Cannot load plans",
			zap.String("Path", path),
			zap.Error(err),
		)
	}

	if *dry {
		for _, p := range plans {
			logger.Info("Plan is valid",
				zap.String("PlanID", p.ID),
				zap.String("LookupKey", p.LookupKey()),
				zap.Bool("Retired", p.Retired),
			)
		}
		return
	}

	var stripeClient *client.API
	if mockURL := os.Getenv("STRIPE_API_URL"); mockURL != "" {
		stripeClient = external.NewStripeClientWithBackends(os.Getenv("STRIPE_KEY"), mockURL)
	} else {
		stripeClient = external.NewStripeClient(os.Getenv("STRIPE_KEY"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	failed := 0
	for i := range plans {
		p := &plans[i]
		if err := p.EnsurePrice(ctx, stripeClient, logger); err != nil {
			failed++
			logger.Error("Cannot synchronize plan with Stripe",
				zap.String("PlanID", p.ID),
				zap.Error(err),
			)
			continue
		}
		logger.Info("Plan synchronized",
			zap.String("PlanID", p.ID),
			zap.String("PriceID", p.StripePriceID),
		)
	}
	if failed > 0 {
		logger.Fatal("Some plans were not synchronized",
			zap.Int("Failed", failed),
		)
	}
}
