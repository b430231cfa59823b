package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-maplefresh/internal/app"
	"github.com/noah-isme/backend-maplefresh/internal/config"
	"github.com/noah-isme/backend-maplefresh/internal/obs"
	"github.com/noah-isme/backend-maplefresh/internal/pricing"
	"github.com/noah-isme/backend-maplefresh/internal/provider"
	"github.com/noah-isme/backend-maplefresh/internal/quote"
)

var sampleProviders = []provider.Input{
	{
		FirstName: "Marie", LastName: "Tremblay", Email: "marie.tremblay@maplefresh.ca", Phone: "4165550101",
		Services: []string{"cleaning"}, ServiceAreas: []string{"Toronto", "North York"},
		WorkingHours: "Mon-Fri 08:00-18:00", IsVerified: true, BackgroundCheck: true, Insurance: true,
	},
	{
		FirstName: "Daniel", LastName: "Okafor", Email: "daniel.okafor@maplefresh.ca", Phone: "6475550144",
		Services: []string{"moving", "handyman"}, ServiceAreas: []string{"Mississauga", "Etobicoke"},
		WorkingHours: "Mon-Sat 07:00-19:00", IsVerified: true, BackgroundCheck: true,
	},
	{
		FirstName: "Priya", LastName: "Sharma", Email: "priya.sharma@maplefresh.ca", Phone: "9055550177",
		Services: []string{"handyman"}, ServiceAreas: []string{"Brampton"},
	},
}

var sampleQuotes = []quote.Input{
	{Services: []string{"cleaning"}, PropertyType: "condo", Bedrooms: 2, Bathrooms: 2, SquareFootage: decimal.NewFromInt(1000)},
	{Services: []string{"moving", "cleaning"}, PropertyType: "house", Bedrooms: 3, Bathrooms: 2, SquareFootage: decimal.NewFromInt(1800)},
	{Services: []string{"handyman"}, PropertyType: "office", Bedrooms: 1, Bathrooms: 1, SquareFootage: decimal.NewFromInt(500)},
}

func main() {
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	deps, err := app.Connect(ctx, cfg, app.Options{AppName: "maplefresh-seeder"}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}
	defer deps.Close(logger)

	rules, err := pricing.LoadRules(cfg.PricingRulesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("load pricing rules")
	}

	if err := seedProviders(ctx, &provider.Service{Store: deps.Store}, logger); err != nil {
		logger.Error().Err(err).Msg("seed providers")
		os.Exit(1)
	}
	if err := seedQuotes(ctx, &quote.Service{Store: deps.Store, Rules: rules, TTL: cfg.QuoteTTL}, logger); err != nil {
		logger.Error().Err(err).Msg("seed quotes")
		os.Exit(1)
	}
	logger.Info().Msg("seeding completed")
}

func seedProviders(ctx context.Context, svc *provider.Service, logger zerolog.Logger) error {
	for _, in := range sampleProviders {
		p, err := svc.Create(ctx, in)
		switch {
		case errors.Is(err, provider.ErrDuplicateEmail):
			logger.Info().Str("email", in.Email).Msg("provider exists, skipped")
		case err != nil:
			return err
		default:
			logger.Info().Str("id", p.ID.String()).Str("email", p.Email).Msg("provider created")
		}
	}
	return nil
}

func seedQuotes(ctx context.Context, svc *quote.Service, logger zerolog.Logger) error {
	for _, in := range sampleQuotes {
		q, err := svc.Create(ctx, in)
		if err != nil {
			return err
		}
		logger.Info().Str("id", q.ID.String()).Str("total", pricing.Format(q.Breakdown.Total)).Msg("quote created")
	}
	return nil
}
