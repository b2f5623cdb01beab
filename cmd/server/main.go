package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mmazune/chefcloud/internal/collab"
	"github.com/mmazune/chefcloud/internal/config"
	"github.com/mmazune/chefcloud/internal/kitchen"
	"github.com/mmazune/chefcloud/internal/lifecycle"
	"github.com/mmazune/chefcloud/internal/money"
	"github.com/mmazune/chefcloud/internal/router"
	"github.com/mmazune/chefcloud/internal/service"
	"github.com/mmazune/chefcloud/internal/store"
	"github.com/mmazune/chefcloud/internal/ws"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	if err := store.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	queries := store.New(pool)

	pricing, machineCfg, err := monetaryPolicy(cfg)
	if err != nil {
		log.Fatalf("invalid monetary config: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	notifiers := collab.MultiKitchen{ws.NewKitchenNotifier(hub)}
	if cfg.AMQPURL != "" {
		publisher, err := kitchen.NewPublisher(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("connect to amqp: %v", err)
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
		log.Println("Kitchen AMQP publisher connected")
	}

	r := router.New(cfg, router.Deps{
		Queries:    queries,
		Pool:       pool,
		Hub:        hub,
		Pricing:    pricing,
		MachineCfg: machineCfg,
		Kitchen:    notifiers,
	})

	log.Printf("Starting server on :%s", cfg.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		log.Fatal(err)
	}
}

// monetaryPolicy parses the decimal config knobs once at startup.
func monetaryPolicy(cfg *config.Config) (service.Pricing, lifecycle.Config, error) {
	taxRate, err := decimal.NewFromString(cfg.DefaultTaxRate)
	if err != nil {
		return service.Pricing{}, lifecycle.Config{}, fmt.Errorf("DEFAULT_TAX_RATE: %w", err)
	}
	roundingStep, err := decimal.NewFromString(cfg.CashRoundingStep)
	if err != nil {
		return service.Pricing{}, lifecycle.Config{}, fmt.Errorf("CASH_ROUNDING_STEP: %w", err)
	}
	threshold, err := decimal.NewFromString(cfg.VoidApprovalThreshold)
	if err != nil {
		return service.Pricing{}, lifecycle.Config{}, fmt.Errorf("VOID_APPROVAL_THRESHOLD: %w", err)
	}

	pricing := service.Pricing{
		CurrencyCode: cfg.CurrencyCode,
		DefaultTax: money.TaxRule{
			Code:      cfg.DefaultTaxCode,
			Rate:      taxRate,
			Inclusive: cfg.DefaultTaxInclusive,
		},
		Rounding: money.Rounding{Step: roundingStep},
	}
	if cfg.ServiceChargeRate != "" {
		scRate, err := decimal.NewFromString(cfg.ServiceChargeRate)
		if err != nil {
			return service.Pricing{}, lifecycle.Config{}, fmt.Errorf("SERVICE_CHARGE_RATE: %w", err)
		}
		pricing.ServiceCharge = &money.TaxRule{Code: "SC", Rate: scRate}
	}

	return pricing, lifecycle.Config{ApprovalThreshold: threshold}, nil
}
