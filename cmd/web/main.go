package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	apphttp "github.com/xerc/ai-payments/internal/http"
	"github.com/xerc/ai-payments/internal/modules/checkout"
	"github.com/xerc/ai-payments/internal/modules/orders"
	"github.com/xerc/ai-payments/internal/modules/payments"
)

func main() {
	// Load .env file (ignore error if not found - prod uses real env vars)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Database connection
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN environment variable is required")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	repo := orders.NewRepo(db)
	sessions := checkout.NewStore(db, envDuration("CHECKOUT_SESSION_TTL", 2*time.Hour))
	customers := payments.NewCustomers(db)
	journal := payments.NewJournal(db)

	gatewayTimeout := envDuration("GATEWAY_TIMEOUT", 15*time.Second)

	stripeCfg := payments.StripeConfig{
		Type:           os.Getenv("STRIPE_TYPE"),
		APIKey:         os.Getenv("STRIPE_API_KEY"),
		PublishableKey: os.Getenv("STRIPE_PUBLISHABLE_KEY"),
		BaseURL:        os.Getenv("STRIPE_BASE_URL"),
		SelfURL:        os.Getenv("PAYMENT_URL_SELF"),
		CreateToken:    envBool("STRIPE_CREATE_TOKEN"),
		Authorize:      envBool("STRIPE_AUTHORIZE"),
		Timeout:        gatewayTimeout,
	}
	payoneCfg := payments.PayoneConfig{
		MerchantID: os.Getenv("PAYONE_MID"),
		PortalID:   os.Getenv("PAYONE_PORTAL_ID"),
		Key:        os.Getenv("PAYONE_KEY"),
		BaseURL:    os.Getenv("PAYONE_BASE_URL"),
		SelfURL:    os.Getenv("PAYMENT_URL_SELF"),
		Authorize:  envBool("PAYONE_AUTHORIZE"),
		Timeout:    gatewayTimeout,
	}

	stripe := payments.NewStripe(stripeCfg,
		payments.NewHTTPGateway(stripeCfg.BaseURL, stripeCfg.APIKey, stripeCfg.Timeout),
		repo, sessions, customers, logger)
	payone := payments.NewPayone(payoneCfg,
		payments.NewHTTPGateway(payoneCfg.BaseURL, payoneCfg.Key, payoneCfg.Timeout),
		repo, sessions, logger)

	svc := payments.NewService(repo, sessions, journal, logger, stripe, payone)
	if err := svc.CheckConfig(); err != nil {
		log.Fatalf("gateway configuration invalid: %v", err)
	}

	r := apphttp.NewRouter(logger, svc)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	_ = r.Run(addr)
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
