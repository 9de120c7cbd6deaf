package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"escrowd/pkg/bus"
	"escrowd/pkg/db"
	"escrowd/pkg/render"
	gos3 "escrowd/pkg/s3"
	"escrowd/pkg/telemetry"
	"escrowd/services/api"
	"escrowd/services/audit"
	"escrowd/services/escrow"
)

const serviceName = "escrowd"

type serviceConfig struct {
	Addr           string   `env:"ADDR,default=:8080"`
	DBDSN          string   `env:"DB_DSN,required"`
	NATSURL        string   `env:"NATS_URL"`
	AdminToken     string   `env:"ESCROW_ADMIN_TOKEN"`
	AuditBucket    string   `env:"AUDIT_BUCKET"`
	AssetsFile     string   `env:"ESCROW_ASSETS_FILE"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RequestLimit   int      `env:"RATE_LIMIT_PER_MINUTE,default=100"`
}

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("escrowd exited")
	}
}

func run(log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg serviceConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return err
	}

	engineCfg, err := escrow.LoadConfig(ctx)
	if err != nil {
		return err
	}

	shutdownTelemetry, requestMiddleware, err := telemetry.Init(ctx, serviceName, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	orm, err := gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return err
	}

	assets := escrow.NewAssetRegistry()
	if cfg.AssetsFile != "" {
		assets, err = escrow.LoadAssetRegistry(cfg.AssetsFile)
		if err != nil {
			return err
		}
	}

	var eventBus *bus.Bus
	if cfg.NATSURL != "" {
		eventBus, err = bus.New(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer eventBus.Close()

		if err := eventBus.EnsureStream(api.StreamName, "escrowd.>"); err != nil {
			return err
		}
	}

	var (
		s3Client *gos3.Client
		exporter *audit.Exporter
	)
	if cfg.AuditBucket != "" {
		s3Client, err = gos3.NewClientFromEnv()
		if err != nil {
			return err
		}

		signer, err := audit.NewSignerFromEnv()
		if err != nil {
			return err
		}

		renderer, err := render.New()
		if err != nil {
			return err
		}

		exporter, err = audit.NewExporter(pool, s3Client, signer, renderer, cfg.AuditBucket, log)
		if err != nil {
			return err
		}
	}

	store := &api.Store{DB: pool, ORM: orm, S3: s3Client, Bus: eventBus}

	app, err := api.New(store, engineCfg, assets, exporter, api.Config{
		AdminToken:  cfg.AdminToken,
		AuditBucket: cfg.AuditBucket,
	}, log)
	if err != nil {
		return err
	}

	routes, err := app.Routes(api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestLimit:   cfg.RequestLimit,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           requestMiddleware(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown server")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Msg("escrowd listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
