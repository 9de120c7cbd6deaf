package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"escrowd/pkg/bus"
	"escrowd/services/api"
	"escrowd/services/notifier"
)

const serviceName = "notifierd"

type serviceConfig struct {
	NATSURL    string `env:"NATS_URL,required"`
	WebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
}

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("notifierd exited")
	}
}

func run(log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg serviceConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return err
	}

	eventBus, err := bus.New(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer eventBus.Close()

	if err := eventBus.EnsureStream(api.StreamName, "escrowd.>"); err != nil {
		return err
	}

	dispatcher, err := notifier.NewDispatcher(eventBus, cfg.WebhookURL, log)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	if err := dispatcher.Start(ctx); err != nil {
		return err
	}

	log.Info().Str("webhook", cfg.WebhookURL).Msg("notifierd consuming events")

	<-ctx.Done()
	return nil
}
