package consumers

import (
	"context"
	"fmt"
	"log/slog"

	"eventcart/internal/api"
	"eventcart/internal/config"
	"eventcart/internal/external"
	"eventcart/internal/jobs"
	"eventcart/internal/messaging"
	"eventcart/internal/metrics"
	"eventcart/internal/models"
	"eventcart/internal/notify"
	"eventcart/internal/repository"
	"eventcart/internal/service"

	"github.com/nats-io/stan.go"
)

const queueGroup = "consumers"

// ConsumerService runs the NATS subscribers and the checkout reaper.
type ConsumerService struct {
	store    repository.Store
	nats     *messaging.NATSClient
	handlers *Handlers
	reaper   *jobs.CheckoutExpirationJob
	subs     []stan.Subscription
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	store, _, err := api.OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	metrics.Register()

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	})

	// ричер публикует checkout.settled так же, как API
	services := service.NewServices(service.Deps{
		Store:          store,
		Publisher:      natsClient,
		Gateway:        external.NewPaymentClient(cfg.Payment),
		Notifier:       mailer,
		GatewayTimeout: cfg.Payment.Timeout,
		CheckoutExpiry: cfg.Checkout.ExpireAfter,
	})

	return &ConsumerService{
		store:    store,
		nats:     natsClient,
		handlers: NewHandlers(store, mailer, cfg.SMTP.Timeout*2),
		reaper:   jobs.NewCheckoutExpirationJob(services.Carts, cfg.Checkout.ReapInterval, cfg.Checkout.ReapBatchSize),
	}, nil
}

func (cs *ConsumerService) Start(ctx context.Context) error {
	slog.Info("Starting NATS consumers...")

	cs.reaper.Start(ctx)

	if !cs.nats.Connected() {
		slog.Warn("NATS disabled, only the checkout reaper is running")
		return nil
	}

	subscriptions := []struct {
		subject string
		handler stan.MsgHandler
	}{
		{models.SubjectEmailRequested, cs.handlers.HandleEmailRequested},
		{models.SubjectPurchaseCompleted, cs.handlers.HandlePurchaseCompleted},
		{models.SubjectCheckoutSettled, cs.handlers.HandleCheckoutSettled},
		{models.SubjectCartReset, cs.handlers.HandleCartReset},
	}

	for _, s := range subscriptions {
		sub, err := cs.nats.SubscribeQueue(s.subject, queueGroup, s.handler)
		if err != nil {
			return err
		}
		cs.subs = append(cs.subs, sub)
	}

	slog.Info("All consumers started successfully", "subscriptions", len(cs.subs))
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	cs.reaper.Stop()

	for _, sub := range cs.subs {
		// Close keeps the durable position, Unsubscribe would drop it
		if err := sub.Close(); err != nil {
			slog.Error("Error closing subscription", "error", err)
		}
	}

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.store != nil {
		if err := cs.store.Close(); err != nil {
			slog.Error("Error closing store", "error", err)
			return err
		}
	}

	return nil
}
