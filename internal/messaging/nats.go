package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"
)

type NATSClient struct {
	conn stan.Conn
}

type Config struct {
	Enabled   bool   `env:"NATS_ENABLED" env-default:"false"`
	URL       string `env:"NATS_URL" env-default:"nats://localhost:4222"`
	ClusterID string `env:"NATS_CLUSTER_ID" env-default:"eventcart"`
	ClientID  string `env:"NATS_CLIENT_ID" env-default:"eventcart-api"`
}

// NewNATSClient connects to NATS Streaming. With Enabled=false it returns a
// client whose Publish only logs, so the API can run without a broker.
func NewNATSClient(cfg Config) (*NATSClient, error) {
	if !cfg.Enabled {
		slog.Warn("NATS disabled, domain events will not be published")
		return &NATSClient{}, nil
	}

	// уникальный client id, чтобы несколько реплик не конфликтовали
	uniqueClientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	conn, err := stan.Connect(cfg.ClusterID, uniqueClientID, stan.NatsURL(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	slog.Info("Connected to NATS Streaming",
		"url", cfg.URL, "cluster", cfg.ClusterID, "client", uniqueClientID)

	return &NATSClient{conn: conn}, nil
}

// Connected reports whether the client has a live connection.
func (nc *NATSClient) Connected() bool {
	return nc != nil && nc.conn != nil
}

func (nc *NATSClient) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if !nc.Connected() {
		slog.Debug("NATS disabled, message dropped", "subject", subject)
		return nil
	}

	if err := nc.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	slog.Debug("Published message", "subject", subject)
	return nil
}

// SubscribeQueue creates a durable queue subscription with manual acks.
func (nc *NATSClient) SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error) {
	if !nc.Connected() {
		return nil, fmt.Errorf("NATS is not connected")
	}

	sub, err := nc.conn.QueueSubscribe(subject, queue, handler,
		stan.DurableName(subject+"-"+queue+"-durable"),
		stan.SetManualAckMode(),
		stan.AckWait(30*time.Second),
		stan.MaxInflight(1))
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to subject %s: %w", subject, err)
	}

	slog.Info("Subscribed to subject", "subject", subject, "queue", queue)
	return sub, nil
}

func (nc *NATSClient) Close() error {
	if nc.Connected() {
		return nc.conn.Close()
	}
	return nil
}
