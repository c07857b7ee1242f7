package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrNotConnected   = errors.New("mqtt not connected")
	ErrConnectPending = errors.New("mqtt broker not reachable yet, still retrying")
)

const defaultConnectWait = 15 * time.Second

// MQTTConfig configures the broker connection. ConnectWait bounds how long
// Connect blocks for the first connection; zero means 15s.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	QoS         byte
	ConnectWait time.Duration
}

// MQTTClient publishes over MQTT with automatic reconnects.
type MQTTClient struct {
	mu   sync.RWMutex
	cfg  MQTTConfig
	conn mqtt.Client
}

// NewMQTTClient creates a client. Call Connect before publishing.
func NewMQTTClient(cfg MQTTConfig) *MQTTClient {
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}
	if cfg.ConnectWait <= 0 {
		cfg.ConnectWait = defaultConnectWait
	}
	return &MQTTClient{cfg: cfg}
}

// Connect establishes the broker connection. When the broker does not answer
// within ConnectWait the client is kept and keeps retrying in the background;
// Connect then returns ErrConnectPending and Publish reports ErrNotConnected
// until the connection comes up. Close stops the retries.
func (c *MQTTClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(c.cfg.ConnectWait) {
		c.conn = client
		return fmt.Errorf("%w: no answer from %s after %s", ErrConnectPending, c.cfg.Broker, c.cfg.ConnectWait)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.conn = client
	return nil
}

// Publish sends payload to topic and waits for the broker acknowledgement or ctx.
func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || !c.conn.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.conn.Publish(topic, c.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected returns whether the client is connected.
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *MQTTClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Disconnect(1000)
		c.conn = nil
	}
}
