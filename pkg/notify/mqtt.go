package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/itohio/coldmon/pkg/config"
)

// ErrNotConnected is returned by Publish while there is no broker session.
var ErrNotConnected = errors.New("notify: not connected")

const dialTimeout = 10 * time.Second

// MQTT publishes messages on the data topic and feeds the command topic to a
// Handler. Run keeps the session alive; Publish never waits for a reconnect.
type MQTT struct {
	cfg      config.MQTTConfig
	clientID string
	handler  Handler
	log      *slog.Logger

	mu     sync.RWMutex
	client *paho.Client
}

// NewMQTT creates a notifier. handler may be nil when commands are ignored.
func NewMQTT(cfg config.MQTTConfig, handler Handler, logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "coldmon-" + uuid.NewString()[:8]
	}
	return &MQTT{
		cfg:      cfg,
		clientID: clientID,
		handler:  handler,
		log:      logger.With("component", "notify", "broker", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))),
	}
}

// ClientID returns the MQTT client identifier in use.
func (m *MQTT) ClientID() string { return m.clientID }

// IsConnected reports whether a broker session is up.
func (m *MQTT) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Run connects, and reconnects with exponential backoff whenever the session
// drops, until ctx is cancelled.
func (m *MQTT) Run(ctx context.Context) error {
	b := backoff{min: m.cfg.ReconnectMin, max: m.cfg.ReconnectMax}

	for {
		lost, err := m.connect(ctx)
		if err == nil {
			b.reset()
			m.log.Info("connected", "client_id", m.clientID, "subscribed", m.cfg.CommandTopic)

			select {
			case <-ctx.Done():
				m.disconnect()
				return nil
			case <-lost:
				m.setClient(nil)
				m.log.Warn("connection lost")
			}
		} else if ctx.Err() == nil {
			m.log.Warn("connect failed", "err", err)
		}

		wait := b.next()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// Publish sends msg on the data topic. A missing ID is filled with a fresh
// uuid. Fails fast with ErrNotConnected while disconnected.
func (m *MQTT) Publish(ctx context.Context, msg Message) error {
	m.mu.RLock()
	c := m.client
	m.mu.RUnlock()
	if c == nil {
		return ErrNotConnected
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := c.Publish(ctx, &paho.Publish{
		Topic:   m.cfg.DataTopic,
		QoS:     0,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Type, err)
	}
	m.log.Debug("published", "type", msg.Type, "bytes", len(payload))
	return nil
}

func (m *MQTT) connect(ctx context.Context) (<-chan struct{}, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("error opening TCP connection: %w", err)
	}

	lost := make(chan struct{})
	var once sync.Once
	markLost := func() { once.Do(func() { close(lost) }) }

	c := paho.NewClient(paho.ClientConfig{
		ClientID: m.clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			m.onPublishReceived,
		},
		OnClientError: func(err error) {
			m.log.Warn("client error", "err", err)
			markLost()
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			m.log.Warn("server disconnect", "reason_code", d.ReasonCode)
			markLost()
		},
	})

	cp := &paho.Connect{
		ClientID:   m.clientID,
		KeepAlive:  uint16(m.cfg.KeepAlive / time.Second),
		CleanStart: true,
	}
	if m.cfg.Username != "" {
		cp.Username = m.cfg.Username
		cp.UsernameFlag = true
	}
	if m.cfg.Password != "" {
		cp.Password = []byte(m.cfg.Password)
		cp.PasswordFlag = true
	}

	if _, err := c.Connect(dialCtx, cp); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect rejected: %w", err)
	}

	if m.cfg.CommandTopic != "" {
		if _, err := c.Subscribe(dialCtx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: m.cfg.CommandTopic, QoS: 1}},
		}); err != nil {
			_ = c.Disconnect(&paho.Disconnect{ReasonCode: 0})
			return nil, fmt.Errorf("failed to subscribe to %s: %w", m.cfg.CommandTopic, err)
		}
	}

	m.setClient(c)
	return lost, nil
}

func (m *MQTT) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	p := pr.Packet
	if p.Topic != m.cfg.CommandTopic {
		return false, nil
	}

	cmd, err := ParseCommand(p.Payload)
	if err != nil {
		m.log.Warn("ignoring command", "err", err, "payload", string(p.Payload))
		return true, nil
	}
	m.log.Info("command received", "intent", cmd.Intent)
	if m.handler != nil {
		m.handler(cmd)
	}
	return true, nil
}

func (m *MQTT) disconnect() {
	m.mu.Lock()
	c := m.client
	m.client = nil
	m.mu.Unlock()

	if c == nil {
		return
	}
	if err := c.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
		m.log.Debug("disconnect", "err", err)
	}
	m.log.Info("disconnected")
}

func (m *MQTT) setClient(c *paho.Client) {
	m.mu.Lock()
	m.client = c
	m.mu.Unlock()
}
