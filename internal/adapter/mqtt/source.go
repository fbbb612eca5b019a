// Package mqtt subscribes to the vessel's instrument gateway over MQTT and
// turns its JSON payloads into domain samples.
package mqtt

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/saltline/polar-engine/internal/domain"
)

// Config holds the broker connection settings.
type Config struct {
	Broker          string
	Port            int
	Username        string
	Password        string
	Topic           string
	ClientID        string
	UseTLS          bool
	InsecureSkipTLS bool
	ConnectTimeout  time.Duration
}

// Source implements engine.SampleSource on a paho MQTT client.
type Source struct {
	cfg    Config
	logger *slog.Logger
	client pahomqtt.Client
}

// NewSource creates an unconnected source; Subscribe connects.
func NewSource(cfg Config, logger *slog.Logger) *Source {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("polar-engine-%d", time.Now().Unix())
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Source{cfg: cfg, logger: logger}
}

// Subscribe connects to the broker and delivers one parsed sample per
// message, in arrival order. The returned function unsubscribes and
// disconnects.
func (s *Source) Subscribe(handler func(domain.InstrumentSample)) (func(), error) {
	opts := pahomqtt.NewClientOptions()

	protocol := "tcp"
	if s.cfg.UseTLS {
		protocol = "tls"
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: s.cfg.InsecureSkipTLS})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", protocol, s.cfg.Broker, s.cfg.Port))
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	// Paho replays the subscription itself on reconnect when sessions are
	// not persisted.
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	opts.OnConnect = func(c pahomqtt.Client) {
		s.logger.Info("mqtt connected", "broker", s.cfg.Broker, "topic", s.cfg.Topic)
		token := c.Subscribe(s.cfg.Topic, 0, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			s.handleMessage(msg.Payload(), handler)
		})
		if token.WaitTimeout(s.cfg.ConnectTimeout) && token.Error() != nil {
			s.logger.Error("mqtt subscribe failed", "topic", s.cfg.Topic, "error", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", "error", err)
	}
	opts.OnReconnecting = func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		s.logger.Info("mqtt reconnecting", "broker", s.cfg.Broker)
	}

	s.client = pahomqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout after %s", s.cfg.Broker, s.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", s.cfg.Broker, err)
	}

	return func() {
		s.client.Unsubscribe(s.cfg.Topic)
		s.client.Disconnect(250)
	}, nil
}

// handleMessage parses one gateway payload and forwards it. Malformed
// payloads are logged at debug and dropped; the bus is allowed to be noisy.
func (s *Source) handleMessage(payload []byte, handler func(domain.InstrumentSample)) {
	sample, err := domain.ParseSample(payload)
	if err != nil {
		s.logger.Debug("unparseable instrument payload", "error", err)
		return
	}
	handler(sample)
}
