// Package mqtt publishes alerts to the cloud over MQTT v5.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"

	"github.com/oshokin/heat-sentinel/internal/logger"
	"github.com/oshokin/heat-sentinel/internal/transport"
)

const (
	// qosAtLeastOnce makes the broker acknowledge every alert.
	qosAtLeastOnce = 1
	// payloadFormatUTF8 marks the payload as UTF-8 text.
	payloadFormatUTF8 byte = 1
	// contentEncodingProperty carries the character encoding.
	contentEncodingProperty = "content-encoding"
)

// Sink publishes alert messages to a broker. The connection is opened on the
// first publish and reopened after a failure.
type Sink struct {
	// settings describe the broker.
	settings *Settings
	// tlsConfig is used when settings.UseTLS is set.
	tlsConfig *tls.Config

	// mu serializes connection handling and publishing.
	mu sync.Mutex
	// client is the live connection, nil when disconnected.
	client *paho.Client
	// failed is closed by paho when the live connection breaks.
	failed chan struct{}
}

// Option configures the sink.
type Option func(*Sink)

// WithTLSConfig overrides the TLS configuration.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Sink) {
		if cfg != nil {
			s.tlsConfig = cfg
		}
	}
}

// NewSink creates a sink for the given settings.
func NewSink(settings *Settings, opts ...Option) *Sink {
	s := &Sink{
		settings: settings,
		tlsConfig: &tls.Config{
			ServerName: settings.HostName,
			MinVersion: tls.VersionTLS12,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Dial parses connStr and connects to the broker.
func Dial(ctx context.Context, connStr string, opts ...Option) (*Sink, error) {
	settings, err := ParseConnectionString(connStr)
	if err != nil {
		return nil, err
	}

	s := NewSink(settings, opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.connect(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Settings returns the broker settings.
func (s *Sink) Settings() *Settings {
	return s.settings
}

// Publish sends msg at QoS 1 and waits for the broker acknowledgement.
func (s *Sink) Publish(ctx context.Context, msg *transport.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.broken() {
		s.drop()
	}

	if s.client == nil {
		if err := s.connect(ctx); err != nil {
			return err
		}
	}

	payloadFormat := payloadFormatUTF8
	pub := &paho.Publish{
		QoS:     qosAtLeastOnce,
		Topic:   s.settings.PublishTopic(msg.ContentType, msg.ContentEncoding),
		Payload: msg.Body,
		Properties: &paho.PublishProperties{
			ContentType:   msg.ContentType,
			PayloadFormat: &payloadFormat,
			User: paho.UserProperties{
				{Key: contentEncodingProperty, Value: msg.ContentEncoding},
				{Key: "message-id", Value: msg.MessageID},
			},
		},
	}

	if _, err := s.client.Publish(ctx, pub); err != nil {
		s.drop()

		return fmt.Errorf("mqtt publish to %s: %w", pub.Topic, err)
	}

	logger.DebugKV(ctx, "Published to broker", "topic", pub.Topic, "bytes", len(pub.Payload))

	return nil
}

// Close disconnects from the broker.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}

	err := s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	s.client = nil

	if err != nil {
		return fmt.Errorf("mqtt disconnect: %w", err)
	}

	return nil
}

// connect opens a fresh session. The caller holds mu.
func (s *Sink) connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("mqtt dial %s: %w", s.settings.Address(), err)
	}

	failed := make(chan struct{})

	var once sync.Once

	markFailed := func() {
		once.Do(func() { close(failed) })
	}

	client := paho.NewClient(paho.ClientConfig{
		Conn:     conn,
		ClientID: s.settings.ClientID,
		OnClientError: func(err error) {
			logger.Warnf(ctx, "MQTT client error: %v", err)
			markFailed()
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			logger.Warnf(ctx, "MQTT server disconnected, reason code %d", d.ReasonCode)
			markFailed()
		},
	})

	connect := &paho.Connect{
		ClientID:     s.settings.ClientID,
		CleanStart:   true,
		KeepAlive:    uint16(s.settings.KeepAlive.Seconds()),
		Username:     s.settings.Username,
		UsernameFlag: s.settings.Username != "",
		Password:     []byte(s.settings.Password),
		PasswordFlag: s.settings.Password != "",
	}

	if _, err = client.Connect(ctx, connect); err != nil {
		_ = conn.Close()

		return fmt.Errorf("mqtt connect to %s: %w", s.settings.Address(), err)
	}

	logger.InfoKV(ctx, "Connected to broker",
		"address", s.settings.Address(),
		"client_id", s.settings.ClientID,
		"tls", s.settings.UseTLS)

	s.client = client
	s.failed = failed

	return nil
}

func (s *Sink) dial(ctx context.Context) (net.Conn, error) {
	if !s.settings.UseTLS {
		var d net.Dialer

		return d.DialContext(ctx, "tcp", s.settings.Address())
	}

	d := tls.Dialer{Config: s.tlsConfig}

	conn, err := d.DialContext(ctx, "tcp", s.settings.Address())
	if err != nil {
		return nil, err
	}

	return packets.NewThreadSafeConn(conn), nil
}

func (s *Sink) broken() bool {
	select {
	case <-s.failed:
		return true
	default:
		return false
	}
}

// drop forgets the live connection. The caller holds mu.
func (s *Sink) drop() {
	if s.client == nil {
		return
	}

	_ = s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	s.client = nil

	logger.Debugf(context.Background(), "Dropped MQTT connection to %s", s.settings.Address())
}
