package mqtt

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sosodev/duration"
)

const (
	// DefaultTLSPort is used when UseTls is set and TcpPort is absent.
	DefaultTLSPort = 8883
	// DefaultPort is used for plain TCP when TcpPort is absent.
	DefaultPort = 1883
	// DefaultKeepAlive is the MQTT keep-alive when none is configured.
	DefaultKeepAlive = 60 * time.Second
	// ClientIDPrefix starts every generated client identifier.
	ClientIDPrefix = "heat-sentinel-"

	deviceTopicPrefix = "devices/"
	deviceTopicSuffix = "/messages/events/"
)

var (
	// ErrHostNameRequired is returned when HostName is missing.
	ErrHostNameRequired = errors.New("connection string: HostName must not be empty")

	errInvalidPort      = errors.New("connection string: invalid TcpPort")
	errInvalidUseTLS    = errors.New("connection string: invalid UseTls")
	errInvalidKeepAlive = errors.New("connection string: invalid KeepAlive")
)

// Settings describe how to reach the cloud broker.
type Settings struct {
	// HostName of the broker.
	HostName string
	// Port of the broker.
	Port int
	// UseTLS enables TLS.
	UseTLS bool
	// ClientID identifies this device to the broker.
	ClientID string
	// Username is optional.
	Username string
	// Password is optional.
	Password string
	// Topic receives alerts.
	Topic string
	// KeepAlive is the MQTT keep-alive interval.
	KeepAlive time.Duration
}

// ParseConnectionString reads settings from a connection string such as
// "HostName=hub.example.net;UseTls=true;ClientId=sensor-1;KeepAlive=PT30S".
func ParseConnectionString(connStr string) (*Settings, error) {
	settingsMap := parseToSettingsMap(connStr, ";")

	s := &Settings{
		HostName:  settingsMap["hostname"],
		ClientID:  settingsMap["clientid"],
		Username:  settingsMap["username"],
		Password:  settingsMap["password"],
		Topic:     settingsMap["topic"],
		KeepAlive: DefaultKeepAlive,
	}

	if s.HostName == "" {
		return nil, ErrHostNameRequired
	}

	if value, exists := settingsMap["usetls"]; exists {
		useTLS, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", errInvalidUseTLS, value)
		}

		s.UseTLS = useTLS
	}

	s.Port = DefaultPort
	if s.UseTLS {
		s.Port = DefaultTLSPort
	}

	if value, exists := settingsMap["tcpport"]; exists {
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil || port == 0 {
			return nil, fmt.Errorf("%w: %q", errInvalidPort, value)
		}

		s.Port = int(port)
	}

	if value, exists := settingsMap["keepalive"]; exists {
		keepAlive, err := duration.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errInvalidKeepAlive, value, err)
		}

		s.KeepAlive = keepAlive.ToTimeDuration()
	}

	if s.ClientID == "" {
		s.ClientID = ClientIDPrefix + uuid.NewString()
	}

	if s.Topic == "" {
		s.Topic = deviceTopicPrefix + s.ClientID + deviceTopicSuffix
	}

	return s, nil
}

// Address is the host:port of the broker.
func (s *Settings) Address() string {
	return net.JoinHostPort(s.HostName, strconv.Itoa(s.Port))
}

// PublishTopic is the topic a message is published to. IoT-Hub style device
// topics carry the content type and encoding as a property bag.
func (s *Settings) PublishTopic(contentType, contentEncoding string) string {
	if !strings.HasPrefix(s.Topic, deviceTopicPrefix) || !strings.HasSuffix(s.Topic, deviceTopicSuffix) {
		return s.Topic
	}

	return s.Topic + "$.ct=" + url.QueryEscape(contentType) + "&$.ce=" + url.QueryEscape(contentEncoding)
}

func parseToSettingsMap(connStr, delimiter string) map[string]string {
	var (
		settingsMap = make(map[string]string)
		params      = strings.Split(strings.TrimSuffix(connStr, delimiter), delimiter)
	)

	for _, param := range params {
		kv := strings.SplitN(param, "=", 2)
		if len(kv) != 2 {
			continue
		}

		settingsMap[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
	}

	return settingsMap
}
