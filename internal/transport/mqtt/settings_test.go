package mqtt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseConnectionString(t *testing.T) {
	t.Parallel()

	s, err := ParseConnectionString(
		"HostName=hub.example.net;TcpPort=8884;UseTls=True;ClientId=sensor-1;" +
			"Username=device;Password=secret;Topic=alerts/heat;KeepAlive=PT30S;")
	require.NoError(t, err)
	require.Equal(t, &Settings{
		HostName:  "hub.example.net",
		Port:      8884,
		UseTLS:    true,
		ClientID:  "sensor-1",
		Username:  "device",
		Password:  "secret",
		Topic:     "alerts/heat",
		KeepAlive: 30 * time.Second,
	}, s)
	require.Equal(t, "hub.example.net:8884", s.Address())
}

func TestParseConnectionString_Defaults(t *testing.T) {
	t.Parallel()

	s, err := ParseConnectionString("hostname = broker.local ; usetls = true")
	require.NoError(t, err)
	require.Equal(t, "broker.local", s.HostName)
	require.True(t, s.UseTLS)
	require.Equal(t, DefaultTLSPort, s.Port)
	require.Equal(t, DefaultKeepAlive, s.KeepAlive)
	require.True(t, strings.HasPrefix(s.ClientID, ClientIDPrefix))
	require.Equal(t, "devices/"+s.ClientID+"/messages/events/", s.Topic)

	s, err = ParseConnectionString("HostName=broker.local")
	require.NoError(t, err)
	require.False(t, s.UseTLS)
	require.Equal(t, DefaultPort, s.Port)
}

func TestParseConnectionString_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		connStr string
		wantErr error
	}{
		{
			name:    "empty",
			connStr: "",
			wantErr: ErrHostNameRequired,
		},
		{
			name:    "missing host",
			connStr: "TcpPort=1883",
			wantErr: ErrHostNameRequired,
		},
		{
			name:    "bad port",
			connStr: "HostName=h;TcpPort=http",
			wantErr: errInvalidPort,
		},
		{
			name:    "zero port",
			connStr: "HostName=h;TcpPort=0",
			wantErr: errInvalidPort,
		},
		{
			name:    "bad tls flag",
			connStr: "HostName=h;UseTls=maybe",
			wantErr: errInvalidUseTLS,
		},
		{
			name:    "bad keep alive",
			connStr: "HostName=h;KeepAlive=30s",
			wantErr: errInvalidKeepAlive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseConnectionString(tt.connStr)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPublishTopic(t *testing.T) {
	t.Parallel()

	device := &Settings{Topic: "devices/sensor-1/messages/events/"}
	require.Equal(t,
		"devices/sensor-1/messages/events/$.ct=application%2Fjson&$.ce=utf-8",
		device.PublishTopic("application/json", "utf-8"))

	plain := &Settings{Topic: "alerts/heat"}
	require.Equal(t, "alerts/heat", plain.PublishTopic("application/json", "utf-8"))
}
