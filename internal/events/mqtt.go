package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/hvac_dispatch/backend/internal/metrics"
	"github.com/hvac_dispatch/backend/internal/models"
)

const (
	DefaultTopicPrefix = "dispatch"
	publishTimeout     = 5 * time.Second
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Backoff     time.Duration
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// MQTTRelay pushes job events to technician devices. Devices listen on
// <prefix>/<technicianID>/# and refetch their schedule when <prefix>/resync arrives,
// which is sent after every reconnect because paho does not replay missed messages.
type MQTTRelay struct {
	cli    pahoClient
	prefix string
	qos    byte
	logger zerolog.Logger

	connected atomic.Bool
}

// NewMQTTRelay connects to the broker. Reconnects are retried at a fixed interval.
func NewMQTTRelay(cfg MQTTConfig, logger zerolog.Logger) (*MQTTRelay, error) {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	r := &MQTTRelay{prefix: cfg.TopicPrefix, qos: cfg.QoS, logger: logger}
	if r.prefix == "" {
		r.prefix = DefaultTopicPrefix
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(publishTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.Backoff).
		SetMaxReconnectInterval(cfg.Backoff)
	opts.OnConnect = func(c paho.Client) { r.onConnect(c) }
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		metrics.RelayReconnects.WithLabelValues("mqtt").Inc()
		logger.Warn().Err(err).Msg("mqtt connection lost")
	}

	c := newMQTTClient(opts)
	r.cli = c
	// with ConnectRetry the token only completes once connected, so don't block startup on it
	if token := c.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return r, nil
}

func (r *MQTTRelay) onConnect(c pahoClient) {
	if !r.connected.Swap(true) {
		r.logger.Info().Msg("mqtt connected")
		return
	}
	r.logger.Info().Msg("mqtt reconnected, requesting device resync")
	token := c.Publish(r.prefix+"/resync", r.qos, false, []byte(time.Now().UTC().Format(time.RFC3339)))
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		r.logger.Warn().Err(token.Error()).Msg("mqtt resync publish failed")
	}
}

// Handle publishes ev to the assigned technician and, for reassignments, to the previous one.
func (r *MQTTRelay) Handle(ev models.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error().Err(err).Uint64("sequence", ev.Sequence).Msg("encode event")
		return
	}
	for _, tech := range recipients(ev) {
		topic := r.Topic(tech, ev.Type)
		token := r.cli.Publish(topic, r.qos, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			r.logger.Warn().Str("topic", topic).Msg("mqtt publish timed out")
			continue
		}
		if err := token.Error(); err != nil {
			r.logger.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		}
	}
}

func (r *MQTTRelay) Topic(technicianID string, typ models.EventType) string {
	return fmt.Sprintf("%s/%s/%s", r.prefix, technicianID, strings.ToLower(string(typ)))
}

func (r *MQTTRelay) Close() {
	if r.cli.IsConnected() {
		r.cli.Disconnect(250)
	}
}

func recipients(ev models.Event) []string {
	var out []string
	if ev.TechnicianID != "" {
		out = append(out, ev.TechnicianID)
	}
	if ev.PreviousTechnicianID != "" && ev.PreviousTechnicianID != ev.TechnicianID {
		out = append(out, ev.PreviousTechnicianID)
	}
	return out
}
