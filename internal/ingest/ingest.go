// Package ingest receives biometric pushes from an MQTT broker and records
// them in the biometric store.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/heartsync/internal/biometric"
	"github.com/ayusman/heartsync/internal/log"
)

// DefaultConnectTimeout bounds how long Start waits for the first connection.
// The client keeps retrying in the background after that.
const DefaultConnectTimeout = 5 * time.Second

// ErrNoBroker is returned by Start when no broker address is configured.
var ErrNoBroker = errors.New("no mqtt broker configured")

// Config holds the broker connection settings.
type Config struct {
	Broker         string
	Topic          string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// Subscriber listens on one topic for biometric push messages.
type Subscriber struct {
	cfg    Config
	store  *biometric.Store
	client mqtt.Client

	accepted atomic.Int64
	rejected atomic.Int64
}

// New creates a Subscriber. It does not connect until Start.
func New(cfg Config, store *biometric.Store) *Subscriber {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	s := &Subscriber{cfg: cfg, store: store}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)

	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects to the broker. Subscriptions are made on every (re)connect.
// If the broker is not reachable within the connect timeout Start returns nil
// and the client keeps retrying.
func (s *Subscriber) Start() error {
	if s.cfg.Broker == "" {
		return ErrNoBroker
	}

	log.Info("connecting to mqtt broker", "broker", s.cfg.Broker, "topic", s.cfg.Topic)
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		log.Warn("mqtt broker not reachable yet, retrying in background", "broker", s.cfg.Broker)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt broker: %w", err)
	}
	return nil
}

func (s *Subscriber) onConnect(c mqtt.Client) {
	log.Info("mqtt connected", "broker", s.cfg.Broker)
	token := c.Subscribe(s.cfg.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.Handle(msg.Payload()); err != nil {
			log.Warn("dropping biometric message", "topic", msg.Topic(), "error", err)
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Error("mqtt subscribe failed", "topic", s.cfg.Topic, "error", token.Error())
	}
}

func (s *Subscriber) onConnectionLost(_ mqtt.Client, err error) {
	log.Warn("mqtt connection lost", "error", err)
}

// Handle decodes one message payload and pushes it into the store.
func (s *Subscriber) Handle(payload []byte) error {
	p, err := biometric.DecodePush(bytes.NewReader(payload))
	if err != nil {
		s.rejected.Add(1)
		return err
	}
	sample, err := p.Apply(s.store)
	if err != nil {
		s.rejected.Add(1)
		return err
	}
	s.accepted.Add(1)
	log.Debug("biometric sample received", "person", sample.Person, "hr", sample.HeartRate, "br", sample.BreathingRate)
	return nil
}

// Accepted returns the number of messages recorded in the store.
func (s *Subscriber) Accepted() int64 { return s.accepted.Load() }

// Rejected returns the number of messages dropped as malformed or invalid.
func (s *Subscriber) Rejected() int64 { return s.rejected.Load() }

// Close unsubscribes and disconnects. It also stops a client that is still
// retrying its first connection.
func (s *Subscriber) Close() {
	if s.client == nil {
		return
	}
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	}
	s.client.Disconnect(250)
	log.Info("mqtt disconnected")
}
