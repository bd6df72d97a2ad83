// Package ingest receives scanner readings over MQTT and hands them to the
// position estimation service as query fingerprints.
package ingest

import (
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/position.report/internal/fingerprint"
)

// subscribeQoS is the MQTT quality-of-service level for reading topics.
// At-least-once is enough: a duplicated sweep just produces one extra
// estimate row.
const subscribeQoS = 1

// DefaultTopic matches one reading topic per scanner device.
const DefaultTopic = "scanners/+/readings"

// Handler receives one query fingerprint per MQTT reading message.
type Handler func(deviceID string, fp *fingerprint.Fingerprint)

// Config describes the MQTT broker connection.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = "position-report"
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.ConnectTimeout <= 0 {
		// allow a slow broker container to come up before giving up
		c.ConnectTimeout = 60 * time.Second
	}
	return c
}

// Subscriber consumes reading messages from an MQTT broker and delivers the
// decoded fingerprints to a Handler.
type Subscriber struct {
	client  mqtt.Client
	topic   string
	handler Handler
}

// NewSubscriber connects to the broker and subscribes to the reading topic.
// The subscription is re-established on every reconnect.
func NewSubscriber(cfg Config, handler Handler) (*Subscriber, error) {
	if handler == nil {
		return nil, errors.New("ingest needs a handler")
	}
	if cfg.Broker == "" {
		return nil, errors.New("ingest needs a broker address")
	}
	cfg = cfg.withDefaults()

	s := &Subscriber{
		topic:   cfg.Topic,
		handler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		// subscribe inside the connect handler so a broker restart does
		// not silently drop the subscription
		token := c.Subscribe(s.topic, subscribeQoS, s.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("failed to subscribe to %s: %v", s.topic, err)
			return
		}
		log.Printf("subscribed to MQTT topic %s", s.topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return s, nil
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := s.handleMessage(msg.Topic(), msg.Payload()); err != nil {
		log.Printf("dropping MQTT message on %s: %v", msg.Topic(), err)
	}
}

func (s *Subscriber) handleMessage(topic string, payload []byte) error {
	deviceID, fp, err := DecodeMessage(topic, payload)
	if err != nil {
		return err
	}
	s.handler(deviceID, fp)
	return nil
}

// Close disconnects from the broker, waiting briefly for in-flight work.
func (s *Subscriber) Close() {
	s.client.Disconnect(250)
}
