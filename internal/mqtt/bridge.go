package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/bher20/tarifmanager/internal/metrics"
	"github.com/bher20/tarifmanager/internal/rates"
	"github.com/bher20/tarifmanager/internal/tariff"
)

// Message is an outgoing MQTT message.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// LiveSink receives raw meter readings.
type LiveSink interface {
	Set(key, raw string) (tariff.LiveStatus, bool)
}

// Publisher is the subset of paho.Client the sender needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type Config struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	LiveTopic       string
	DiscoveryPrefix string
	Currency        string
	Schedules       []rates.ScheduleInfo
}

// Bridge connects the service to an MQTT broker: it feeds live meter
// readings in and publishes schedule state and discovery out.
type Bridge struct {
	cfg      Config
	live     LiveSink
	outgoing chan Message
	log      zerolog.Logger
}

func NewBridge(cfg Config, live LiveSink, logger zerolog.Logger) *Bridge {
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	return &Bridge{
		cfg:      cfg,
		live:     live,
		outgoing: make(chan Message, 64),
		log:      logger.With().Str("component", "mqtt").Logger(),
	}
}

// BrokerURL normalises a broker address: a bare host gets tcp:// and port
// 1883.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	if !strings.Contains(broker, ":") {
		broker += ":1883"
	}
	return "tcp://" + broker
}

// Run connects and serves until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(BrokerURL(b.cfg.Broker))
	opts.SetClientID(b.cfg.ClientID)
	opts.SetUsername(b.cfg.Username)
	opts.SetPassword(b.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		b.log.Warn().Err(err).Msg("connection lost")
	})
	opts.SetOnConnectHandler(func(c paho.Client) {
		b.log.Info().Str("broker", b.cfg.Broker).Msg("connected")
		if b.cfg.LiveTopic != "" {
			token := c.Subscribe(b.cfg.LiveTopic, 0, func(_ paho.Client, msg paho.Message) {
				b.HandleLive(msg.Topic(), msg.Payload())
			})
			if token.Wait() && token.Error() != nil {
				b.log.Error().Err(token.Error()).Str("topic", b.cfg.LiveTopic).Msg("subscribe failed")
			} else {
				b.log.Info().Str("topic", b.cfg.LiveTopic).Msg("subscribed")
			}
		}
		if err := b.announce(); err != nil {
			b.log.Error().Err(err).Msg("discovery failed")
		}
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}

	b.sendWorker(ctx, client)

	if client.IsConnected() {
		client.Disconnect(250)
		b.log.Info().Msg("disconnected")
	}
	return nil
}

// announce queues the discovery configs of every schedule.
func (b *Bridge) announce() error {
	for _, sc := range b.cfg.Schedules {
		msgs, err := DiscoveryMessages(b.cfg.DiscoveryPrefix, sc.Key, sc.Name, b.cfg.Currency)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			b.enqueue(m)
		}
	}
	return nil
}

// HandleLive feeds one live topic message to the sink. The meter reading
// applies to every schedule.
func (b *Bridge) HandleLive(topic string, payload []byte) {
	raw := ParseLivePayload(payload)
	ls, ok := b.live.Set("", raw)
	if !ok {
		metrics.LiveReadingsTotal.WithLabelValues("mqtt", "ignored").Inc()
		b.log.Debug().Str("topic", topic).Str("value", raw).Msg("live value not recognised, using schedule")
		return
	}
	metrics.LiveReadingsTotal.WithLabelValues("mqtt", "accepted").Inc()
	b.log.Debug().Str("topic", topic).Str("status", ls.Status.String()).Msg("live reading")
}

// PublishState queues the state document of a snapshot.
func (b *Bridge) PublishState(snap *rates.Snapshot) error {
	payload, err := json.Marshal(StateFor(snap))
	if err != nil {
		return err
	}
	b.enqueue(Message{
		Topic:   StateTopic(b.cfg.DiscoveryPrefix, snap.Schedule),
		Payload: payload,
		QoS:     1,
		Retain:  true,
	})
	return nil
}

// enqueue never blocks; when the queue is full the message is dropped.
func (b *Bridge) enqueue(m Message) {
	select {
	case b.outgoing <- m:
	default:
		b.log.Warn().Str("topic", m.Topic).Msg("outgoing queue full, dropping message")
	}
}

func (b *Bridge) sendWorker(ctx context.Context, client Publisher) {
	b.log.Debug().Msg("sender worker started")
	for {
		select {
		case msg := <-b.outgoing:
			token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
			token.Wait()
			if token.Error() != nil {
				b.log.Error().Err(token.Error()).Str("topic", msg.Topic).Msg("publish failed")
			}
		case <-ctx.Done():
			b.log.Debug().Msg("sender worker stopped")
			return
		}
	}
}
