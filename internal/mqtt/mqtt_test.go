package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/tarifmanager/internal/rates"
	"github.com/bher20/tarifmanager/internal/tariff"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type fakeClient struct {
	mu   sync.Mutex
	sent []Message
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Message{Topic: topic, QoS: qos, Retain: retained, Payload: payload.([]byte)})
	return doneToken{}
}

func (f *fakeClient) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func TestParseLivePayload(t *testing.T) {
	cases := map[string]string{
		`{"current_tarif":"HC..","linkquality":120}`:                 "HC..",
		`{"active_register_tier_delivered":"HPJR"}`:                  "HPJR",
		`{"LTARF":"HEURES CREUSES"}`:                                 "HEURES CREUSES",
		`{"linkquality":120}`:                                        "",
		`"HSC"`:                                                      "HSC",
		" HP.. \n":                                                   "HP..",
		"":                                                           "",
		`{not json`:                                                  "",
		`{"current_tarif":"","active_register_tier_delivered":"HC"}`: "HC",
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLivePayload([]byte(in)), in)
	}
}

func TestHandleLive_FeedsSink(t *testing.T) {
	feed := rates.NewLiveFeed()
	b := NewBridge(Config{}, feed, zerolog.Nop())

	b.HandleLive("zigbee2mqtt/linky", []byte(`{"current_tarif":"HCJB"}`))
	ls, ok := feed.Get("default")
	require.True(t, ok)
	assert.Equal(t, tariff.OffPeak, ls.Status)
	assert.Equal(t, tariff.TempoBleu, ls.Tempo)

	b.HandleLive("zigbee2mqtt/linky", []byte(`{"current_tarif":"unavailable"}`))
	_, ok = feed.Get("default")
	assert.False(t, ok)
}

func TestDiscoveryMessages(t *testing.T) {
	msgs, err := DiscoveryMessages("homeassistant", "default", "Tarification", "EUR")
	require.NoError(t, err)
	require.Len(t, msgs, 8)

	topics := map[string]discoveryConfig{}
	for _, m := range msgs {
		assert.True(t, m.Retain)
		assert.Equal(t, byte(2), m.QoS)
		var cfg discoveryConfig
		require.NoError(t, json.Unmarshal(m.Payload, &cfg))
		topics[m.Topic] = cfg
	}

	cur, ok := topics["homeassistant/sensor/tarifmanager_default_current/config"]
	require.True(t, ok)
	assert.Equal(t, "homeassistant/sensor/tarifmanager_default/state", cur.StateTopic)
	assert.Equal(t, "{{ value_json.current }}", cur.ValueTemplate)
	assert.Equal(t, []string{"tarifmanager_default"}, cur.Device.Identifiers)

	hc, ok := topics["homeassistant/binary_sensor/tarifmanager_default_is_hc/config"]
	require.True(t, ok)
	assert.Equal(t, "ON", hc.PayloadOn)

	price := topics["homeassistant/sensor/tarifmanager_default_price_now/config"]
	assert.Equal(t, "EUR/kWh", price.UnitOfMeasurement)
}

func TestStateFor(t *testing.T) {
	price := 0.1568
	snap := &rates.Snapshot{
		Schedule: "default",
		Status:   tariff.SuperOffPeak,
		Label:    "Heures super creuses",
		Price:    &price,
		Next: &rates.NextChange{
			Clock: "06:00", To: tariff.Peak, MinutesUntil: 65, Countdown: "1h05",
		},
	}
	st := StateFor(snap)
	assert.Equal(t, "HSC", st.Status)
	assert.Equal(t, "Heures pleines", st.Next)
	assert.Equal(t, "06:00", st.NextChange)
	assert.Equal(t, "1h05", st.Remaining)
	assert.Equal(t, "OFF", st.IsHC)
	assert.Equal(t, "ON", st.IsHSC)
	assert.Equal(t, "standard", st.Period)
	assert.False(t, st.Live)
}

func TestSendWorker_PublishesQueued(t *testing.T) {
	b := NewBridge(Config{
		DiscoveryPrefix: "ha",
		Schedules:       []rates.ScheduleInfo{{Key: "default", Name: "Tarification"}},
	}, rates.NewLiveFeed(), zerolog.Nop())
	require.NoError(t, b.announce())
	require.NoError(t, b.PublishState(&rates.Snapshot{Schedule: "default", Status: tariff.Peak, Label: "Heures pleines"}))

	client := &fakeClient{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.sendWorker(ctx, client)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(client.messages()) == 9 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	last := client.messages()[8]
	assert.Equal(t, "ha/sensor/tarifmanager_default/state", last.Topic)
	var st State
	require.NoError(t, json.Unmarshal(last.Payload, &st))
	assert.Equal(t, "Heures pleines", st.Current)
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://mqtt:1883", BrokerURL("mqtt"))
	assert.Equal(t, "tcp://mqtt:8883", BrokerURL("mqtt:8883"))
	assert.Equal(t, "ssl://mqtt:8883", BrokerURL("ssl://mqtt:8883"))
}
