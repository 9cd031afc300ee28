// Package mqttsink mirrors published landmark frames to an MQTT broker as
// JSON. It is a best-effort side channel: frames are dropped when the broker
// is slow or unreachable.
package mqttsink

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

const queueSize = 32

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Sink struct {
	client publisher
	topic  string
	queue  chan types.UISnapshot
	done   chan struct{}
	once   sync.Once

	disconnect func()

	published atomic.Uint64
	dropped   atomic.Uint64
	errs      atomic.Uint64
	connected atomic.Bool
	errLog    rate.Sometimes
}

// Dial connects to broker (e.g. tcp://localhost:1883) and starts the publish
// worker. The client reconnects on its own after a lost connection.
func Dial(broker, topic string) (*Sink, error) {
	s := &Sink{}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("handosc-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		s.connected.Store(true)
		log.Printf("mqtt: connected to %s", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.connected.Store(false)
		log.Printf("mqtt: connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	s.connected.Store(true)
	s.init(client, topic)
	s.disconnect = func() { client.Disconnect(250) }
	return s, nil
}

func newSink(client publisher, topic string) *Sink {
	s := &Sink{}
	s.init(client, topic)
	s.connected.Store(true)
	return s
}

func (s *Sink) init(client publisher, topic string) {
	s.client = client
	s.topic = topic
	s.queue = make(chan types.UISnapshot, queueSize)
	s.done = make(chan struct{})
	s.errLog = rate.Sometimes{First: 1, Interval: 10 * time.Second}
	go s.run()
}

// Mirror queues a snapshot without blocking.
func (s *Sink) Mirror(snapshot types.UISnapshot) {
	select {
	case s.queue <- snapshot:
	default:
		s.dropped.Add(1)
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for snapshot := range s.queue {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			s.fail(err)
			continue
		}
		token := s.client.Publish(s.topic, 0, false, payload)
		if !token.WaitTimeout(2 * time.Second) {
			s.fail(fmt.Errorf("publish to %s: timeout", s.topic))
			continue
		}
		if err := token.Error(); err != nil {
			s.fail(err)
			continue
		}
		s.published.Add(1)
	}
}

func (s *Sink) fail(err error) {
	s.errs.Add(1)
	s.errLog.Do(func() {
		log.Printf("mqtt: %v (%d errors so far)", err, s.errs.Load())
	})
}

// Close drains queued snapshots and disconnects.
func (s *Sink) Close() error {
	s.once.Do(func() {
		close(s.queue)
		<-s.done
		if s.disconnect != nil {
			s.disconnect()
		}
		s.connected.Store(false)
	})
	return nil
}

func (s *Sink) Stats() map[string]any {
	return map[string]any{
		"mqtt_connected":         s.connected.Load(),
		"mqtt_published_total":   s.published.Load(),
		"mqtt_dropped_total":     s.dropped.Load(),
		"mqtt_publish_err_total": s.errs.Load(),
	}
}
