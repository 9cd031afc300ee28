package mqttsink

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type fakeBroker struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	fail     bool
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return fakeToken{err: errors.New("not connected")}
	}
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, payload.([]byte))
	return fakeToken{}
}

func TestSinkPublishesJSON(t *testing.T) {
	broker := &fakeBroker{}
	s := newSink(broker, "handosc/landmarks")
	s.Mirror(types.UISnapshot{Type: "landmarks", Seq: 3, Hands: map[string]types.HandSnapshot{"left_hand": {Visible: true}}})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(broker.payloads) != 1 || broker.topics[0] != "handosc/landmarks" {
		t.Fatalf("unexpected publishes %v", broker.topics)
	}
	var got types.UISnapshot
	if err := json.Unmarshal(broker.payloads[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Seq != 3 || !got.Hands["left_hand"].Visible {
		t.Fatalf("unexpected payload %+v", got)
	}
	if s.Stats()["mqtt_published_total"] != uint64(1) {
		t.Fatalf("unexpected stats %v", s.Stats())
	}
}

func TestSinkCountsErrors(t *testing.T) {
	broker := &fakeBroker{fail: true}
	s := newSink(broker, "t")
	s.Mirror(types.UISnapshot{Seq: 1})
	s.Mirror(types.UISnapshot{Seq: 2})
	_ = s.Close()
	if s.Stats()["mqtt_publish_err_total"] != uint64(2) {
		t.Fatalf("unexpected stats %v", s.Stats())
	}
	_ = s.Close()
}
