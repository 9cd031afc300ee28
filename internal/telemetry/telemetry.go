// Package telemetry turns per-frame detections into OSC messages.
package telemetry

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/normalize"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

type Sender interface {
	Send(address string, args ...any) error
}

// Mirror receives a copy of every published frame. Implementations must not
// block.
type Mirror interface {
	Mirror(snapshot types.UISnapshot)
}

// ChanMirror forwards snapshots into a channel, dropping them when it is full.
type ChanMirror chan<- any

func (c ChanMirror) Mirror(snapshot types.UISnapshot) {
	select {
	case c <- snapshot:
	default:
	}
}

func VisibleAddress(hand types.Hand) string {
	return fmt.Sprintf("/%s/visible", hand)
}

func LandmarkAddress(hand types.Hand, landmark string) string {
	return fmt.Sprintf("/%s/%s/xyz", hand, landmark)
}

type Publisher struct {
	sender     Sender
	normalizer *normalize.Normalizer
	mirrors    []Mirror

	frames   atomic.Uint64
	messages atomic.Uint64
	sendErrs atomic.Uint64
	visible  [len(types.Hands)]atomic.Uint64
	latest   atomic.Pointer[types.UISnapshot]

	errLog rate.Sometimes
}

func NewPublisher(sender Sender, normalizer *normalize.Normalizer, mirrors ...Mirror) *Publisher {
	return &Publisher{
		sender:     sender,
		normalizer: normalizer,
		mirrors:    mirrors,
		errLog:     rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Publish sends the visibility flag of every hand and, for visible hands, the
// normalized coordinates of each rendered landmark. Send failures are logged
// and counted; they never abort the frame.
func (p *Publisher) Publish(seq uint64, det types.Detection) types.UISnapshot {
	snapshot := types.UISnapshot{
		Type:  "landmarks",
		Seq:   seq,
		Hands: make(map[string]types.HandSnapshot, len(types.Hands)),
	}

	for _, hand := range types.Hands {
		raw := det.Hands[hand]
		if raw == nil {
			p.send(VisibleAddress(hand), false)
			snapshot.Hands[hand.String()] = types.HandSnapshot{Visible: false}
			continue
		}

		p.visible[hand].Add(1)
		p.send(VisibleAddress(hand), true)
		landmarks := p.normalizer.Hand(raw)
		for _, lm := range landmarks {
			p.send(LandmarkAddress(hand, lm.Name), []float64{lm.X, lm.Y, lm.Z})
		}
		snapshot.Hands[hand.String()] = types.HandSnapshot{Visible: true, Landmarks: landmarks}
	}

	p.frames.Add(1)
	p.latest.Store(&snapshot)
	for _, m := range p.mirrors {
		m.Mirror(snapshot)
	}
	return snapshot
}

func (p *Publisher) send(address string, args ...any) {
	if err := p.sender.Send(address, args...); err != nil {
		p.sendErrs.Add(1)
		p.errLog.Do(func() {
			log.Printf("telemetry: send failed (%d so far): %v", p.sendErrs.Load(), err)
		})
		return
	}
	p.messages.Add(1)
}

// Latest returns the most recently published snapshot, or nil.
func (p *Publisher) Latest() *types.UISnapshot {
	return p.latest.Load()
}

func (p *Publisher) Snapshot() map[string]any {
	return map[string]any{
		"frames_published_total":   p.frames.Load(),
		"messages_sent_total":      p.messages.Load(),
		"message_send_err_total":   p.sendErrs.Load(),
		"left_hand_visible_total":  p.visible[types.Left].Load(),
		"right_hand_visible_total": p.visible[types.Right].Load(),
	}
}
