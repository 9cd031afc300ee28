package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/normalize"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

type sent struct {
	address string
	args    []any
}

type recordingSender struct {
	msgs []sent
	fail bool
}

func (r *recordingSender) Send(address string, args ...any) error {
	if r.fail {
		return errors.New("network down")
	}
	r.msgs = append(r.msgs, sent{address: address, args: args})
	return nil
}

func fullHand(n *normalize.Normalizer) *types.HandLandmarks {
	names := n.Names()
	points := make([]types.Landmark, len(names))
	for i, name := range names {
		points[i] = types.Landmark{Name: name, X: 0.25, Y: 0.5, Z: -0.05}
	}
	return &types.HandLandmarks{Points: points}
}

func TestPublishVisibleAndHiddenHands(t *testing.T) {
	n, err := normalize.New(normalize.DefaultTables())
	require.NoError(t, err)
	sender := &recordingSender{}
	mirror := make(chan any, 1)
	p := NewPublisher(sender, n, ChanMirror(mirror))

	var det types.Detection
	det.Hands[types.Left] = fullHand(n)
	snap := p.Publish(9, det)

	render := normalize.DefaultTables().Render
	require.Len(t, sender.msgs, 1+len(render)+1)
	assert.Equal(t, sent{"/left_hand/visible", []any{true}}, sender.msgs[0])
	assert.Equal(t, "/left_hand/wrist/xyz", sender.msgs[1].address)
	assert.Equal(t, "/left_hand/pinky_tip/xyz", sender.msgs[len(render)].address)
	assert.Equal(t, sent{"/right_hand/visible", []any{false}}, sender.msgs[len(sender.msgs)-1])

	xyz := sender.msgs[2].args[0].([]float64)
	assert.InDelta(t, 0.75, xyz[0], 1e-12)
	assert.InDelta(t, 0.5, xyz[1], 1e-12)
	assert.InDelta(t, 0.5, xyz[2], 1e-12)

	wrist := sender.msgs[1].args[0].([]float64)
	assert.InDelta(t, -0.5, wrist[2], 1e-12)

	assert.Equal(t, uint64(9), snap.Seq)
	assert.True(t, snap.Hands["left_hand"].Visible)
	assert.False(t, snap.Hands["right_hand"].Visible)
	assert.Equal(t, snap, *p.Latest())
	assert.Len(t, mirror, 1)
}

func TestPublishContinuesAfterSendErrors(t *testing.T) {
	n, err := normalize.New(normalize.DefaultTables())
	require.NoError(t, err)
	sender := &recordingSender{fail: true}
	p := NewPublisher(sender, n)

	var det types.Detection
	det.Hands[types.Right] = fullHand(n)
	p.Publish(1, det)

	stats := p.Snapshot()
	assert.Equal(t, uint64(1), stats["frames_published_total"])
	assert.Equal(t, uint64(0), stats["messages_sent_total"])
	assert.Equal(t, uint64(2+len(normalize.DefaultTables().Render)), stats["message_send_err_total"])
	assert.Equal(t, uint64(1), stats["right_hand_visible_total"])
}

func TestChanMirrorDropsWhenFull(t *testing.T) {
	ch := make(chan any, 1)
	m := ChanMirror(ch)
	m.Mirror(types.UISnapshot{Seq: 1})
	m.Mirror(types.UISnapshot{Seq: 2})
	require.Len(t, ch, 1)
	assert.Equal(t, uint64(1), (<-ch).(types.UISnapshot).Seq)
}
