package framesource

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

type fakeCapture struct {
	mu         sync.Mutex
	live       bool
	failEvery  int
	failFirst  bool
	reads      int
	closeCount int
	closed     bool
	readsAfter int
	seq        uint64
	interval   time.Duration
	// eofAfter makes every read past this count return io.EOF, even after
	// a rewind.
	eofAfter int
	rewinds  int
}

func (c *fakeCapture) Read() (*types.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.readsAfter++
	}
	c.reads++
	if c.failFirst && c.reads == 1 {
		return nil, ErrReadFailed
	}
	if c.eofAfter > 0 && c.reads > c.eofAfter {
		return nil, io.EOF
	}
	if c.failEvery > 0 && c.reads%c.failEvery == 0 {
		return nil, errors.New("dropped capture")
	}
	c.seq++
	return &types.Frame{Seq: c.seq, Width: 1, Height: 1, Channels: 3, Data: []byte{0, 0, 0}}, nil
}

func (c *fakeCapture) Rewind() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rewinds++
	return nil
}

func (c *fakeCapture) Live() bool                   { return c.live }
func (c *fakeCapture) FrameInterval() time.Duration { return c.interval }

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	c.closed = true
	return nil
}

func (c *fakeCapture) snapshot() (reads, closeCount, readsAfter int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads, c.closeCount, c.readsAfter
}

func testOptions() Options {
	return Options{FailureBackoff: time.Millisecond, Pace: true}
}

func TestNewFailsWithoutInitialFrame(t *testing.T) {
	capture := &fakeCapture{live: true, failFirst: true}
	src, err := New(capture, testOptions())
	require.Error(t, err)
	assert.Nil(t, src)
	assert.ErrorIs(t, err, ErrReadFailed)

	_, closeCount, _ := capture.snapshot()
	assert.Equal(t, 1, closeCount)
}

func TestReadReturnsInitialFrameBeforeStart(t *testing.T) {
	capture := &fakeCapture{live: true}
	src, err := New(capture, testOptions())
	require.NoError(t, err)
	defer src.Stop()

	frame := src.Read()
	require.NotNil(t, frame)
	assert.Equal(t, uint64(1), frame.Seq)
}

func TestStartLifecycle(t *testing.T) {
	src, err := New(&fakeCapture{live: true}, testOptions())
	require.NoError(t, err)

	require.NoError(t, src.Start())
	assert.ErrorIs(t, src.Start(), ErrAlreadyStarted)

	src.Stop()
	assert.True(t, src.Stopped())
	assert.ErrorIs(t, src.Start(), ErrStopped)

	select {
	case <-src.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("acquisition loop did not exit")
	}
}

func TestStopReleasesCaptureOnce(t *testing.T) {
	capture := &fakeCapture{live: true}
	src, err := New(capture, testOptions())
	require.NoError(t, err)
	require.NoError(t, src.Start())

	require.Eventually(t, func() bool { return src.Read().Seq > 5 }, 2*time.Second, time.Millisecond)

	src.Stop()
	src.Stop()
	<-src.Done()

	reads, closeCount, readsAfter := capture.snapshot()
	assert.Equal(t, 1, closeCount)
	assert.Equal(t, 0, readsAfter)

	time.Sleep(10 * time.Millisecond)
	readsLater, _, _ := capture.snapshot()
	assert.Equal(t, reads, readsLater)
}

func TestStopBeforeStartReleasesCapture(t *testing.T) {
	capture := &fakeCapture{live: true}
	src, err := New(capture, testOptions())
	require.NoError(t, err)

	src.Stop()
	<-src.Done()
	_, closeCount, _ := capture.snapshot()
	assert.Equal(t, 1, closeCount)
}

func TestLiveReadFailuresAreTransient(t *testing.T) {
	capture := &fakeCapture{live: true, failEvery: 3}
	src, err := New(capture, testOptions())
	require.NoError(t, err)
	require.NoError(t, src.Start())
	defer src.Stop()

	require.Eventually(t, func() bool {
		return src.Stats().ReadFailures >= 3 && src.Read().Seq > 10
	}, 2*time.Second, time.Millisecond)
	assert.Zero(t, src.Stats().Rewinds)
}

func TestFileSourceLoops(t *testing.T) {
	capture := NewSynthetic(SyntheticConfig{Width: 4, Height: 4, FPS: 1000, Length: 3})
	require.False(t, capture.Live())

	src, err := New(capture, testOptions())
	require.NoError(t, err)
	require.Equal(t, byte(0), src.Read().Data[2])

	require.NoError(t, src.Start())
	defer src.Stop()

	sawLast := false
	require.Eventually(t, func() bool {
		frame := src.Read()
		position := frame.Data[2]
		if position == 2 {
			sawLast = true
		}
		return sawLast && position == 0 && frame.Seq > 3
	}, 2*time.Second, 100*time.Microsecond)
	assert.NotZero(t, src.Stats().Rewinds)
}

func TestSyntheticLiveNeverEnds(t *testing.T) {
	capture := NewSynthetic(SyntheticConfig{Width: 2, Height: 2, FPS: 1000})
	assert.True(t, capture.Live())
	assert.Zero(t, capture.FrameInterval())
	for i := 0; i < 5; i++ {
		frame, err := capture.Read()
		require.NoError(t, err)
		assert.Equal(t, 2*2*3, len(frame.Data))
	}
	require.NoError(t, capture.Close())
	_, err := capture.Read()
	assert.Error(t, err)
}

func readsDuring(t *testing.T, capture *fakeCapture, d time.Duration) int {
	t.Helper()
	src, err := New(capture, testOptions())
	require.NoError(t, err)
	require.NoError(t, src.Start())
	time.Sleep(d)
	src.Stop()
	<-src.Done()
	reads, _, _ := capture.snapshot()
	return reads
}

func TestNonLiveSourceIsPacedByFrameInterval(t *testing.T) {
	reads := readsDuring(t, &fakeCapture{interval: 20 * time.Millisecond}, 200*time.Millisecond)
	// One initial read plus roughly one per interval.
	assert.GreaterOrEqual(t, reads, 3)
	assert.LessOrEqual(t, reads, 14)
}

func TestLiveSourceIsNotPaced(t *testing.T) {
	reads := readsDuring(t, &fakeCapture{live: true, interval: 20 * time.Millisecond}, 200*time.Millisecond)
	assert.Greater(t, reads, 50)
}

func TestRewindWithoutSeekBacksOff(t *testing.T) {
	capture := &fakeCapture{eofAfter: 1}
	src, err := New(capture, Options{FailureBackoff: 10 * time.Millisecond, Pace: true})
	require.NoError(t, err)
	require.NoError(t, src.Start())
	time.Sleep(100 * time.Millisecond)
	src.Stop()
	<-src.Done()

	capture.mu.Lock()
	rewinds := capture.rewinds
	capture.mu.Unlock()
	assert.GreaterOrEqual(t, rewinds, 1)
	assert.LessOrEqual(t, rewinds, 15)
	assert.NotZero(t, src.Stats().ReadFailures)
}
