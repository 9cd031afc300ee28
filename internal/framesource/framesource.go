// Package framesource decouples frame capture from frame consumption.
//
// A Source owns one Capture and runs its acquisition loop on a dedicated
// goroutine. Every captured frame overwrites a single shared slot: there is no
// queue and no backpressure, readers always get the most recent frame and
// intermediate frames are dropped. The slot is an atomic pointer swap; frames
// themselves are immutable once published, so readers never observe a frame
// that is being written.
package framesource

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/types"
)

var (
	ErrAlreadyStarted = errors.New("frame source already started")
	ErrStopped        = errors.New("frame source stopped")
	ErrReadFailed     = errors.New("capture read failed")
)

// Capture is a device or file handle producing frames.
//
// Read returns io.EOF when a finite source is exhausted. Any other error is
// treated as a transient failure.
type Capture interface {
	Read() (*types.Frame, error)
	Rewind() error
	Live() bool
	FrameInterval() time.Duration
	Close() error
}

type Options struct {
	// FailureBackoff is slept after a failed read so a dead device does not
	// spin the acquisition goroutine. Successful live reads are never delayed.
	FailureBackoff time.Duration
	// Pace sleeps FrameInterval after each read of a non-live source.
	Pace bool
}

func DefaultOptions() Options {
	return Options{
		FailureBackoff: 10 * time.Millisecond,
		Pace:           true,
	}
}

type Stats struct {
	FramesCaptured uint64 `json:"frames_captured"`
	FramesDropped  uint64 `json:"frames_dropped"`
	ReadFailures   uint64 `json:"read_failures"`
	Rewinds        uint64 `json:"rewinds"`
}

type Source struct {
	capture Capture
	opts    Options

	slot     atomic.Pointer[types.Frame]
	lastRead atomic.Uint64

	mu      sync.Mutex
	started bool
	stopped atomic.Bool
	done    chan struct{}
	release sync.Once

	captured atomic.Uint64
	dropped  atomic.Uint64
	failures atomic.Uint64
	rewinds  atomic.Uint64

	// rewound is set when the last loop iteration rewound the capture and
	// nothing has been read since. Owned by the acquisition goroutine.
	rewound bool

	failLog rate.Sometimes
}

// New takes ownership of capture and reads one frame synchronously. If that
// read fails the capture is closed and New returns an error.
func New(capture Capture, opts Options) (*Source, error) {
	if capture == nil {
		return nil, errors.New("capture is nil")
	}
	first, err := capture.Read()
	if err != nil || first == nil {
		_ = capture.Close()
		if err == nil {
			err = ErrReadFailed
		}
		return nil, fmt.Errorf("read initial frame: %w", err)
	}
	s := &Source{
		capture: capture,
		opts:    opts,
		done:    make(chan struct{}),
		failLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	s.slot.Store(first)
	s.captured.Add(1)
	return s, nil
}

// Start runs the acquisition loop on its own goroutine. It may be called once.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	go s.run()
	return nil
}

// Read returns the most recently captured frame without blocking.
func (s *Source) Read() *types.Frame {
	frame := s.slot.Load()
	s.lastRead.Store(frame.Seq)
	return frame
}

// Stop asks the acquisition loop to exit after its current iteration and
// returns immediately. Use Done to wait for the capture to be released.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped.Store(true)
	if !s.started {
		// No loop will ever observe the flag; release here.
		s.close()
	}
}

func (s *Source) Stopped() bool {
	return s.stopped.Load()
}

// Done is closed once the acquisition loop has exited and the capture has
// been released.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

func (s *Source) Live() bool {
	return s.capture.Live()
}

func (s *Source) FrameInterval() time.Duration {
	return s.capture.FrameInterval()
}

func (s *Source) Stats() Stats {
	return Stats{
		FramesCaptured: s.captured.Load(),
		FramesDropped:  s.dropped.Load(),
		ReadFailures:   s.failures.Load(),
		Rewinds:        s.rewinds.Load(),
	}
}

func (s *Source) run() {
	defer s.close()
	live := s.capture.Live()
	interval := s.capture.FrameInterval()

	for {
		if s.stopped.Load() {
			return
		}

		frame, err := s.capture.Read()
		if err != nil || frame == nil {
			s.handleFailure(live, err)
			continue
		}

		s.rewound = false
		s.publish(frame)
		if !live && s.opts.Pace && interval > 0 {
			time.Sleep(interval)
		}
	}
}

func (s *Source) handleFailure(live bool, err error) {
	if !live && (err == nil || errors.Is(err, io.EOF)) {
		if s.rewound {
			// EOF right after a rewind: the capture did not seek.
			s.failures.Add(1)
			s.failLog.Do(func() {
				log.Printf("frame source still at end after rewind")
			})
			s.backoff()
		}
		s.rewound = true
		s.rewinds.Add(1)
		if rerr := s.capture.Rewind(); rerr != nil {
			s.failures.Add(1)
			s.failLog.Do(func() {
				log.Printf("frame source rewind failed: %v", rerr)
			})
			s.backoff()
		}
		return
	}
	s.failures.Add(1)
	s.failLog.Do(func() {
		log.Printf("frame source read failed (%d so far): %v", s.failures.Load(), err)
	})
	s.backoff()
}

func (s *Source) backoff() {
	if s.opts.FailureBackoff > 0 {
		time.Sleep(s.opts.FailureBackoff)
	}
}

func (s *Source) publish(frame *types.Frame) {
	prev := s.slot.Swap(frame)
	s.captured.Add(1)
	if prev != nil && prev.Seq > s.lastRead.Load() {
		s.dropped.Add(1)
	}
}

func (s *Source) close() {
	s.release.Do(func() {
		if err := s.capture.Close(); err != nil {
			log.Printf("frame source close failed: %v", err)
		}
		close(s.done)
	})
}
