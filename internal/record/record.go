// Package record tracks whether a recording is running and announces it to
// the OSC peer as /record true while active and a single /record false once
// it stops. Writing the video itself is done elsewhere.
package record

import "sync"

const Address = "/record"

type Sender interface {
	Send(address string, args ...any) error
}

type Recorder struct {
	mu        sync.Mutex
	requested bool
	active    bool
}

func (r *Recorder) Start() {
	r.mu.Lock()
	r.requested = true
	r.mu.Unlock()
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	r.requested = false
	r.mu.Unlock()
}

// Toggle flips the requested state and returns the new value.
func (r *Recorder) Toggle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requested = !r.requested
	return r.requested
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Tick is called once per processed frame.
func (r *Recorder) Tick(s Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.requested:
		r.active = true
		return s.Send(Address, true)
	case r.active:
		r.active = false
		return s.Send(Address, false)
	}
	return nil
}
