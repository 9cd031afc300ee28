package record

import "testing"

type sink struct {
	values []bool
}

func (s *sink) Send(address string, args ...any) error {
	if address != Address {
		panic("unexpected address " + address)
	}
	s.values = append(s.values, args[0].(bool))
	return nil
}

func TestRecorderAnnouncements(t *testing.T) {
	var r Recorder
	s := &sink{}

	_ = r.Tick(s)
	if len(s.values) != 0 {
		t.Fatalf("idle recorder sent %v", s.values)
	}

	r.Start()
	_ = r.Tick(s)
	_ = r.Tick(s)
	if !r.Recording() {
		t.Fatal("expected recording")
	}

	r.Stop()
	_ = r.Tick(s)
	_ = r.Tick(s)
	if r.Recording() {
		t.Fatal("expected recording to have stopped")
	}

	want := []bool{true, true, false}
	if len(s.values) != len(want) {
		t.Fatalf("got %v want %v", s.values, want)
	}
	for i := range want {
		if s.values[i] != want[i] {
			t.Fatalf("got %v want %v", s.values, want)
		}
	}
}

func TestRecorderToggle(t *testing.T) {
	var r Recorder
	if !r.Toggle() {
		t.Fatal("first toggle should request recording")
	}
	if r.Toggle() {
		t.Fatal("second toggle should stop recording")
	}
}
