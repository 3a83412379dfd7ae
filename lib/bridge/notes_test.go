package bridge

import (
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// recordingSink captures sent messages for inspection.
type recordingSink struct {
	mu   sync.Mutex
	msgs []midi.Message
}

func (s *recordingSink) Send(msg midi.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) messages() []midi.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]midi.Message(nil), s.msgs...)
}

func (s *recordingSink) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

func noteEvents(t *testing.T, msgs []midi.Message) []string {
	t.Helper()
	var events []string
	for _, msg := range msgs {
		var ch, key, vel uint8
		switch {
		case msg.GetNoteOn(&ch, &key, &vel):
			events = append(events, "on")
		case msg.GetNoteOff(&ch, &key, &vel):
			events = append(events, "off")
		}
	}
	return events
}

func lastNoteOn(t *testing.T, msgs []midi.Message) (ch, key, vel uint8) {
	t.Helper()
	found := false
	for _, msg := range msgs {
		var c, k, v uint8
		if msg.GetNoteOn(&c, &k, &v) {
			ch, key, vel = c, k, v
			found = true
		}
	}
	if !found {
		t.Fatal("no NoteOn sent")
	}
	return ch, key, vel
}

func TestNoteFor(t *testing.T) {
	tests := []struct {
		attr, want uint8
	}{
		{1, 12},
		{5, 16},
		{100, 111},
		{116, 127},
		{117, 127},
		{255, 127},
	}
	for _, tc := range tests {
		if got := NoteFor(tc.attr); got != tc.want {
			t.Errorf("NoteFor(%d) = %d, want %d", tc.attr, got, tc.want)
		}
	}
}

func TestContinuousNote(t *testing.T) {
	sink := &recordingSink{}
	n := NewNoteTrigger(sink)

	for _, attr := range []uint8{0, 5, 5, 5, 0} {
		n.Apply(attr, 0)
	}

	events := noteEvents(t, sink.messages())
	if len(events) != 2 || events[0] != "on" || events[1] != "off" {
		t.Fatalf("got events %v, want [on off]", events)
	}
	ch, key, vel := lastNoteOn(t, sink.messages())
	if ch != 0 || key != 16 || vel != 127 {
		t.Errorf("got ch=%d key=%d vel=%d, want 0 16 127", ch, key, vel)
	}
}

func TestRepeatedAttributeIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	n := NewNoteTrigger(sink)

	n.Apply(10, 0)
	sink.clear()
	for i := 0; i < 50; i++ {
		n.Apply(10, 0)
	}
	if msgs := sink.messages(); len(msgs) != 0 {
		t.Errorf("got %d messages on repeated attribute, want 0", len(msgs))
	}
	if n.Active() != int16(NoteFor(10)) {
		t.Errorf("note released by repeated frames")
	}
}

func TestAttributeChangeRetriggers(t *testing.T) {
	sink := &recordingSink{}
	n := NewNoteTrigger(sink)

	n.Apply(3, 0)
	n.Apply(9, 0)

	events := noteEvents(t, sink.messages())
	want := []string{"on", "off", "on"}
	if len(events) != len(want) {
		t.Fatalf("got events %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("got events %v, want %v", events, want)
		}
	}
	if n.Active() != int16(NoteFor(9)) {
		t.Errorf("got active %d, want %d", n.Active(), NoteFor(9))
	}
}

func TestTimedNoteExpires(t *testing.T) {
	sink := &recordingSink{}
	n := NewNoteTrigger(sink)

	n.Apply(5, 50*time.Millisecond)
	if n.Active() < 0 {
		t.Fatal("note not sounding after trigger")
	}

	deadline := time.Now().Add(2 * time.Second)
	for n.Active() >= 0 {
		if time.Now().After(deadline) {
			t.Fatal("note never released")
		}
		time.Sleep(5 * time.Millisecond)
	}

	events := noteEvents(t, sink.messages())
	if len(events) != 2 || events[1] != "off" {
		t.Fatalf("got events %v, want [on off]", events)
	}

	// Expiry is one-shot: the unchanged attribute must not retrigger.
	sink.clear()
	n.Apply(5, 50*time.Millisecond)
	if msgs := sink.messages(); len(msgs) != 0 {
		t.Errorf("expired note retriggered by unchanged attribute")
	}
}

func TestRetriggerBeforeExpiry(t *testing.T) {
	sink := &recordingSink{}
	n := NewNoteTrigger(sink)

	n.Apply(5, time.Hour)
	n.Apply(6, 50*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for n.Active() >= 0 {
		if time.Now().After(deadline) {
			t.Fatal("second note never released")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The first note's long timer was cancelled; only the short one fired.
	events := noteEvents(t, sink.messages())
	want := []string{"on", "off", "on", "off"}
	if len(events) != len(want) {
		t.Fatalf("got events %v, want %v", events, want)
	}
}

func TestContinuousNoteDoesNotExpire(t *testing.T) {
	sink := &recordingSink{}
	n := NewNoteTrigger(sink)

	n.Apply(5, 0)
	time.Sleep(100 * time.Millisecond)
	if n.Active() < 0 {
		t.Error("continuous note released without attribute change")
	}
}

func TestBlackoutPulse(t *testing.T) {
	sink := &recordingSink{}
	n := NewNoteTrigger(sink)
	called := 0
	n.Blackout = func() { called++ }

	n.Apply(5, 0)
	n.Apply(0, 0)
	if called != 1 {
		t.Errorf("got %d blackout calls, want 1", called)
	}

	// Zero from idle is not a blackout.
	n.Apply(0, 0)
	n2 := NewNoteTrigger(sink)
	n2.Blackout = func() { called++ }
	n2.Apply(0, 0)
	if called != 1 {
		t.Errorf("got %d blackout calls, want 1", called)
	}
}

func TestSilence(t *testing.T) {
	sink := &recordingSink{}
	n := NewNoteTrigger(sink)

	n.Apply(5, time.Hour)
	n.Silence()

	if n.Active() >= 0 {
		t.Error("note still active after Silence")
	}
	events := noteEvents(t, sink.messages())
	if len(events) != 2 || events[1] != "off" {
		t.Fatalf("got events %v, want [on off]", events)
	}
}
