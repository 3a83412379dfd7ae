package bridge

import (
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

const (
	noteChannel  uint8 = 0 // MIDI channel 1
	noteOffset         = 11
	noteVelocity uint8 = 127

	blackoutChannel  uint8 = 1 // MIDI channel 2
	blackoutNote     uint8 = 0
	blackoutVelocity uint8 = 100
)

// Sink receives outbound MIDI messages. Send must not block; a failing
// sink degrades output but never stalls the bridge.
type Sink interface {
	Send(msg midi.Message) error
}

// NoteTrigger maps the attribute channel to non-overlapping note-on/off
// pairs. At most one note sounds at a time; a timed note carries one
// cancellable release timer. All state, including the timer callback,
// is serialized through the trigger's mutex.
type NoteTrigger struct {
	sink Sink

	// Blackout, if set, is called when the attribute drops from nonzero
	// to zero (cue blackout in the original show semantics).
	Blackout func()

	mu       sync.Mutex
	lastAttr int16 // -1 = no frame seen yet
	active   int16 // -1 = idle
	timer    *time.Timer
	gen      uint64 // incremented on every transition; stale timers no-op
}

func NewNoteTrigger(sink Sink) *NoteTrigger {
	return &NoteTrigger{sink: sink, lastAttr: -1, active: -1}
}

// NoteFor returns the note number triggered by a nonzero attribute value.
// Attributes that would map above the MIDI key range clamp to 127.
func NoteFor(attr uint8) uint8 {
	n := int(attr) + noteOffset
	if n > 127 {
		n = 127
	}
	return uint8(n)
}

// Apply runs one state-machine step for an incoming frame. Unchanged
// attribute values are idempotent: no transition, no MIDI traffic. The
// hold duration is sampled here, at trigger time; later changes to the
// hold channels do not touch an in-flight timer.
func (n *NoteTrigger) Apply(attr uint8, hold time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if int16(attr) == n.lastAttr {
		return
	}
	wasNonzero := n.lastAttr > 0
	n.lastAttr = int16(attr)

	n.cancelTimerLocked()
	n.releaseLocked()

	if attr == 0 {
		if wasNonzero && n.Blackout != nil {
			n.Blackout()
		}
		return
	}

	note := NoteFor(attr)
	n.sink.Send(midi.NoteOn(noteChannel, note, noteVelocity))
	n.active = int16(note)

	if hold > 0 {
		gen := n.gen
		n.timer = time.AfterFunc(hold, func() { n.expire(gen) })
	}
}

// Active returns the sounding note, or -1 when idle.
func (n *NoteTrigger) Active() int16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// Silence releases any sounding note and cancels its timer. Used on
// shutdown so no note is left stuck on.
func (n *NoteTrigger) Silence() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelTimerLocked()
	n.releaseLocked()
}

// expire is the timer callback. The generation check makes a timer that
// fires concurrently with its own cancellation a no-op: by the time it
// takes the lock, gen has moved on.
//
// lastAttr is deliberately left as-is: a timed note is one-shot per
// attribute transition, so an unchanged attribute after expiry stays
// silent until the value actually changes.
func (n *NoteTrigger) expire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.gen || n.active < 0 {
		return
	}
	n.timer = nil
	n.releaseLocked()
}

func (n *NoteTrigger) cancelTimerLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

func (n *NoteTrigger) releaseLocked() {
	n.gen++
	if n.active < 0 {
		return
	}
	n.sink.Send(midi.NoteOff(noteChannel, uint8(n.active)))
	n.active = -1
}
