// Package bridge converts extracted DMX channel windows into MIDI Control
// Change and note events.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"

	"artnetmidi/lib/artnet"
	"artnetmidi/lib/dmx"
)

// signalTimeout is how long the bridge waits without a frame before
// reporting the source as disconnected and disabling the strobe gate.
const signalTimeout = 2 * time.Second

// Strobe gate period bounds: Strobe=1 toggles every 200ms, Strobe=255
// every 20ms.
const (
	strobeSlowest = 200 * time.Millisecond
	strobeFastest = 20 * time.Millisecond
)

// Options configures an Engine.
type Options struct {
	StartChannel  int  // 1-based first channel of the 10-channel window
	StrobeEnabled bool // simulate strobing on the Dimmer CC
	BlackoutPulse bool // pulse channel-2 note 0 when the attribute drops to 0
}

// Snapshot is the read-only monitoring view pushed after every processed
// frame. Consumers that fall behind see only the latest snapshot.
type Snapshot struct {
	Time       time.Time
	Connected  bool
	Degraded   bool
	Window     dmx.Window
	Hue        uint8
	InverseHue uint8
	HoldMillis int64
	ActiveNote int16 // -1 when idle
}

// trackedSink forwards messages and remembers whether the last send
// failed, so the monitor can report degraded output without any send
// ever blocking or stalling the pipeline.
type trackedSink struct {
	sink     Sink
	log      *logrus.Entry
	degraded atomic.Bool
}

func (t *trackedSink) Send(msg midi.Message) error {
	err := t.sink.Send(msg)
	if err != nil {
		if !t.degraded.Swap(true) {
			t.log.WithError(err).Warn("MIDI output unavailable")
		}
		return err
	}
	if t.degraded.Swap(false) {
		t.log.Info("MIDI output recovered")
	}
	return nil
}

// Engine owns the conversion pipeline: mapper cache, strobe gate, note
// trigger and monitor stream. Frame handling and the strobe timer share
// one mutex; the note trigger serializes its own state against its
// release timer.
type Engine struct {
	opts  Options
	out   *trackedSink
	notes *NoteTrigger
	log   *logrus.Entry

	mu          sync.Mutex
	mapper      *Mapper
	window      dmx.Window
	lastFrameAt time.Time
	gateClosed  bool
	connected   bool

	snapshots chan Snapshot
}

// New validates the start channel and builds the engine. A start channel
// that does not fit a full window is rejected here, before any listening
// starts, never clamped per frame.
func New(opts Options, sink Sink, log *logrus.Logger) (*Engine, error) {
	if err := dmx.ValidateStart(opts.StartChannel); err != nil {
		return nil, err
	}
	entry := log.WithField("component", "bridge")
	out := &trackedSink{sink: sink, log: entry}
	e := &Engine{
		opts:      opts,
		out:       out,
		notes:     NewNoteTrigger(out),
		log:       entry,
		mapper:    NewMapper(),
		snapshots: make(chan Snapshot, 1),
	}
	if opts.BlackoutPulse {
		e.notes.Blackout = func() {
			out.Send(midi.NoteOn(blackoutChannel, blackoutNote, blackoutVelocity))
			out.Send(midi.NoteOff(blackoutChannel, blackoutNote))
		}
	}
	return e, nil
}

// Snapshots is the monitor stream. The channel holds one element; a new
// snapshot overwrites an unconsumed one rather than blocking or queueing.
func (e *Engine) Snapshots() <-chan Snapshot {
	return e.snapshots
}

// ResetCache forgets previously sent CC values so the next frame re-sends
// everything. Called when the output port reconnects.
func (e *Engine) ResetCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mapper.Reset()
}

// Silence releases any sounding note. Used on shutdown.
func (e *Engine) Silence() {
	e.notes.Silence()
}

// HandleFrame processes one decoded frame: extract the window, emit
// changed CCs, then step the note state machine. Frames are handled in
// the order the receiver delivers them.
func (e *Engine) HandleFrame(f artnet.Frame) {
	w, err := dmx.Extract(f, e.opts.StartChannel)
	if err != nil {
		// Unreachable after New's validation; dropped defensively.
		e.log.WithError(err).Error("window extraction failed")
		return
	}

	e.mu.Lock()
	e.window = w
	e.lastFrameAt = time.Now()
	e.connected = true
	if w.Strobe == 0 || !e.opts.StrobeEnabled {
		e.gateClosed = false
	}
	for _, cc := range e.mapper.FrameChanges(w, e.gateClosed) {
		e.out.Send(midi.ControlChange(noteChannel, cc.Controller, cc.Value))
	}
	e.mu.Unlock()

	e.notes.Apply(w.Attribute, w.Hold())
	e.publish()
}

// RunStrobe drives the strobe gate and the signal watchdog until ctx is
// done. While the strobe channel is nonzero the dimmer CC toggles between
// 0 and its mapped value at a period derived from the strobe value. Loss
// of signal forces the gate open so a vanished console cannot leave the
// output dark, and publishes a snapshot so the monitor stream carries the
// disconnect even though no frames arrive.
func (e *Engine) RunStrobe(ctx context.Context) {
	timer := time.NewTimer(strobeSlowest)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		e.mu.Lock()
		strobe := e.window.Strobe
		stale := time.Since(e.lastFrameAt) > signalTimeout
		wasConnected := e.connected
		e.connected = !stale
		active := e.opts.StrobeEnabled && strobe > 0 && !stale
		if active {
			e.gateClosed = !e.gateClosed
		} else {
			e.gateClosed = false
		}
		if cc, ok := e.mapper.DimmerChange(e.window.Dimmer, e.gateClosed); ok {
			e.out.Send(midi.ControlChange(noteChannel, cc.Controller, cc.Value))
		}
		transition := wasConnected != e.connected
		e.mu.Unlock()

		if transition {
			e.publish()
		}

		if active {
			timer.Reset(strobePeriod(strobe))
		} else {
			timer.Reset(strobeSlowest)
		}
	}
}

// strobePeriod maps the strobe channel linearly onto the gate toggle
// period: 1 -> slowest, 255 -> fastest.
func strobePeriod(strobe uint8) time.Duration {
	span := int64(strobeSlowest - strobeFastest)
	return strobeSlowest - time.Duration(span*int64(strobe-1)/254)
}

// publish pushes a snapshot, overwriting an unconsumed one.
func (e *Engine) publish() {
	e.mu.Lock()
	hue := Hue7(e.window.Red, e.window.Green, e.window.Blue)
	s := Snapshot{
		Time:       time.Now(),
		Connected:  e.connected,
		Degraded:   e.out.degraded.Load(),
		Window:     e.window,
		Hue:        hue,
		InverseHue: 127 - hue,
		HoldMillis: e.window.Hold().Milliseconds(),
		ActiveNote: e.notes.Active(),
	}
	e.mu.Unlock()

	select {
	case e.snapshots <- s:
	default:
		select {
		case <-e.snapshots:
		default:
		}
		select {
		case e.snapshots <- s:
		default:
		}
	}
}
