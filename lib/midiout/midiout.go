// Package midiout opens a MIDI output port by name substring and keeps it
// usable across device disconnects by reconnecting in the background.
package midiout

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// reconnectEvery is the background retry interval after a send failure.
const reconnectEvery = 2 * time.Second

// FindOutPort returns the first MIDI output port whose name contains
// substr, case-insensitively.
func FindOutPort(substr string) (drivers.Out, error) {
	lower := strings.ToLower(substr)
	for _, port := range midi.GetOutPorts() {
		if strings.Contains(strings.ToLower(port.String()), lower) {
			return port, nil
		}
	}
	return nil, fmt.Errorf("no MIDI output port matching %q", substr)
}

// Port is a reconnecting MIDI output. Send never blocks on a dead device:
// it fails fast, and a background goroutine retries opening the port.
type Port struct {
	substr string
	log    *logrus.Entry

	// OnReconnect, if set, runs after the port comes back. The bridge
	// uses it to reset the CC cache so current values are re-sent.
	OnReconnect func()

	mu           sync.Mutex
	send         func(midi.Message) error
	reconnecting bool
	closed       bool
}

// Open finds the port by substring and opens it for sending.
func Open(substr string, log *logrus.Logger) (*Port, error) {
	p := &Port{
		substr: substr,
		log:    log.WithField("component", "midiout"),
	}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Port) open() error {
	out, err := FindOutPort(p.substr)
	if err != nil {
		return err
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return fmt.Errorf("open output port: %w", err)
	}
	if err := p.install(send); err != nil {
		return err
	}
	p.log.WithField("port", out.String()).Info("MIDI output open")
	return nil
}

// install makes send the active sender, unless Close ran while the open
// was in flight; a closed port must stay closed.
func (p *Port) install(send func(midi.Message) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("midiout: port %q closed", p.substr)
	}
	p.send = send
	return nil
}

// Send forwards one message. On failure the port is marked down and a
// reconnect loop starts; the error is returned to the caller so it can
// flag degraded output.
func (p *Port) Send(msg midi.Message) error {
	p.mu.Lock()
	send := p.send
	p.mu.Unlock()

	if send == nil {
		return fmt.Errorf("midiout: port %q unavailable", p.substr)
	}
	if err := send(msg); err != nil {
		p.markDown()
		return err
	}
	return nil
}

// Close stops the reconnect loop. The underlying driver connection is
// released by midi.CloseDriver in main.
func (p *Port) Close() {
	p.mu.Lock()
	p.closed = true
	p.send = nil
	p.mu.Unlock()
}

func (p *Port) markDown() {
	p.mu.Lock()
	p.send = nil
	start := !p.reconnecting && !p.closed
	if start {
		p.reconnecting = true
	}
	p.mu.Unlock()

	if start {
		go p.reconnectLoop()
	}
}

func (p *Port) reconnectLoop() {
	for {
		time.Sleep(reconnectEvery)

		p.mu.Lock()
		if p.closed {
			p.reconnecting = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		if err := p.open(); err != nil {
			p.log.WithError(err).Debug("MIDI reconnect attempt failed")
			continue
		}

		p.mu.Lock()
		p.reconnecting = false
		p.mu.Unlock()

		if p.OnReconnect != nil {
			p.OnReconnect()
		}
		return
	}
}
