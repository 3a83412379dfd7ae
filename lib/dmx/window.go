// Package dmx extracts the bridge's fixed 10-channel window from a DMX
// universe and decodes the 16-bit hold-time field.
package dmx

import (
	"errors"
	"fmt"
	"time"

	"artnetmidi/lib/artnet"
)

// WindowSize is the number of consecutive DMX channels the bridge reads.
const WindowSize = 10

// MaxStartChannel is the highest 1-based start channel that still leaves
// room for a full window (start + WindowSize - 1 <= 512).
const MaxStartChannel = 512 - WindowSize + 1

// MaxHold caps the decodable hold time.
const MaxHold = 10 * time.Second

// ErrChannelOutOfRange means the configured start channel does not leave
// room for the full window. This is a configuration error, caught before
// any frames are processed.
var ErrChannelOutOfRange = errors.New("dmx: start channel out of range")

// Window holds the ten extracted channel values, all raw 8-bit DMX.
type Window struct {
	Red       uint8
	Green     uint8
	Blue      uint8
	White     uint8
	UV        uint8
	Dimmer    uint8
	Strobe    uint8
	Attribute uint8
	HoldMSB   uint8
	HoldLSB   uint8
}

// ValidateStart checks a 1-based start channel against the window size.
func ValidateStart(start int) error {
	if start < 1 || start > MaxStartChannel {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrChannelOutOfRange, start, MaxStartChannel)
	}
	return nil
}

// Extract slices the window out of a frame. start is 1-based.
func Extract(f artnet.Frame, start int) (Window, error) {
	if err := ValidateStart(start); err != nil {
		return Window{}, err
	}
	ch := f.Channels[start-1 : start-1+WindowSize]
	return Window{
		Red:       ch[0],
		Green:     ch[1],
		Blue:      ch[2],
		White:     ch[3],
		UV:        ch[4],
		Dimmer:    ch[5],
		Strobe:    ch[6],
		Attribute: ch[7],
		HoldMSB:   ch[8],
		HoldLSB:   ch[9],
	}, nil
}

// Hold decodes the 16-bit hold time, capped at MaxHold. Zero means the
// note sounds until the attribute changes, not a zero-length note.
func (w Window) Hold() time.Duration {
	ms := int(w.HoldMSB)*256 + int(w.HoldLSB)
	d := time.Duration(ms) * time.Millisecond
	if d > MaxHold {
		return MaxHold
	}
	return d
}
