package bridge

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"artnetmidi/lib/dmx"
)

// Control Change assignments, all on MIDI channel 1.
const (
	CCRed        uint8 = 10
	CCGreen      uint8 = 11
	CCBlue       uint8 = 12
	CCWhite      uint8 = 13
	CCUV         uint8 = 14
	CCDimmer     uint8 = 15
	CCHue        uint8 = 16
	CCInverseHue uint8 = 17
)

const numParams = 8

// CC is one pending Control Change emission.
type CC struct {
	Controller uint8
	Value      uint8
}

// Mapper converts window values to 7-bit CC values and suppresses
// emissions whose source value has not changed since the last send.
// The cache belongs to the mapper instance; Reset clears it so current
// values are re-sent (used when the output port reconnects).
type Mapper struct {
	prev [numParams]int16 // cached comparison value per parameter, -1 = never sent
}

func NewMapper() *Mapper {
	m := &Mapper{}
	m.Reset()
	return m
}

// Reset forgets all previously sent values.
func (m *Mapper) Reset() {
	for i := range m.prev {
		m.prev[i] = -1
	}
}

// FrameChanges returns the CCs to emit for a window. gateClosed reflects
// the strobe simulation: while closed the Dimmer CC reads 0 regardless of
// the dimmer channel.
func (m *Mapper) FrameChanges(w dmx.Window, gateClosed bool) []CC {
	out := make([]CC, 0, numParams)

	emit := func(idx int, controller uint8, raw uint8, value uint8) {
		if m.prev[idx] == int16(raw) {
			return
		}
		m.prev[idx] = int16(raw)
		out = append(out, CC{Controller: controller, Value: value})
	}

	emit(0, CCRed, w.Red, Scale7(w.Red))
	emit(1, CCGreen, w.Green, Scale7(w.Green))
	emit(2, CCBlue, w.Blue, Scale7(w.Blue))
	emit(3, CCWhite, w.White, Scale7(w.White))
	emit(4, CCUV, w.UV, Scale7(w.UV))

	if cc, ok := m.dimmerChange(w.Dimmer, gateClosed); ok {
		out = append(out, cc)
	}

	hue := Hue7(w.Red, w.Green, w.Blue)
	emit(6, CCHue, hue, hue)
	emit(7, CCInverseHue, 127-hue, 127-hue)

	return out
}

// DimmerChange is the strobe timer's entry point: it re-evaluates only the
// dimmer parameter against the current gate state.
func (m *Mapper) DimmerChange(dimmer uint8, gateClosed bool) (CC, bool) {
	return m.dimmerChange(dimmer, gateClosed)
}

func (m *Mapper) dimmerChange(dimmer uint8, gateClosed bool) (CC, bool) {
	effective := dimmer
	if gateClosed {
		effective = 0
	}
	if m.prev[5] == int16(effective) {
		return CC{}, false
	}
	m.prev[5] = int16(effective)
	return CC{Controller: CCDimmer, Value: Scale7(effective)}, true
}

// Scale7 maps an 8-bit DMX value to the 7-bit MIDI range by rounding:
// 0 -> 0, 255 -> 127.
func Scale7(v uint8) uint8 {
	return uint8((int(v)*127 + 127) / 255)
}

// Hue7 derives the HSV hue of an RGB triple, scaled to 0-127. Gray inputs
// (R=G=B) have no defined hue and map to 0.
func Hue7(r, g, b uint8) uint8 {
	if r == g && g == b {
		return 0
	}
	hue, _, _ := colorful.Color{
		R: float64(r) / 255,
		G: float64(g) / 255,
		B: float64(b) / 255,
	}.Hsv()

	v := uint8(math.Round(hue / 360 * 127))
	if v > 127 {
		v = 127
	}
	return v
}
