// Package artnet decodes and encodes Art-Net ArtDmx packets and provides a
// UDP receiver that delivers DMX frames in arrival order.
package artnet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	DefaultPort = 6454

	OpPoll      = 0x2000
	OpPollReply = 0x2100
	OpDmx       = 0x5000
	OpSync      = 0x5200

	ProtocolVersion = 14

	headerLen = 18
)

var packetID = [8]byte{'A', 'r', 't', '-', 'N', 'e', 't', 0}

var (
	// ErrMalformedPacket means the payload is not a valid Art-Net packet.
	ErrMalformedPacket = errors.New("artnet: malformed packet")
	// ErrNotDmx means the packet is valid Art-Net but not an ArtDmx packet.
	ErrNotDmx = errors.New("artnet: not an ArtDmx packet")
)

// Frame is one decoded ArtDmx packet: a full 512-channel universe snapshot.
// Channels[0] is DMX channel 1. Channels beyond the declared data length
// hold zero.
type Frame struct {
	Universe uint16
	Sequence uint8
	Channels [512]byte
}

// DecodeDmx parses a raw UDP payload into a Frame.
//
// Layout: "Art-Net\x00", opcode (LE) at 8, protocol version at 10, sequence
// at 12, physical at 13, SubUni at 14, Net at 15, length (BE) at 16, then
// up to 512 channel bytes.
func DecodeDmx(buf []byte) (Frame, error) {
	if len(buf) < headerLen {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(buf))
	}
	if [8]byte(buf[0:8]) != packetID {
		return Frame{}, fmt.Errorf("%w: bad header", ErrMalformedPacket)
	}

	opcode := binary.LittleEndian.Uint16(buf[8:10])
	if opcode != OpDmx {
		return Frame{}, fmt.Errorf("%w: opcode 0x%04X", ErrNotDmx, opcode)
	}

	f := Frame{
		Sequence: buf[12],
		Universe: uint16(buf[14]) | uint16(buf[15])<<8,
	}

	length := int(binary.BigEndian.Uint16(buf[16:18]))
	if length > len(buf)-headerLen {
		length = len(buf) - headerLen
	}
	if length > 512 {
		length = 512
	}
	copy(f.Channels[:length], buf[headerLen:headerLen+length])

	return f, nil
}

// EncodeDmx builds an on-wire ArtDmx packet for the given universe and
// channel data. Channels longer than 512 bytes are truncated.
func EncodeDmx(seq uint8, universe uint16, channels []byte) []byte {
	if len(channels) > 512 {
		channels = channels[:512]
	}
	pkt := make([]byte, headerLen+len(channels))
	copy(pkt[0:8], packetID[:])
	binary.LittleEndian.PutUint16(pkt[8:10], OpDmx)
	pkt[10], pkt[11] = 0x00, ProtocolVersion
	pkt[12] = seq
	pkt[13] = 0x00 // physical port, unused
	pkt[14] = byte(universe & 0xFF)
	pkt[15] = byte(universe >> 8 & 0x7F)
	binary.BigEndian.PutUint16(pkt[16:18], uint16(len(channels)))
	copy(pkt[headerLen:], channels)
	return pkt
}
