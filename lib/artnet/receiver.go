package artnet

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// malformedReportEvery throttles logging during malformed-packet storms.
const malformedReportEvery = 5 * time.Second

// Receiver listens for ArtDmx packets on a UDP socket and hands each frame
// for the configured universe to a handler, strictly in arrival order.
type Receiver struct {
	conn     *net.UDPConn
	universe uint16
	log      *logrus.Entry

	mu            sync.Mutex
	malformed     uint64
	lastMalformed time.Time
	lastReported  uint64
}

// Listen binds the UDP socket. addr is a host:port string; an empty host
// binds all interfaces.
func Listen(addr string, universe uint16, log *logrus.Logger) (*Receiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Receiver{
		conn:     conn,
		universe: universe,
		log:      log.WithField("component", "artnet"),
	}, nil
}

// Addr returns the bound local address.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Close stops the receive loop. Run returns nil after Close.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// Run blocks reading datagrams until the socket is closed. Decode failures
// never stop the loop: malformed packets are counted and reported at most
// once per reporting interval, non-DMX opcodes and foreign universes are
// skipped.
func (r *Receiver) Run(handle func(Frame)) error {
	buf := make([]byte, 2048)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		frame, err := DecodeDmx(buf[:n])
		switch {
		case errors.Is(err, ErrNotDmx):
			r.log.WithField("from", addr.IP).Debug("ignoring non-DMX packet")
			continue
		case err != nil:
			r.noteMalformed(addr.IP)
			continue
		}

		if frame.Universe != r.universe {
			r.log.WithFields(logrus.Fields{
				"universe": frame.Universe,
				"want":     r.universe,
			}).Debug("ignoring frame for other universe")
			continue
		}

		handle(frame)
	}
}

// MalformedCount returns the number of malformed packets seen so far.
func (r *Receiver) MalformedCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.malformed
}

func (r *Receiver) noteMalformed(from net.IP) {
	r.mu.Lock()
	r.malformed++
	report := time.Since(r.lastMalformed) >= malformedReportEvery
	var count uint64
	if report {
		count = r.malformed - r.lastReported
		r.lastReported = r.malformed
		r.lastMalformed = time.Now()
	}
	r.mu.Unlock()

	if report {
		r.log.WithFields(logrus.Fields{
			"count": count,
			"from":  from,
		}).Warn("dropped malformed packets")
	}
}
