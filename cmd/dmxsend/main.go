// dmxsend transmits synthetic ArtDmx frames, for exercising the bridge
// without a lighting console.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"artnetmidi/lib/artnet"
)

func main() {
	target := flag.String("target", fmt.Sprintf("127.0.0.1:%d", artnet.DefaultPort), "destination host:port")
	universe := flag.Uint("universe", 0, "Art-Net universe")
	start := flag.Int("start-channel", 1, "1-based channel of the first value")
	rate := flag.Duration("rate", 25*time.Millisecond, "interval between frames (0 = send once)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: dmxsend [flags] value[,value...]")
		fmt.Fprintln(os.Stderr, "Example: dmxsend 255,0,0,0,0,255,0,5,3,232")
		flag.PrintDefaults()
		os.Exit(2)
	}

	values, err := parseValues(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *start < 1 || *start-1+len(values) > 512 {
		fmt.Fprintf(os.Stderr, "Error: %d values at channel %d exceed the universe\n", len(values), *start)
		os.Exit(1)
	}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	channels := make([]byte, *start-1+len(values))
	copy(channels[*start-1:], values)

	seq := uint8(1)
	for {
		if _, err := conn.Write(artnet.EncodeDmx(seq, uint16(*universe), channels)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *rate == 0 {
			return
		}
		seq++
		if seq == 0 {
			seq = 1
		}
		time.Sleep(*rate)
	}
}

func parseValues(arg string) ([]byte, error) {
	parts := strings.Split(arg, ",")
	values := make([]byte, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("bad channel value %q", p)
		}
		values = append(values, byte(v))
	}
	return values, nil
}
