// midiports lists the MIDI output ports the bridge can send to.
package main

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func main() {
	defer midi.CloseDriver()

	ports := midi.GetOutPorts()
	if len(ports) == 0 {
		fmt.Println("No MIDI output ports found.")
		return
	}

	fmt.Println("MIDI output ports:")
	for _, p := range ports {
		fmt.Printf("  %d: %s\n", p.Number(), p.String())
	}
}
