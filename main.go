package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"artnetmidi/lib/artnet"
	"artnetmidi/lib/bridge"
	"artnetmidi/lib/config"
	"artnetmidi/lib/midiout"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	listenAddr := flag.String("listen", "", "override Art-Net listen address")
	midiPort := flag.String("midi", "", "override MIDI output port substring")
	startChannel := flag.Int("start-channel", 0, "override DMX start channel")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	defer midi.CloseDriver()

	log := logrus.New()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("cannot load config")
		}
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *midiPort != "" {
		cfg.MidiPort = *midiPort
	}
	if *startChannel != 0 {
		cfg.StartChannel = *startChannel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if *debug {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	out, err := midiout.Open(cfg.MidiPort, log)
	if err != nil {
		fmt.Println("Available MIDI output ports:")
		for _, p := range midi.GetOutPorts() {
			fmt.Printf("  %s\n", p)
		}
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	engine, err := bridge.New(bridge.Options{
		StartChannel:  cfg.StartChannel,
		StrobeEnabled: cfg.StrobeEnabled,
		BlackoutPulse: cfg.BlackoutPulse,
	}, out, log)
	if err != nil {
		log.WithError(err).Fatal("cannot build bridge")
	}
	out.OnReconnect = engine.ResetCache

	recv, err := artnet.Listen(cfg.ListenAddr, cfg.Universe, log)
	if err != nil {
		log.WithError(err).Fatal("cannot bind Art-Net socket")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.RunStrobe(ctx)
	go drainSnapshots(engine, log)

	log.WithFields(logrus.Fields{
		"listen":        recv.Addr(),
		"universe":      cfg.Universe,
		"start_channel": cfg.StartChannel,
		"midi_port":     cfg.MidiPort,
	}).Info("bridge running")

	errCh := make(chan error, 1)
	go func() { errCh <- recv.Run(engine.HandleFrame) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("receiver stopped")
		}
	}

	recv.Close()
	engine.Silence()
}

// drainSnapshots keeps the monitor stream flowing when no UI is attached
// and surfaces per-frame state at debug level.
func drainSnapshots(engine *bridge.Engine, log *logrus.Logger) {
	for s := range engine.Snapshots() {
		log.WithFields(logrus.Fields{
			"connected": s.Connected,
			"degraded":  s.Degraded,
			"attribute": s.Window.Attribute,
			"note":      s.ActiveNote,
			"hold_ms":   s.HoldMillis,
		}).Debug("frame processed")
	}
}
