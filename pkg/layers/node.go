package layers

import (
	"log/slog"

	"Athernet/pkg/device"
	"Athernet/pkg/modem"
)

// Node is one station: a device, the physical layer on top of it and the
// link driven from its callback.
type Node struct {
	*Link
	Physical *PhysicalLayer
	Monitor  *PowerMonitor
}

func NewNode(cfg Config, dev device.Device, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("addr", cfg.Address)

	tones, err := cfg.toneConfig().New()
	if err != nil {
		return nil, err
	}
	preamble := cfg.preamble()

	monitor := &PowerMonitor{
		Window:     int(cfg.samples(cfg.Sensor.Window)),
		BusyRatio:  cfg.Sensor.BusyRatio,
		NoiseFloor: cfg.Sensor.NoiseFloor,
		BusyHold:   int(cfg.samples(cfg.Sensor.BusyHold)),
		IdleHold:   int(cfg.samples(cfg.Sensor.IdleHold)),
	}
	phy := &PhysicalLayer{
		Device: dev,
		Modulator: &modem.Modulator{
			Preamble:  preamble,
			Tones:     tones,
			Amplitude: cfg.Modem.Amplitude,
		},
		Monitor: monitor,
		Logger:  logger,
	}
	link, err := NewLink(cfg, phy, logger)
	if err != nil {
		return nil, err
	}
	phy.Demodulator = &modem.Demodulator{
		Preamble:      preamble,
		Tones:         tones,
		Sizer:         link.Codec,
		Threshold:     cfg.Sync.Threshold,
		Guard:         cfg.Sync.Guard,
		EnergyFloor:   cfg.Sync.EnergyFloor,
		DriftTracking: cfg.Sync.DriftTracking,
		Logger:        logger,
	}
	phy.Handler = link.Tick

	return &Node{Link: link, Physical: phy, Monitor: monitor}, nil
}

func (n *Node) Open() error {
	return n.Physical.Open()
}

func (n *Node) Close() {
	n.Physical.Close()
	n.Link.Close()
}
