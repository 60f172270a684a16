package layers

import (
	"errors"
	"fmt"
	"math"
	"time"

	"Athernet/pkg/frame"
	"Athernet/pkg/modem"
)

type PreambleConfig struct {
	MinFreq float64 `yaml:"min_freq"`
	MaxFreq float64 `yaml:"max_freq"`
	Length  int     `yaml:"length"`
}

type ModemConfig struct {
	SymbolSize    int     `yaml:"symbol_size"`
	BitsPerSymbol int     `yaml:"bits_per_symbol"`
	BaseBin       int     `yaml:"base_bin"`
	BinSpacing    int     `yaml:"bin_spacing"`
	Amplitude     float64 `yaml:"amplitude"`
}

type SyncConfig struct {
	Threshold     float64 `yaml:"threshold"`
	Guard         int     `yaml:"guard"`
	EnergyFloor   float64 `yaml:"energy_floor"`
	DriftTracking bool    `yaml:"drift_tracking"`
}

type SensorConfig struct {
	Window     time.Duration `yaml:"window"`
	BusyRatio  float64       `yaml:"busy_ratio"`
	NoiseFloor float64       `yaml:"noise_floor"`
	BusyHold   time.Duration `yaml:"busy_hold"`
	IdleHold   time.Duration `yaml:"idle_hold"`
}

type MACConfig struct {
	SlotTime      time.Duration `yaml:"slot_time"`
	InterFrameGap time.Duration `yaml:"inter_frame_gap"`
	AckGap        time.Duration `yaml:"ack_gap"`
	MinWindow     int           `yaml:"min_window"`
	MaxWindow     int           `yaml:"max_window"`
	MaxBackoffs   int           `yaml:"max_backoffs"`   // 0 means unlimited
	AccessTimeout time.Duration `yaml:"access_timeout"` // 0 means unlimited
	QueueSize     int           `yaml:"queue_size"`
}

type ARQConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	AckTimeout    time.Duration `yaml:"ack_timeout"`
	DedupCapacity int           `yaml:"dedup_capacity"`
	ReceiveBuffer int           `yaml:"receive_buffer"`
}

type FrameConfig struct {
	MaxPayload int `yaml:"max_payload"`
	Strength   int `yaml:"strength"` // correctable bytes per frame
}

// Config holds everything a link needs besides its device.
type Config struct {
	Address    frame.Address `yaml:"address"`
	Peer       frame.Address `yaml:"peer"`
	SampleRate float64       `yaml:"sample_rate"`

	Preamble PreambleConfig `yaml:"preamble"`
	Modem    ModemConfig    `yaml:"modem"`
	Sync     SyncConfig     `yaml:"sync"`
	Sensor   SensorConfig   `yaml:"sensor"`
	MAC      MACConfig      `yaml:"mac"`
	ARQ      ARQConfig      `yaml:"arq"`
	Frame    FrameConfig    `yaml:"frame"`
}

func DefaultConfig() Config {
	return Config{
		Address:    1,
		Peer:       2,
		SampleRate: 48000,
		Preamble: PreambleConfig{
			MinFreq: 2000,
			MaxFreq: 10000,
			Length:  480,
		},
		Modem: ModemConfig{
			SymbolSize:    120,
			BitsPerSymbol: 4,
			BaseBin:       5,
			BinSpacing:    1,
			Amplitude:     0.5,
		},
		Sync: SyncConfig{
			Threshold:     0.5,
			Guard:         48,
			EnergyFloor:   1e-4,
			DriftTracking: true,
		},
		Sensor: SensorConfig{
			Window:     time.Millisecond,
			BusyRatio:  10,
			NoiseFloor: 1e-6,
			BusyHold:   500 * time.Microsecond,
			IdleHold:   2 * time.Millisecond,
		},
		MAC: MACConfig{
			SlotTime:      20 * time.Millisecond,
			InterFrameGap: 20 * time.Millisecond,
			AckGap:        5 * time.Millisecond,
			MinWindow:     4,
			MaxWindow:     64,
			MaxBackoffs:   16,
			AccessTimeout: 10 * time.Second,
			QueueSize:     64,
		},
		ARQ: ARQConfig{
			MaxRetries:    5,
			AckTimeout:    800 * time.Millisecond,
			DedupCapacity: 16,
			ReceiveBuffer: 64,
		},
		Frame: FrameConfig{
			MaxPayload: 128,
			Strength:   4,
		},
	}
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.SampleRate > 0, "sample rate must be positive")
	check(c.Preamble.Length >= 16, "preamble length %d is too short", c.Preamble.Length)
	check(c.Preamble.MinFreq > 0 && c.Preamble.MaxFreq > c.Preamble.MinFreq && c.Preamble.MaxFreq < c.SampleRate/2,
		"preamble band [%v, %v] must lie under nyquist", c.Preamble.MinFreq, c.Preamble.MaxFreq)
	check(c.Modem.Amplitude > 0 && c.Modem.Amplitude <= 1, "amplitude must be in (0, 1]")
	check(c.Sync.Threshold > 0 && c.Sync.Threshold < 1, "sync threshold must be in (0, 1)")
	check(c.Sync.Guard >= 0, "sync guard must not be negative")
	check(c.Sensor.BusyRatio > 1, "busy ratio must exceed 1")
	check(c.Sensor.NoiseFloor > 0, "noise floor must be positive")
	check(c.samples(c.Sensor.Window) > 0, "sensor window must span at least one sample")
	check(c.samples(c.MAC.SlotTime) > 0, "slot time must span at least one sample")
	check(c.MAC.AckGap < c.MAC.InterFrameGap, "ack gap must be shorter than the inter-frame gap")
	check(c.MAC.MinWindow > 0 && c.MAC.MaxWindow >= c.MAC.MinWindow, "backoff window bounds [%d, %d] are invalid", c.MAC.MinWindow, c.MAC.MaxWindow)
	check(c.MAC.MaxBackoffs >= 0, "max backoffs must not be negative")
	check(c.MAC.QueueSize > 0, "queue size must be positive")
	check(c.ARQ.MaxRetries >= 0, "max retries must not be negative")
	check(c.ARQ.AckTimeout > 0, "ack timeout must be positive")
	check(c.ARQ.DedupCapacity > 0 && c.ARQ.DedupCapacity <= 128, "dedup capacity must be in [1, 128]")
	check(c.ARQ.ReceiveBuffer > 0, "receive buffer must be positive")
	check(c.Frame.MaxPayload > 0, "max payload must be positive")

	if _, err := c.toneConfig().New(); err != nil {
		errs = append(errs, err)
	}
	if _, err := frame.NewCodec(c.Frame.MaxPayload, c.Frame.Strength); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid link config: %w", err)
	}
	return nil
}

// samples converts a duration to the sample clock.
func (c *Config) samples(d time.Duration) int64 {
	return int64(math.Round(d.Seconds() * c.SampleRate))
}

func (c *Config) toneConfig() modem.ToneConfig {
	return modem.ToneConfig{
		SampleRate:    c.SampleRate,
		SymbolSize:    c.Modem.SymbolSize,
		BitsPerSymbol: c.Modem.BitsPerSymbol,
		BaseBin:       c.Modem.BaseBin,
		BinSpacing:    c.Modem.BinSpacing,
	}
}

func (c *Config) preamble() []float64 {
	return modem.PreambleParams{
		MinFreq:    c.Preamble.MinFreq,
		MaxFreq:    c.Preamble.MaxFreq,
		Length:     c.Preamble.Length,
		SampleRate: c.SampleRate,
	}.New()
}
