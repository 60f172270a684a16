package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"Athernet/pkg/device"
	"Athernet/pkg/layers"
)

type DeviceConfig struct {
	Driver     string  `yaml:"driver"` // portaudio, asio or loopback
	DeviceName string  `yaml:"device_name"`
	BlockSize  int     `yaml:"block_size"`
	InChannel  int     `yaml:"in_channel"`
	OutChannel int     `yaml:"out_channel"`
	Pace       float64 `yaml:"pace"` // loopback only: 1 runs in real time, 0 as fast as possible
}

type InterfaceConfig struct {
	Prefix string `yaml:"prefix"` // address of the TUN interface, e.g. 172.18.1.1/24
	MTU    int    `yaml:"mtu"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Link      layers.Config   `yaml:"link"`
	Interface InterfaceConfig `yaml:"interface"`
	Log       LogConfig       `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Driver:    defaultDriver,
			BlockSize: device.BufferSize,
			Pace:      1,
		},
		Link: layers.DefaultConfig(),
		Interface: InterfaceConfig{
			Prefix: "172.18.1.1/24",
			MTU:    1500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a yaml file over the defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Device.Driver {
	case "portaudio", "asio", "loopback":
	default:
		errs = append(errs, fmt.Errorf("unknown device driver %q", c.Device.Driver))
	}
	if c.Device.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("block size must be positive"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Link.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

func CreateLogger(config *Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(config.Log.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", config.Log.Format)
	}
}

func CreateDevice(config *Config, logger *slog.Logger) (device.Device, error) {
	switch config.Device.Driver {
	case "loopback":
		return &device.Loopback{
			SampleRate: config.Device.Pace * config.Link.SampleRate,
			BlockSize:  config.Device.BlockSize,
		}, nil
	default:
		return createAudioDevice(config, logger)
	}
}

func CreateNode(config *Config, dev device.Device, logger *slog.Logger) (*layers.Node, error) {
	return layers.NewNode(config.Link, dev, logger)
}

func InterfacePrefix(config *Config) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(config.Interface.Prefix)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("interface prefix: %w", err)
	}
	return prefix, nil
}
