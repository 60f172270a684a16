//go:build !windows

package config

import (
	"fmt"
	"log/slog"

	"Athernet/pkg/device"
)

const defaultDriver = "portaudio"

func createAudioDevice(config *Config, logger *slog.Logger) (device.Device, error) {
	if config.Device.Driver != "portaudio" {
		return nil, fmt.Errorf("driver %q is not available on this platform", config.Device.Driver)
	}
	return &device.PortAudio{
		SampleRate: config.Link.SampleRate,
		BlockSize:  config.Device.BlockSize,
		Logger:     logger,
	}, nil
}
