package config

import (
	"fmt"
	"log/slog"

	"Athernet/pkg/device"
)

const defaultDriver = "asio"

func createAudioDevice(config *Config, logger *slog.Logger) (device.Device, error) {
	if config.Device.Driver != "asio" {
		return nil, fmt.Errorf("driver %q is not available on windows", config.Device.Driver)
	}
	return &device.ASIOMono{
		DeviceName: config.Device.DeviceName,
		SampleRate: config.Link.SampleRate,
		InChannel:  config.Device.InChannel,
		OutChannel: config.Device.OutChannel,
	}, nil
}
