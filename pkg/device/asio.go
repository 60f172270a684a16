//go:build windows

package device

import (
	"fmt"

	"github.com/xsjk/go-asio"
)

// ASIOMono runs one input and one output channel of an ASIO driver.
type ASIOMono struct {
	DeviceName string
	SampleRate float64
	InChannel  int
	OutChannel int
	device     asio.Device
}

func (a *ASIOMono) Start(callback func([]int32, []int32)) error {
	if a.InChannel < 0 || a.OutChannel < 0 {
		return fmt.Errorf("asio %q: invalid channels in=%d out=%d", a.DeviceName, a.InChannel, a.OutChannel)
	}
	a.device.Load(a.DeviceName)
	a.device.SetSampleRate(a.SampleRate)
	a.device.Open()
	a.device.Start(func(in, out [][]int32) {
		if a.InChannel >= len(in) || a.OutChannel >= len(out) {
			for _, o := range out {
				clear(o)
			}
			return
		}
		callback(in[a.InChannel], out[a.OutChannel])
	})
	return nil
}

func (a *ASIOMono) Stop() {
	a.device.Stop()
	a.device.Close()
	a.device.Unload()
}

// Describe lists nothing on windows: ASIO drivers are addressed by name.
func Describe() ([]Info, error) {
	return nil, fmt.Errorf("device listing is not available with asio, pass the driver name")
}
