package device

// Info describes an audio endpoint of the host.
type Info struct {
	Name       string
	HostAPI    string
	Inputs     int
	Outputs    int
	SampleRate float64
}
