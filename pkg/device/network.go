package device

import (
	"sync"
	"time"
)

// NetworkConfig wires every device to the medium it listens on and the
// medium it plays into.
type NetworkConfig[BufferIDType comparable] []struct {
	In  BufferIDType
	Out BufferIDType
}

type networkNode[BufferIDType comparable] struct {
	*Network[BufferIDType]
	input    []int32
	output   []int32
	callback func([]int32, []int32)
}

// Network simulates shared acoustic media. Each block every device reads
// the sum of what was played into its medium during the previous block.
type Network[BufferIDType comparable] struct {
	SampleRate float64                     // the fake sample rate, 0 means no limit
	BlockSize  int                         // 0 means BufferSize
	Config     NetworkConfig[BufferIDType] // the topology of the network
	// Channel shapes a medium after the outputs are mixed into it
	Channel func(medium BufferIDType, block []int32)
	// LateUpdate sees the output block of every device, in Config order
	LateUpdate func(outputs [][]int32)

	mu      sync.Mutex
	buffers map[BufferIDType][]int32
	devices []*networkNode[BufferIDType]
	outputs [][]int32
	running int
	done    chan struct{}
	wg      sync.WaitGroup
}

func (n *Network[BufferIDType]) blockSize() int {
	if n.BlockSize <= 0 {
		return BufferSize
	}
	return n.BlockSize
}

func (n *Network[BufferIDType]) getBuffer(name BufferIDType) []int32 {
	buf, ok := n.buffers[name]
	if !ok {
		buf = alloci32(n.blockSize())
		n.buffers[name] = buf
	}
	return buf
}

// Build creates one device per Config entry.
func (n *Network[BufferIDType]) Build() []Device {
	n.buffers = make(map[BufferIDType][]int32)
	n.devices = nil
	devs := make([]Device, len(n.Config))
	for i, c := range n.Config {
		n.getBuffer(c.In)
		n.getBuffer(c.Out)
		d := &networkNode[BufferIDType]{
			Network: n,
			input:   alloci32(n.blockSize()),
			output:  alloci32(n.blockSize()),
		}
		n.devices = append(n.devices, d)
		devs[i] = d
	}
	n.outputs = make([][]int32, len(n.devices))
	return devs
}

func (n *Network[BufferIDType]) update() {
	n.mu.Lock()
	callbacks := make([]func([]int32, []int32), len(n.devices))
	for i, d := range n.devices {
		callbacks[i] = d.callback
		copy(d.input, n.buffers[n.Config[i].In])
	}
	n.mu.Unlock()

	for i, d := range n.devices {
		if callbacks[i] != nil {
			callbacks[i](d.input, d.output)
		} else {
			clear(d.output)
		}
	}

	for _, buf := range n.buffers {
		clear(buf)
	}
	for i, c := range n.Config {
		buf := n.buffers[c.Out]
		sumi32(buf, n.devices[i].output, buf)
		n.outputs[i] = n.devices[i].output
	}
	if n.Channel != nil {
		for name, buf := range n.buffers {
			n.Channel(name, buf)
		}
	}

	if n.LateUpdate != nil {
		n.LateUpdate(n.outputs)
	}
}

func (n *Network[BufferIDType]) run(done <-chan struct{}) {
	defer n.wg.Done()
	if n.SampleRate == 0 {
		for {
			select {
			case <-done:
				return
			default:
				n.update()
			}
		}
	}
	ticker := time.NewTicker(blockPeriod(n.blockSize(), n.SampleRate))
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n.update()
		}
	}
}

// Stop detaches every device and waits for the clock to halt.
func (n *Network[BufferIDType]) Stop() {
	n.mu.Lock()
	for _, d := range n.devices {
		d.callback = nil
	}
	done := n.done
	n.done = nil
	n.running = 0
	n.mu.Unlock()

	if done != nil {
		close(done)
		n.wg.Wait()
	}
}

// Start attaches callback. The shared clock runs while any device is started.
func (d *networkNode[BufferIDType]) Start(callback func([]int32, []int32)) error {
	n := d.Network
	n.mu.Lock()
	defer n.mu.Unlock()
	if d.callback == nil {
		n.running++
	}
	d.callback = callback
	if n.done == nil {
		n.done = make(chan struct{})
		n.wg.Add(1)
		go n.run(n.done)
	}
	return nil
}

// Stop detaches the device. The last one to stop halts the clock, so Stop
// must not be called from inside a callback.
func (d *networkNode[BufferIDType]) Stop() {
	n := d.Network
	n.mu.Lock()
	if d.callback == nil {
		n.mu.Unlock()
		return
	}
	d.callback = nil
	n.running--
	var done chan struct{}
	if n.running == 0 {
		done, n.done = n.done, nil
	}
	n.mu.Unlock()

	if done != nil {
		close(done)
		n.wg.Wait()
	}
}
