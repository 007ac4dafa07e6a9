package audio

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// PlayerConfig controls how a Player opens its output stream.
type PlayerConfig struct {
	DeviceName      string
	FramesPerBuffer int
}

const defaultFramesPerBuffer = 2048

// Player feeds a PlaybackState to a mono float32 PortAudio output stream.
type Player struct {
	stream *portaudio.Stream
	state  *PlaybackState
	device *portaudio.DeviceInfo
}

// NewPlayer opens and starts an output stream at the state's sample rate.
// Initialize must have been called.
func NewPlayer(state *PlaybackState, cfg PlayerConfig) (*Player, error) {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = defaultFramesPerBuffer
	}

	device, err := findOutputDevice(cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	p := &Player{state: state, device: device}
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{},
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowOutputLatency,
		},
		SampleRate:      float64(state.SampleRate()),
		FramesPerBuffer: cfg.FramesPerBuffer,
	}, p.process)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	p.stream = stream

	if err := p.stream.Start(); err != nil {
		_ = p.stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return p, nil
}

func (p *Player) process(out []float32) {
	p.state.Fill(out)
}

// Device returns the PortAudio device the stream plays on.
func (p *Player) Device() *portaudio.DeviceInfo {
	return p.device
}

// Close stops and closes the output stream.
func (p *Player) Close() error {
	if p.stream == nil {
		return nil
	}
	if err := p.stream.Stop(); err != nil && !errorsIsInvalidStreamState(err) {
		return err
	}
	return p.stream.Close()
}

func findOutputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("default output device: %w", err)
		}
		if dev == nil || dev.MaxOutputChannels == 0 {
			return nil, fmt.Errorf("no suitable audio output device found")
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	return matchOutputDevice(devices, name)
}

// matchOutputDevice picks the first output-capable device whose name contains
// name, ignoring case.
func matchOutputDevice(devices []*portaudio.DeviceInfo, name string) (*portaudio.DeviceInfo, error) {
	needle := strings.ToLower(name)
	for _, device := range devices {
		if device == nil || device.MaxOutputChannels == 0 {
			continue
		}
		if strings.Contains(strings.ToLower(device.Name), needle) {
			return device, nil
		}
	}
	return nil, fmt.Errorf("audio device %q not found", name)
}

// errorsIsInvalidStreamState checks if the provided error stems from stopping an already stopped stream.
func errorsIsInvalidStreamState(err error) bool {
	if err == nil {
		return false
	}
	const invalidStateMsg = "PaErrorCode -9986"
	return strings.Contains(err.Error(), invalidStateMsg)
}
