package libascli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bosley/coach/audio"
	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate      = audio.DefaultSampleRate
	channels        = 1
	framesPerBuffer = 1024
)

// Device is an input device as reported by PortAudio. Index is the id to pass back
// as the device id.
type Device struct {
	Index             int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

// ListAudioDevices returns every device that can capture audio.
func ListAudioDevices() ([]Device, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	inputDevices := make([]Device, 0)
	for i, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, Device{
				Index:             i,
				Name:              device.Name,
				MaxInputChannels:  device.MaxInputChannels,
				DefaultSampleRate: device.DefaultSampleRate,
			})
		}
	}

	return inputDevices, nil
}

// MicSource captures a microphone into a sliding window. It implements
// audio.FrameSource; PortAudio is initialized by Open and terminated by Close, so a
// source that failed to open holds nothing.
type MicSource struct {
	deviceID int
	window   *audio.Window

	mu      sync.Mutex
	stream  *portaudio.Stream
	onChunk func([]int16)
}

// NewMicSource creates a source for deviceID. Zero selects the default input device.
func NewMicSource(deviceID int, window *audio.Window) *MicSource {
	if window == nil {
		window = audio.NewWindow(audio.DefaultFrameSize, sampleRate)
	}
	return &MicSource{deviceID: deviceID, window: window}
}

// OnChunk registers fn to receive a copy of every captured buffer. It must be set
// before Open and fn must not block: it runs on the capture callback.
func (m *MicSource) OnChunk(fn func([]int16)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChunk = fn
}

func (m *MicSource) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return fmt.Errorf("microphone already open")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	params, err := inputParameters(m.deviceID)
	if err != nil {
		portaudio.Terminate()
		return err
	}

	onChunk := m.onChunk
	stream, err := portaudio.OpenStream(params, func(in []int16) {
		m.window.WriteInt16(in)
		if onChunk != nil {
			// PortAudio reuses the buffer between callbacks.
			chunk := make([]int16, len(in))
			copy(chunk, in)
			onChunk(chunk)
		}
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	m.stream = stream
	return nil
}

func (m *MicSource) Latest() (audio.Frame, bool) {
	return m.window.Latest()
}

func (m *MicSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil
	}

	var errs []error
	if err := m.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop audio stream: %w", err))
	}
	if err := m.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audio stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("failed to terminate PortAudio: %w", err))
	}
	m.stream = nil
	m.window.Reset()

	return errors.Join(errs...)
}

func inputParameters(deviceID int) (portaudio.StreamParameters, error) {
	var device *portaudio.DeviceInfo

	if deviceID > 0 { // Only use specific device if explicitly requested (non-zero)
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get audio devices: %w", err)
		}
		if deviceID >= len(devices) {
			return portaudio.StreamParameters{}, fmt.Errorf("invalid device id %d", deviceID)
		}

		device = devices[deviceID]
		if device.MaxInputChannels == 0 {
			return portaudio.StreamParameters{}, fmt.Errorf("device %d (%s) is not an input device", deviceID, device.Name)
		}

		slog.Info("Using specified audio device",
			"deviceID", deviceID,
			"deviceName", device.Name,
			"sampleRate", device.DefaultSampleRate,
			"inputChannels", device.MaxInputChannels)
	} else {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get default input device: %w", err)
		}

		slog.Info("Using default audio device",
			"deviceName", device.Name,
			"sampleRate", device.DefaultSampleRate,
			"inputChannels", device.MaxInputChannels)
	}

	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, nil
}
