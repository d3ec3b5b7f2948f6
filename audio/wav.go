package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/youpy/go-wav"
)

const (
	channels      = 1  // Mono audio
	bitsPerSample = 16 // Using int16 for samples
)

// Clip is a fully decoded mono recording.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// LoadWAV decodes a PCM WAV file. Multi-channel files are downmixed to mono.
func LoadWAV(path string) (*Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer file.Close()

	return ReadWAV(file)
}

// ReadWAV decodes PCM WAV data from r.
func ReadWAV(r interface {
	io.Reader
	io.ReaderAt
}) (*Clip, error) {
	reader := wav.NewReader(r)

	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav format: %w", err)
	}
	if format.NumChannels == 0 || format.BitsPerSample == 0 {
		return nil, fmt.Errorf("unsupported wav format: %d channels, %d bits", format.NumChannels, format.BitsPerSample)
	}

	scale := float64(int64(1) << (format.BitsPerSample - 1))

	clip := &Clip{SampleRate: int(format.SampleRate)}
	for {
		samples, err := reader.ReadSamples(4096)
		for _, s := range samples {
			var sum float64
			for ch := 0; ch < int(format.NumChannels) && ch < len(s.Values); ch++ {
				v := float64(s.Values[ch])
				if format.BitsPerSample == 8 {
					v -= 128
				}
				sum += v
			}
			clip.Samples = append(clip.Samples, sum/float64(format.NumChannels)/scale)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read wav samples: %w", err)
		}
	}

	return clip, nil
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// FrameAt returns the size samples that end at offset at, the frame a live tick at that
// moment would have seen. Before the first full frame the frame is shorter.
func (c *Clip) FrameAt(at time.Duration, size int) Frame {
	end := int(at.Seconds() * float64(c.SampleRate))
	if end > len(c.Samples) {
		end = len(c.Samples)
	}
	if end < 0 {
		end = 0
	}
	start := end - size
	if start < 0 {
		start = 0
	}
	out := make([]float64, end-start)
	copy(out, c.Samples[start:end])
	return Frame{Samples: out, SampleRate: c.SampleRate}
}

// ClipSource plays a clip in real time as if it were a microphone. Playback starts
// when the source is opened.
type ClipSource struct {
	clip      *Clip
	frameSize int
	loop      bool
	now       func() time.Time

	mu      sync.Mutex
	started time.Time
	open    bool
}

// NewClipSource creates a source over clip. When loop is set the clip repeats.
func NewClipSource(clip *Clip, frameSize int, loop bool) *ClipSource {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &ClipSource{clip: clip, frameSize: frameSize, loop: loop, now: time.Now}
}

func (s *ClipSource) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.clip == nil || len(s.clip.Samples) == 0 {
		return fmt.Errorf("clip has no samples")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = s.now()
	s.open = true
	slog.Debug("Clip source opened", "duration", s.clip.Duration().Seconds(), "loop", s.loop)
	return nil
}

func (s *ClipSource) Latest() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return Frame{}, false
	}
	at := s.now().Sub(s.started)
	if d := s.clip.Duration(); at > d {
		if !s.loop {
			// Past the end the "microphone" is silent.
			return Frame{Samples: make([]float64, s.frameSize), SampleRate: s.clip.SampleRate}, true
		}
		at = at % d
	}
	return s.clip.FrameAt(at, s.frameSize), true
}

func (s *ClipSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// WavHeader is the canonical 44-byte PCM header.
type WavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// Recorder streams mono 16-bit PCM into a WAV file whose size is unknown up front.
// The header is written with a zero size and patched on Close.
type Recorder struct {
	file       *os.File
	sampleRate int
	dataSize   uint32
}

// NewRecorder creates path and writes a placeholder header.
func NewRecorder(path string, sampleRate int) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	if err := writeWavHeader(file, sampleRate, 0); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}
	return &Recorder{file: file, sampleRate: sampleRate}, nil
}

// Name returns the path of the recording.
func (r *Recorder) Name() string {
	return r.file.Name()
}

// Write appends little-endian int16 PCM bytes.
func (r *Recorder) Write(pcm []byte) (int, error) {
	n, err := r.file.Write(pcm)
	r.dataSize += uint32(n)
	return n, err
}

// Close patches the header sizes and closes the file.
func (r *Recorder) Close() error {
	if err := updateWavHeader(r.file, r.dataSize); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

func writeWavHeader(w io.Writer, sampleRate int, dataSize uint32) error {
	header := WavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     dataSize + 36,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(channels) * uint32(bitsPerSample) / 8,
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	return binary.Write(w, binary.LittleEndian, header)
}

func updateWavHeader(file *os.File, dataSize uint32) error {
	// Update ChunkSize (file size - 8)
	if _, err := file.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to ChunkSize: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, dataSize+36); err != nil {
		return fmt.Errorf("failed to write ChunkSize: %w", err)
	}

	// Update Subchunk2Size (data size)
	if _, err := file.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to Subchunk2Size: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, dataSize); err != nil {
		return fmt.Errorf("failed to write Subchunk2Size: %w", err)
	}

	return nil
}
