package audiodev

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// It generates synthetic audio (silence, a sine wave, or a scripted
// sample sequence).
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	gate    *frameGate
	stopCh  chan struct{}

	// Stats
	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0

	// Scripted playback; consumed frame by frame before falling back
	// to the synthetic generator.
	script []int16
	pos    int

	// Interval between generated frames. Defaults to FrameDuration;
	// tests shrink it to run faster than real time.
	interval time.Duration

	failProbe atomic.Bool
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithScript configures the mock to play the given samples before
// reverting to the synthetic generator.
func WithScript(samples []int16) MockSourceOption {
	return func(m *MockSource) {
		m.script = samples
	}
}

// WithInterval overrides the wall-clock spacing between frames.
func WithInterval(d time.Duration) MockSourceOption {
	return func(m *MockSource) {
		m.interval = d
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		gate:      newFrameGate(10),
		stopCh:    make(chan struct{}),
		frequency: 0, // silence by default
		amplitude: 0.5,
		interval:  cfg.FrameDuration,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.interval <= 0 {
		m.interval = 20 * time.Millisecond
	}
	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.gate = newFrameGate(10)

	go m.generateLoop(ctx, m.gate, m.stopCh)

	m.logger.Debug("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
		"scripted_samples", len(m.script),
	)
	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, gate *frameGate, stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
			frame := m.generateFrame()
			m.framesRead.Add(1)
			if gate.emit(frame) {
				m.samplesRead.Add(int64(len(frame.Samples)))
			} else {
				m.overruns.Add(1)
			}
		}
	}
}

func (m *MockSource) generateFrame() Frame {
	frameSize := m.cfg.FrameSize()
	samples := make([]int16, frameSize*m.cfg.Channels)

	m.mu.Lock()
	if m.pos < len(m.script) {
		n := copy(samples, m.script[m.pos:])
		m.pos += n
		m.mu.Unlock()
		return Frame{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels, Captured: time.Now()}
	}
	m.mu.Unlock()

	if m.frequency > 0 {
		for i := 0; i < frameSize; i++ {
			sample := m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
			sampleInt := int16(sample * 32767)
			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = sampleInt
			}
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}
	// else: samples stay zero (silence)

	return Frame{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels, Captured: time.Now()}
}

// Stop halts audio generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	m.gate.close()

	m.logger.Debug("mock audio source stopped")
	return nil
}

// Read reads the next frame.
func (m *MockSource) Read(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame, ok := <-m.Stream():
		if !ok {
			return Frame{}, io.EOF
		}
		return frame, nil
	}
}

// Stream returns the frame channel.
func (m *MockSource) Stream() <-chan Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gate.stream()
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.Stop()
	return nil
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		FramesRead:  m.framesRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     "mock",
	}
}

// SetProbeFailure makes subsequent health probes fail. Test hook.
func (m *MockSource) SetProbeFailure(fail bool) {
	m.failProbe.Store(fail)
}

// Probe reports device liveness.
func (m *MockSource) Probe(ctx context.Context) error {
	if m.failProbe.Load() {
		return io.ErrUnexpectedEOF
	}
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return io.ErrClosedPipe
	}
	return nil
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)

// MockSink is a mock audio sink for testing.
// It buffers audio and tracks statistics.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool

	// Stats
	framesWritten  atomic.Int64
	samplesWritten atomic.Int64

	// Buffer simulation. Written frames accumulate until Flush or
	// Clear; tests inspect the full history via Written.
	buffer  []Frame
	written []Frame

	failProbe atomic.Bool
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{
		cfg:    cfg,
		logger: logger,
		buffer: make([]Frame, 0, 100),
	}
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	m.logger.Debug("mock audio sink started")
	return nil
}

// Stop halts audio acceptance.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	m.logger.Debug("mock audio sink stopped")
	return nil
}

// Write accepts a frame.
func (m *MockSink) Write(ctx context.Context, frame Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}

	m.buffer = append(m.buffer, frame)
	m.written = append(m.written, frame)
	m.framesWritten.Add(1)
	m.samplesWritten.Add(int64(len(frame.Samples)))
	return nil
}

// Flush simulates waiting for playback.
func (m *MockSink) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	totalSamples := 0
	for _, frame := range m.buffer {
		totalSamples += len(frame.Samples)
	}

	if totalSamples > 0 && m.cfg.SampleRate > 0 {
		duration := time.Duration(float64(totalSamples) / float64(m.cfg.SampleRate) * float64(time.Second))
		// Token wait, not the full playback time
		waitTime := duration / 100
		if waitTime > 10*time.Millisecond {
			waitTime = 10 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}

	m.buffer = m.buffer[:0]
	return nil
}

// Clear discards buffered audio.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffer = m.buffer[:0]
	m.logger.Debug("mock audio sink cleared")
	return nil
}

// Written returns a copy of every frame written since construction.
func (m *MockSink) Written() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.written))
	copy(out, m.written)
	return out
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.Stop()
	return nil
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	buffered := int64(0)
	for _, frame := range m.buffer {
		buffered += int64(len(frame.Samples))
	}
	m.mu.Unlock()

	return SinkStats{
		FramesWritten:   m.framesWritten.Load(),
		SamplesWritten:  m.samplesWritten.Load(),
		Underruns:       0,
		Running:         running,
		Backend:         "mock",
		BufferedSamples: buffered,
	}
}

// SetProbeFailure makes subsequent health probes fail. Test hook.
func (m *MockSink) SetProbeFailure(fail bool) {
	m.failProbe.Store(fail)
}

// Probe reports device liveness.
func (m *MockSink) Probe(ctx context.Context) error {
	if m.failProbe.Load() {
		return io.ErrUnexpectedEOF
	}
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return io.ErrClosedPipe
	}
	return nil
}

// Ensure MockSink implements SinkWithStats.
var _ SinkWithStats = (*MockSink)(nil)
