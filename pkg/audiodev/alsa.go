//go:build linux

package audiodev

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ALSASource captures audio from an ALSA device by piping raw PCM out
// of arecord. This is the production implementation on the Pi; it
// avoids CGO audio bindings and survives device re-enumeration because
// every restart is a fresh process.
type ALSASource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	gate    *frameGate
	stopCh  chan struct{}

	// Stats
	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	device string
}

// newALSASource creates a new ALSA audio source.
func newALSASource(cfg Config, logger *slog.Logger) (*ALSASource, error) {
	if _, err := exec.LookPath("arecord"); err != nil {
		return nil, fmt.Errorf("arecord not found: %w", err)
	}

	device := cfg.Device
	if device == "" {
		device = "default"
	}

	s := &ALSASource{
		cfg:    cfg,
		logger: logger,
		device: device,
		gate:   newFrameGate(10),
		stopCh: make(chan struct{}),
	}

	logger.Info("ALSA source created",
		"device", device,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)
	return s, nil
}

// Start begins audio capture.
func (s *ALSASource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cmd := exec.Command("arecord",
		"-q",
		"-D", s.device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(s.cfg.SampleRate),
		"-c", strconv.Itoa(s.cfg.Channels),
		"-t", "raw",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("arecord stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start arecord: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.running = true
	s.stopCh = make(chan struct{})
	s.gate = newFrameGate(10)

	go s.captureLoop(ctx, stdout, s.gate, s.stopCh)

	s.logger.Info("ALSA audio source started", "device", s.device)
	return nil
}

func (s *ALSASource) captureLoop(ctx context.Context, r io.Reader, gate *frameGate, stop chan struct{}) {
	frameBytes := s.cfg.FrameBytes()
	buf := make([]byte, frameBytes)

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-stop:
			return
		default:
		}

		if _, err := io.ReadFull(r, buf); err != nil {
			s.mu.Lock()
			stopping := !s.running
			s.mu.Unlock()
			if !stopping {
				s.logger.Error("ALSA capture read failed", "error", err)
				s.Stop()
			}
			return
		}

		frame := FrameFromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		s.framesRead.Add(1)
		if gate.emit(frame) {
			s.samplesRead.Add(int64(len(frame.Samples)))
		} else {
			s.overruns.Add(1)
		}
	}
}

// Stop halts audio capture.
func (s *ALSASource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.gate.close()

	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.cmd = nil
	s.stdout = nil

	s.logger.Info("ALSA audio source stopped")
	return nil
}

// Read reads the next frame.
func (s *ALSASource) Read(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame, ok := <-s.Stream():
		if !ok {
			return Frame{}, io.EOF
		}
		return frame, nil
	}
}

// Stream returns the frame channel.
func (s *ALSASource) Stream() <-chan Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.stream()
}

// Config returns the audio configuration.
func (s *ALSASource) Config() Config {
	return s.cfg
}

// Name returns "alsa".
func (s *ALSASource) Name() string {
	return "alsa"
}

// Close releases resources.
func (s *ALSASource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	return nil
}

// Stats returns source statistics.
func (s *ALSASource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		FramesRead:  s.framesRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "alsa",
	}
}

// Probe reports capture process liveness.
func (s *ALSASource) Probe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.cmd == nil || s.cmd.Process == nil {
		return fmt.Errorf("capture process not running")
	}
	return nil
}

var _ SourceWithStats = (*ALSASource)(nil)

// ALSASink plays audio by piping raw PCM into aplay. The process is
// started on the first write after idle and torn down by Flush or
// Clear, mirroring how utterances arrive in bursts.
type ALSASink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool

	cmd   *exec.Cmd
	stdin io.WriteCloser

	// Stats
	framesWritten  atomic.Int64
	samplesWritten atomic.Int64
	underruns      atomic.Int64

	device string
}

// newALSASink creates a new ALSA audio sink.
func newALSASink(cfg Config, logger *slog.Logger) (*ALSASink, error) {
	if _, err := exec.LookPath("aplay"); err != nil {
		return nil, fmt.Errorf("aplay not found: %w", err)
	}

	device := cfg.Device
	if device == "" {
		device = "default"
	}

	s := &ALSASink{
		cfg:    cfg,
		logger: logger,
		device: device,
	}

	logger.Info("ALSA sink created",
		"device", device,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)
	return s, nil
}

// Start marks the sink ready. The playback process itself starts
// lazily on the first Write.
func (s *ALSASink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	s.logger.Info("ALSA audio sink started", "device", s.device)
	return nil
}

// Stop halts audio playback.
func (s *ALSASink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.teardownLocked()
	s.logger.Info("ALSA audio sink stopped")
	return nil
}

// Write sends audio to the output device.
func (s *ALSASink) Write(ctx context.Context, frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if !s.running {
		return fmt.Errorf("sink not running")
	}

	if s.stdin == nil {
		if err := s.spawnLocked(); err != nil {
			return err
		}
	}

	if _, err := s.stdin.Write(frame.Bytes()); err != nil {
		// Pipeline died mid-burst; tear down so the next write
		// respawns it.
		s.underruns.Add(1)
		s.teardownLocked()
		return fmt.Errorf("write to aplay: %w", err)
	}

	s.framesWritten.Add(1)
	s.samplesWritten.Add(int64(len(frame.Samples)))
	return nil
}

func (s *ALSASink) spawnLocked() error {
	cmd := exec.Command("aplay",
		"-q",
		"-D", s.device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(s.cfg.SampleRate),
		"-c", strconv.Itoa(s.cfg.Channels),
		"-t", "raw",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("aplay stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start aplay: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

// Flush closes the playback pipe and waits for buffered audio to
// drain.
func (s *ALSASink) Flush(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	s.cmd = nil
	s.stdin = nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}
	if stdin != nil {
		stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-done
		return ctx.Err()
	case <-time.After(30 * time.Second):
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-done
		return fmt.Errorf("flush timed out")
	}
}

// Clear kills the playback process, discarding buffered audio.
func (s *ALSASink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.logger.Debug("ALSA sink cleared")
	return nil
}

func (s *ALSASink) teardownLocked() {
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.cmd = nil
}

// Config returns the audio configuration.
func (s *ALSASink) Config() Config {
	return s.cfg
}

// Name returns "alsa".
func (s *ALSASink) Name() string {
	return "alsa"
}

// Close releases resources.
func (s *ALSASink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	return nil
}

// Stats returns sink statistics.
func (s *ALSASink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		FramesWritten:   s.framesWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Underruns:       s.underruns.Load(),
		Running:         running,
		Backend:         "alsa",
		BufferedSamples: 0,
	}
}

// Probe reports device liveness. An idle sink with no process is
// healthy; playback is bursty.
func (s *ALSASink) Probe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.running {
		return fmt.Errorf("sink not running")
	}
	return nil
}

var _ SinkWithStats = (*ALSASink)(nil)
