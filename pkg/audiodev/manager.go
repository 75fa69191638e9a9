package audiodev

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// maxRetryDelay caps exponential backoff between init attempts.
const maxRetryDelay = 30 * time.Second

// probeTimeout bounds a single health probe.
const probeTimeout = 2 * time.Second

// backoffDelay returns the sleep before retrying after the given
// zero-based failed attempt.
func backoffDelay(base time.Duration, factor float64, attempt int) time.Duration {
	d := time.Duration(float64(base) * math.Pow(factor, float64(attempt)))
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// Manager owns the audio source and sink shared with the control
// daemon's host. It layers initialization retries, exclusive input
// leasing, warm-up discard, output lead-in, and health monitoring on
// top of the raw backends.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	open   func(Config) (Source, Sink, error)

	mu       sync.Mutex
	source   Source
	sink     Sink
	lease    *InputLease
	health   Health
	onHealth func(Health)
	opened   bool
	closed   bool

	healthStop chan struct{}
	healthDone chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithOpener overrides device construction. Tests inject failures and
// canned devices through this.
func WithOpener(open func(Config) (Source, Sink, error)) ManagerOption {
	return func(m *Manager) {
		m.open = open
	}
}

// NewManager creates a manager. Devices are not touched until Open.
func NewManager(cfg Config, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger,
		health: Health{State: Healthy},
	}
	m.open = func(c Config) (Source, Sink, error) {
		src, err := NewSource(c, logger)
		if err != nil {
			return nil, nil, err
		}
		snk, err := NewSink(c, logger)
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		return src, snk, nil
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnHealthChange registers a callback fired when the health state
// changes. Must be set before Open.
func (m *Manager) OnHealthChange(fn func(Health)) {
	m.mu.Lock()
	m.onHealth = fn
	m.mu.Unlock()
}

// Open initializes the devices, retrying with exponential backoff on
// failure. After the final attempt fails the manager is marked Failed
// and ErrInitFailed is returned.
func (m *Manager) Open(ctx context.Context) error {
	if err := m.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = m.tryOpen(ctx)
		if lastErr == nil {
			m.startHealthLoop()
			m.logger.Info("audio devices open",
				"warmup_frames", m.cfg.InputWarmupFrames,
				"attempts", attempt+1,
			)
			return nil
		}
		if attempt >= m.cfg.MaxInitRetries {
			break
		}

		delay := backoffDelay(m.cfg.RetryDelay, m.cfg.RetryBackoff, attempt)
		m.logger.Warn("audio device init failed, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	m.setFailed(lastErr)
	return fmt.Errorf("%w after %d attempts: %v", ErrInitFailed, m.cfg.MaxInitRetries+1, lastErr)
}

func (m *Manager) tryOpen(ctx context.Context) error {
	src, snk, err := m.open(m.cfg)
	if err != nil {
		return err
	}

	cleanup := func() {
		src.Stop()
		src.Close()
		snk.Stop()
		snk.Close()
	}

	if err := src.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("start source: %w", err)
	}
	if err := snk.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("start sink: %w", err)
	}
	if err := m.discardWarmup(ctx, src); err != nil {
		cleanup()
		return fmt.Errorf("warm-up: %w", err)
	}

	m.mu.Lock()
	m.source = src
	m.sink = snk
	m.opened = true
	m.health = Health{State: Healthy, LastOK: time.Now()}
	m.mu.Unlock()
	return nil
}

// discardWarmup drops the first frames after the source opens. Early
// capture on the Pi carries DC offset and driver garbage that would
// otherwise hit the wake detector.
func (m *Manager) discardWarmup(ctx context.Context, src Source) error {
	if m.cfg.InputWarmupFrames <= 0 {
		return nil
	}

	budget := time.Duration(m.cfg.InputWarmupFrames+5)*m.cfg.FrameDuration*2 + 2*time.Second
	warmCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	for i := 0; i < m.cfg.InputWarmupFrames; i++ {
		if _, err := src.Read(warmCtx); err != nil {
			return fmt.Errorf("discarding frame %d: %w", i, err)
		}
	}
	return nil
}

func (m *Manager) setFailed(cause error) {
	m.mu.Lock()
	m.health.State = Failed
	if cause != nil {
		m.health.LastError = cause.Error()
	}
	cb := m.onHealth
	snapshot := m.health
	m.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// InputLease grants exclusive access to the capture stream. Frames
// flow on Frames() until Release.
type InputLease struct {
	frames  chan Frame
	release func()
	once    sync.Once
}

// Frames returns the leased frame stream. The channel closes on
// Release or when the source stops.
func (l *InputLease) Frames() <-chan Frame {
	return l.frames
}

// Release returns the input to the manager. Releasing more than once
// is safe.
func (l *InputLease) Release() {
	l.once.Do(l.release)
}

// AcquireInput claims the exclusive input stream. A second call
// before Release returns ErrInputBusy.
func (m *Manager) AcquireInput(ctx context.Context) (*InputLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if !m.opened {
		return nil, ErrNotOpen
	}
	if m.lease != nil {
		return nil, ErrInputBusy
	}

	stop := make(chan struct{})
	out := make(chan Frame, 16)
	lease := &InputLease{frames: out}
	lease.release = func() {
		close(stop)
		m.mu.Lock()
		if m.lease == lease {
			m.lease = nil
		}
		m.mu.Unlock()
	}
	m.lease = lease

	go pumpFrames(m.source.Stream(), out, stop)
	return lease, nil
}

// pumpFrames copies the source stream to the lease channel, dropping
// frames when the holder falls behind. Live capture never blocks the
// device path.
func pumpFrames(in <-chan Frame, out chan Frame, stop <-chan struct{}) {
	defer close(out)
	for {
		select {
		case <-stop:
			return
		case frame, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- frame:
			case <-stop:
				return
			default:
			}
		}
	}
}

// PlayPCM plays one burst of PCM16 through the sink. The configured
// lead-in silence is prepended so the output path is awake before the
// burst starts, and the call returns after the sink flushes.
func (m *Manager) PlayPCM(ctx context.Context, samples []int16) error {
	m.mu.Lock()
	sink := m.sink
	opened := m.opened
	m.mu.Unlock()

	if !opened || sink == nil {
		return ErrNotOpen
	}

	if m.cfg.OutputLeadIn > 0 {
		lead := silenceFrame(m.cfg.OutputLeadIn, m.cfg.SampleRate, m.cfg.Channels)
		if err := sink.Write(ctx, lead); err != nil {
			return fmt.Errorf("write lead-in: %w", err)
		}
	}

	frameSize := m.cfg.FrameSize() * m.cfg.Channels
	for start := 0; start < len(samples); start += frameSize {
		end := start + frameSize
		if end > len(samples) {
			end = len(samples)
		}
		frame := Frame{
			Samples:    samples[start:end],
			SampleRate: m.cfg.SampleRate,
			Channels:   m.cfg.Channels,
			Captured:   time.Now(),
		}
		if err := sink.Write(ctx, frame); err != nil {
			return fmt.Errorf("write burst: %w", err)
		}
	}
	return sink.Flush(ctx)
}

// Beep plays the wake acknowledgment chirp.
func (m *Manager) Beep(ctx context.Context) error {
	return m.PlayPCM(ctx, ConfirmTone(m.cfg.SampleRate))
}

// StopPlayback discards any buffered output immediately.
func (m *Manager) StopPlayback() error {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink == nil {
		return ErrNotOpen
	}
	return sink.Clear()
}

// Health returns the current device health snapshot.
func (m *Manager) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

// SourceStats returns capture statistics, if the backend tracks them.
func (m *Manager) SourceStats() (SourceStats, bool) {
	m.mu.Lock()
	src := m.source
	m.mu.Unlock()
	if s, ok := src.(SourceWithStats); ok {
		return s.Stats(), true
	}
	return SourceStats{}, false
}

// SinkStats returns playback statistics, if the backend tracks them.
func (m *Manager) SinkStats() (SinkStats, bool) {
	m.mu.Lock()
	snk := m.sink
	m.mu.Unlock()
	if s, ok := snk.(SinkWithStats); ok {
		return s.Stats(), true
	}
	return SinkStats{}, false
}

func (m *Manager) startHealthLoop() {
	if m.cfg.HealthInterval <= 0 {
		return
	}
	m.mu.Lock()
	m.healthStop = make(chan struct{})
	m.healthDone = make(chan struct{})
	stop, done := m.healthStop, m.healthDone
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.cfg.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.probe()
			}
		}
	}()
}

func (m *Manager) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	m.mu.Lock()
	src, snk := m.source, m.sink
	m.mu.Unlock()

	var err error
	if p, ok := src.(Prober); ok {
		if perr := p.Probe(ctx); perr != nil {
			err = fmt.Errorf("source: %w", perr)
		}
	}
	if err == nil {
		if p, ok := snk.(Prober); ok {
			if perr := p.Probe(ctx); perr != nil {
				err = fmt.Errorf("sink: %w", perr)
			}
		}
	}

	var (
		cb       func(Health)
		snapshot Health
		changed  bool
	)
	m.mu.Lock()
	if err != nil {
		m.health.ConsecutiveErrors++
		m.health.LastError = err.Error()
		if m.health.State == Healthy && m.health.ConsecutiveErrors >= m.cfg.MaxConsecutiveErrors {
			m.health.State = Degraded
			changed = true
		}
	} else {
		m.health.LastOK = time.Now()
		m.health.ConsecutiveErrors = 0
		if m.health.State == Degraded {
			m.health.State = Healthy
			m.health.LastError = ""
			changed = true
		}
	}
	cb = m.onHealth
	snapshot = m.health
	m.mu.Unlock()

	if !changed {
		return
	}
	if snapshot.State == Degraded {
		m.logger.Error("audio device degraded",
			"consecutive_errors", snapshot.ConsecutiveErrors,
			"error", snapshot.LastError,
		)
	} else {
		m.logger.Info("audio device recovered")
	}
	if cb != nil {
		cb(snapshot)
	}
}

// Close releases the lease, stops monitoring, and closes both devices.
// Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	lease := m.lease
	src, snk := m.source, m.sink
	stop, done := m.healthStop, m.healthDone
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	if lease != nil {
		lease.Release()
	}
	if src != nil {
		src.Stop()
		src.Close()
	}
	if snk != nil {
		snk.Stop()
		snk.Close()
	}
	return nil
}
