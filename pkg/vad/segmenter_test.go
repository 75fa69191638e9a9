package vad

import (
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-embody/pkg/audiodev"
)

// 20ms mono frames at 16kHz.
const (
	testRate      = 16000
	testFrameSize = 320
)

func speechFrame(at time.Time) audiodev.Frame {
	samples := make([]int16, testFrameSize)
	for i := range samples {
		samples[i] = 3000
	}
	return audiodev.Frame{Samples: samples, SampleRate: testRate, Channels: 1, Captured: at}
}

func quietFrame(at time.Time) audiodev.Frame {
	return audiodev.Frame{
		Samples:    make([]int16, testFrameSize),
		SampleRate: testRate,
		Channels:   1,
		Captured:   at,
	}
}

func testSegConfig() Config {
	cfg := DefaultConfig()
	cfg.MinSpeechDuration = 100 * time.Millisecond // 5 frames
	cfg.SilenceDuration = 100 * time.Millisecond   // 5 frames
	cfg.MaxSpeechDuration = time.Second
	return cfg
}

type eventRecorder struct {
	mu       sync.Mutex
	starts   []time.Time
	segments []Segment
}

func (r *eventRecorder) attach(s *Segmenter) {
	s.OnSpeechStart(func(at time.Time) {
		r.mu.Lock()
		r.starts = append(r.starts, at)
		r.mu.Unlock()
	})
	s.OnSegment(func(seg Segment) {
		r.mu.Lock()
		r.segments = append(r.segments, seg)
		r.mu.Unlock()
	})
}

func (r *eventRecorder) counts() (starts, segments int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.starts), len(r.segments)
}

func newTestSegmenter(t *testing.T, cfg Config) (*Segmenter, *eventRecorder) {
	t.Helper()
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.Enabled() {
		t.Fatal("segmenter disabled with energy classifier config")
	}
	rec := &eventRecorder{}
	rec.attach(s)
	s.SetActive(true)
	return s, rec
}

// feed pushes n frames built by mk, advancing the capture clock by one
// frame per step, and returns the last finalized segment, if any.
func feed(s *Segmenter, at *time.Time, n int, mk func(time.Time) audiodev.Frame) *Segment {
	var final *Segment
	for i := 0; i < n; i++ {
		if seg := s.Feed(mk(*at)); seg != nil {
			final = seg
		}
		*at = at.Add(20 * time.Millisecond)
	}
	return final
}

func TestSpeechStartCommitsAfterMinDuration(t *testing.T) {
	s, rec := newTestSegmenter(t, testSegConfig())
	at := time.Now()

	feed(s, &at, 4, speechFrame)
	if starts, _ := rec.counts(); starts != 0 {
		t.Fatalf("speech-start fired after 80ms, want none before 100ms")
	}

	feed(s, &at, 1, speechFrame)
	if starts, _ := rec.counts(); starts != 1 {
		t.Fatalf("starts = %d after min duration, want exactly 1", starts)
	}

	// Further speech does not re-fire the start event.
	feed(s, &at, 10, speechFrame)
	if starts, _ := rec.counts(); starts != 1 {
		t.Errorf("starts = %d while segment open, want 1", starts)
	}
}

func TestSegmentClosesAfterSilence(t *testing.T) {
	s, rec := newTestSegmenter(t, testSegConfig())
	start := time.Now()
	at := start

	feed(s, &at, 5, speechFrame)
	feed(s, &at, 4, quietFrame)
	if _, segs := rec.counts(); segs != 0 {
		t.Fatal("segment closed before silence duration elapsed")
	}

	final := feed(s, &at, 1, quietFrame)
	if final == nil {
		t.Fatal("segment not closed after silence duration")
	}
	if _, segs := rec.counts(); segs != 1 {
		t.Fatalf("segments = %d, want exactly 1", segs)
	}

	if got, want := len(final.Frames), 10; got != want {
		t.Errorf("segment frames = %d, want %d", got, want)
	}
	if got, want := final.Duration, 200*time.Millisecond; got != want {
		t.Errorf("segment duration = %v, want %v", got, want)
	}
	if !final.Start.Equal(start) {
		t.Errorf("segment start = %v, want first run frame %v", final.Start, start)
	}
	if !final.End.Equal(start.Add(200 * time.Millisecond)) {
		t.Errorf("segment end = %v, want start+200ms", final.End)
	}
	if final.Truncated {
		t.Error("silence-closed segment marked truncated")
	}
}

func TestInterruptedRunNeverStarts(t *testing.T) {
	s, rec := newTestSegmenter(t, testSegConfig())
	at := time.Now()

	feed(s, &at, 4, speechFrame)
	feed(s, &at, 1, quietFrame)
	feed(s, &at, 4, speechFrame)

	if starts, _ := rec.counts(); starts != 0 {
		t.Errorf("starts = %d for interrupted runs, want 0", starts)
	}
}

func TestBriefSilenceDoesNotClose(t *testing.T) {
	s, rec := newTestSegmenter(t, testSegConfig())
	at := time.Now()

	feed(s, &at, 5, speechFrame)
	feed(s, &at, 3, quietFrame) // 60ms gap, below the 100ms close
	feed(s, &at, 5, speechFrame)
	if _, segs := rec.counts(); segs != 0 {
		t.Fatal("segment closed on a gap shorter than silence duration")
	}

	final := feed(s, &at, 5, quietFrame)
	if final == nil {
		t.Fatal("segment not closed")
	}
	if starts, segs := rec.counts(); starts != 1 || segs != 1 {
		t.Errorf("starts, segments = %d, %d, want 1, 1", starts, segs)
	}
	// 18 frames: the mid-segment gap stays in the buffer.
	if got, want := len(final.Frames), 18; got != want {
		t.Errorf("segment frames = %d, want %d", got, want)
	}
}

func TestMaxDurationTruncates(t *testing.T) {
	cfg := testSegConfig()
	cfg.MaxSpeechDuration = 200 * time.Millisecond // 10 frames
	s, rec := newTestSegmenter(t, cfg)
	at := time.Now()

	final := feed(s, &at, 10, speechFrame)
	if final == nil {
		t.Fatal("segment not force-finalized at max duration")
	}
	if !final.Truncated {
		t.Error("force-finalized segment not marked truncated")
	}
	if got, want := final.Duration, 200*time.Millisecond; got != want {
		t.Errorf("segment duration = %v, want %v", got, want)
	}

	// Ongoing speech opens a fresh segment after another min run.
	feed(s, &at, 5, speechFrame)
	if starts, segs := rec.counts(); starts != 2 || segs != 1 {
		t.Errorf("starts, segments = %d, %d after continued speech, want 2, 1", starts, segs)
	}
}

func TestInactiveDropsFrames(t *testing.T) {
	cfg := testSegConfig()
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := &eventRecorder{}
	rec.attach(s)

	at := time.Now()
	feed(s, &at, 20, speechFrame)
	if starts, segs := rec.counts(); starts != 0 || segs != 0 {
		t.Errorf("events fired while inactive: starts=%d segments=%d", starts, segs)
	}
}

func TestDeactivateFinalizesOpenSegment(t *testing.T) {
	s, rec := newTestSegmenter(t, testSegConfig())
	at := time.Now()

	feed(s, &at, 7, speechFrame)
	s.SetActive(false)

	_, segs := rec.counts()
	if segs != 1 {
		t.Fatalf("segments = %d after deactivate, want 1", segs)
	}
	rec.mu.Lock()
	seg := rec.segments[0]
	rec.mu.Unlock()
	if got, want := len(seg.Frames), 7; got != want {
		t.Errorf("segment frames = %d, want %d", got, want)
	}

	// Frames after deactivation are dropped.
	if final := feed(s, &at, 10, speechFrame); final != nil {
		t.Error("Feed produced a segment while inactive")
	}
}

func TestSetActiveIdempotent(t *testing.T) {
	s, rec := newTestSegmenter(t, testSegConfig())
	s.SetActive(true)
	s.SetActive(false)
	s.SetActive(false)
	if starts, segs := rec.counts(); starts != 0 || segs != 0 {
		t.Errorf("events fired on idle toggles: starts=%d segments=%d", starts, segs)
	}
	if s.Active() {
		t.Error("Active() = true after SetActive(false)")
	}
}

func TestSegmentSamplesConcatenate(t *testing.T) {
	s, _ := newTestSegmenter(t, testSegConfig())
	at := time.Now()

	feed(s, &at, 5, speechFrame)
	final := feed(s, &at, 5, quietFrame)
	if final == nil {
		t.Fatal("segment not closed")
	}

	samples := final.Samples()
	if got, want := len(samples), 10*testFrameSize; got != want {
		t.Fatalf("samples = %d, want %d", got, want)
	}
	if samples[0] != 3000 {
		t.Errorf("first sample = %d, want 3000", samples[0])
	}
	if samples[len(samples)-1] != 0 {
		t.Errorf("last sample = %d, want 0 from the silence tail", samples[len(samples)-1])
	}
	if got := final.SampleRate(); got != testRate {
		t.Errorf("SampleRate = %d, want %d", got, testRate)
	}
	if got, want := len(final.Bytes()), 2*10*testFrameSize; got != want {
		t.Errorf("bytes = %d, want %d", got, want)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero threshold", func(c *Config) { c.SpeechThreshold = 0 }, false},
		{"threshold too high", func(c *Config) { c.SpeechThreshold = 1 }, false},
		{"zero min speech", func(c *Config) { c.MinSpeechDuration = 0 }, false},
		{"zero silence", func(c *Config) { c.SilenceDuration = 0 }, false},
		{"max below min", func(c *Config) { c.MaxSpeechDuration = 50 * time.Millisecond }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}
