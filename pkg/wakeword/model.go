package wakeword

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/teslashibe/go-embody/pkg/audiodev"
)

// Model file layout: 4-byte magic, uint16 hop size in milliseconds,
// uint32 value count, then count float32 envelope values, all
// little-endian.
var modelMagic = [4]byte{'W', 'W', 'M', '1'}

// maxEnvelopeLen caps model size. A wake phrase is a couple of
// seconds; anything longer is a corrupt file.
const maxEnvelopeLen = 1024

// minWindowPeak is the quietest window peak (normalized RMS) that can
// score at all. Keeps silence and room hum from correlating.
const minWindowPeak = 0.01

// Model is the loudness-envelope template for one wake phrase.
type Model struct {
	// HopMS is the envelope step in milliseconds.
	HopMS int
	// Envelope holds one normalized RMS value per hop.
	Envelope []float64
}

// NewModel builds a model from an envelope profile.
func NewModel(hopMS int, envelope []float64) *Model {
	return &Model{HopMS: hopMS, Envelope: envelope}
}

// Duration returns the wake phrase length the model covers.
func (m *Model) Duration() float64 {
	return float64(len(m.Envelope)*m.HopMS) / 1000.0
}

// Encode writes the model in its binary file format.
func (m *Model) Encode(w io.Writer) error {
	if _, err := w.Write(modelMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(m.HopMS)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.Envelope))); err != nil {
		return err
	}
	for _, v := range m.Envelope {
		if err := binary.Write(w, binary.LittleEndian, float32(v)); err != nil {
			return err
		}
	}
	return nil
}

// ReadModel parses a model from its binary format.
func ReadModel(r io.Reader) (*Model, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModel, err)
	}
	if magic != modelMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadModel, magic)
	}

	var hopMS uint16
	if err := binary.Read(r, binary.LittleEndian, &hopMS); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModel, err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModel, err)
	}
	if hopMS == 0 || count == 0 || count > maxEnvelopeLen {
		return nil, fmt.Errorf("%w: hop %dms, %d values", ErrBadModel, hopMS, count)
	}

	envelope := make([]float64, count)
	for i := range envelope {
		var v float32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, fmt.Errorf("%w: truncated at value %d: %v", ErrBadModel, i, err)
		}
		envelope[i] = float64(v)
	}
	return &Model{HopMS: int(hopMS), Envelope: envelope}, nil
}

// LoadModel reads a model file from disk.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	defer f.Close()

	m, err := ReadModel(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Scorer scores a frame stream for one wake phrase. Implementations
// keep streaming state; Reset clears it after a detection so the same
// utterance cannot fire twice.
type Scorer interface {
	Score(f audiodev.Frame) float64
	Reset()
}

// envelopeScorer matches the loudness envelope of incoming audio
// against a model template by normalized cross-correlation over a
// sliding window. Correlation is scale-invariant, so a quiet speaker
// matches as well as a loud one; a minimum-peak gate keeps silence
// from scoring.
type envelopeScorer struct {
	model *Model

	// Precomputed template statistics.
	tMean float64
	tDev  float64

	buf    []float64 // pending mono samples
	window []float64 // recent per-hop RMS values, newest last
	last   float64
}

// NewScorer creates a streaming scorer for the model.
func NewScorer(m *Model) Scorer {
	s := &envelopeScorer{model: m}
	s.tMean, s.tDev = meanDev(m.Envelope)
	return s
}

// Score consumes one frame and returns the current match confidence in
// [0, 1].
func (s *envelopeScorer) Score(f audiodev.Frame) float64 {
	if len(f.Samples) == 0 || f.SampleRate <= 0 {
		return s.last
	}

	s.appendMono(f)
	hop := f.SampleRate * s.model.HopMS / 1000
	if hop <= 0 {
		return s.last
	}

	// A frame may complete several hops; report the best of them so a
	// peak between two Score calls is not missed.
	best := 0.0
	hopped := false
	for len(s.buf) >= hop {
		rms := rmsFloat(s.buf[:hop])
		s.buf = s.buf[hop:]
		s.push(rms)
		hopped = true

		if c := s.correlate(); c > best {
			best = c
		}
	}
	if !hopped {
		return s.last
	}
	s.last = best
	return s.last
}

// Reset clears streaming state.
func (s *envelopeScorer) Reset() {
	s.buf = s.buf[:0]
	s.window = s.window[:0]
	s.last = 0
}

// appendMono converts the frame to normalized mono float samples and
// buffers them.
func (s *envelopeScorer) appendMono(f audiodev.Frame) {
	ch := f.Channels
	if ch <= 1 {
		for _, v := range f.Samples {
			s.buf = append(s.buf, float64(v)/32768.0)
		}
		return
	}
	for i := 0; i+ch <= len(f.Samples); i += ch {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(f.Samples[i+c])
		}
		s.buf = append(s.buf, sum/float64(ch)/32768.0)
	}
}

func (s *envelopeScorer) push(rms float64) {
	s.window = append(s.window, rms)
	if n := len(s.model.Envelope); len(s.window) > n {
		s.window = s.window[len(s.window)-n:]
	}
}

// correlate returns the Pearson correlation between the current window
// and the template, clamped to [0, 1]. Anti-correlation is as useless
// as no correlation for detection purposes.
func (s *envelopeScorer) correlate() float64 {
	if len(s.window) < len(s.model.Envelope) {
		return 0
	}

	peak := 0.0
	for _, v := range s.window {
		if v > peak {
			peak = v
		}
	}
	if peak < minWindowPeak {
		return 0
	}

	wMean, wDev := meanDev(s.window)
	if wDev == 0 || s.tDev == 0 {
		return 0
	}

	var num float64
	for i, v := range s.window {
		num += (v - wMean) * (s.model.Envelope[i] - s.tMean)
	}
	corr := num / (wDev * s.tDev)
	if corr < 0 {
		return 0
	}
	if corr > 1 {
		return 1
	}
	return corr
}

func meanDev(vals []float64) (mean, dev float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss)
}

func rmsFloat(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(vals)))
}
