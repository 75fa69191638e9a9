package audiodev

import (
	"math"
	"time"
)

// Frame is one buffer of captured or synthesized audio.
type Frame struct {
	// Samples contains PCM16 audio samples (little-endian on the wire).
	Samples []int16

	// SampleRate is the sample rate of this frame.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int

	// Captured is when the frame left the device.
	Captured time.Time
}

// FrameFromBytes builds a frame from raw PCM16 little-endian bytes.
func FrameFromBytes(data []byte, sampleRate, channels int) Frame {
	return Frame{
		Samples:    BytesToSamples(data),
		SampleRate: sampleRate,
		Channels:   channels,
		Captured:   time.Now(),
	}
}

// Bytes returns the raw PCM16 little-endian bytes of the frame.
func (f Frame) Bytes() []byte {
	return SamplesToBytes(f.Samples)
}

// Duration returns the play time of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	secs := float64(len(f.Samples)) / float64(f.SampleRate*f.Channels)
	return time.Duration(secs * float64(time.Second))
}

// RMS returns the normalized root mean square level in [0, 1].
func (f Frame) RMS() float64 {
	return RMS(f.Samples)
}

// DBFS returns the frame level in decibels relative to full scale.
func (f Frame) DBFS() float64 {
	return DBFS(f.Samples)
}

// silenceFrame returns a zeroed frame of the given duration.
func silenceFrame(d time.Duration, sampleRate, channels int) Frame {
	n := int(float64(sampleRate) * d.Seconds())
	return Frame{
		Samples:    make([]int16, n*channels),
		SampleRate: sampleRate,
		Channels:   channels,
		Captured:   time.Now(),
	}
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// Resample converts audio from one sample rate to another using linear
// interpolation. Good enough for speech; not for music.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)
	if newLen == 0 {
		return []int16{}
	}

	result := make([]int16, newLen)
	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			s1 := float64(samples[srcIdx])
			s2 := float64(samples[srcIdx+1])
			result[i] = int16(s1 + frac*(s2-s1))
		}
	}
	return result
}

// StereoToMono averages stereo samples to mono.
func StereoToMono(samples []int16) []int16 {
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		left := int32(samples[i*2])
		right := int32(samples[i*2+1])
		mono[i] = int16((left + right) / 2)
	}
	return mono
}

// RMS returns the normalized root mean square of samples in [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS converts samples to decibels relative to full scale. Silence
// returns -100 rather than -Inf so thresholds stay comparable.
func DBFS(samples []int16) float64 {
	rms := RMS(samples)
	if rms <= 0 {
		return -100
	}
	db := 20 * math.Log10(rms)
	if db < -100 {
		return -100
	}
	return db
}
