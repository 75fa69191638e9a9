package audiodev

import (
	"math"
	"testing"
	"time"
)

func TestFrameDuration(t *testing.T) {
	tests := []struct {
		name string
		f    Frame
		want time.Duration
	}{
		{"mono 20ms", Frame{Samples: make([]int16, 320), SampleRate: 16000, Channels: 1}, 20 * time.Millisecond},
		{"stereo 20ms", Frame{Samples: make([]int16, 640), SampleRate: 16000, Channels: 2}, 20 * time.Millisecond},
		{"empty", Frame{SampleRate: 16000, Channels: 1}, 0},
		{"zero rate", Frame{Samples: make([]int16, 320)}, 0},
	}
	for _, tt := range tests {
		if got := tt.f.Duration(); got != tt.want {
			t.Errorf("%s: Duration() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestResampleLinear(t *testing.T) {
	in := []int16{0, 100, 200, 300}

	up := Resample(in, 8000, 16000)
	want := []int16{0, 50, 100, 150, 200, 250, 300, 300}
	if len(up) != len(want) {
		t.Fatalf("upsampled length = %d, want %d", len(up), len(want))
	}
	for i := range want {
		if up[i] != want[i] {
			t.Fatalf("upsampled = %v, want %v", up, want)
		}
	}

	down := Resample(make([]int16, 320), 16000, 8000)
	if len(down) != 160 {
		t.Errorf("downsampled length = %d, want 160", len(down))
	}

	if same := Resample(in, 16000, 16000); len(same) != len(in) {
		t.Errorf("same-rate length = %d, want %d", len(same), len(in))
	}
}

func TestSampleWireFormat(t *testing.T) {
	// PCM16 travels little-endian.
	data := SamplesToBytes([]int16{0x1234, -2})
	want := []byte{0x34, 0x12, 0xFE, 0xFF}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("bytes = %v, want %v", data, want)
		}
	}
	back := BytesToSamples(data)
	if back[0] != 0x1234 || back[1] != -2 {
		t.Errorf("decoded samples = %v, want [4660 -2]", back)
	}
}

func TestStereoToMono(t *testing.T) {
	mono := StereoToMono([]int16{100, 200, -100, 100})
	if len(mono) != 2 || mono[0] != 150 || mono[1] != 0 {
		t.Errorf("mono = %v, want [150 0]", mono)
	}
}

func TestLevels(t *testing.T) {
	silence := make([]int16, 320)
	if got := RMS(silence); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}
	if got := DBFS(silence); got != -100 {
		t.Errorf("DBFS(silence) = %v, want -100", got)
	}

	// Half-scale square wave sits at exactly -6.02 dBFS.
	half := make([]int16, 320)
	for i := range half {
		if i%2 == 0 {
			half[i] = 16384
		} else {
			half[i] = -16384
		}
	}
	if got := RMS(half); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS(half scale) = %v, want 0.5", got)
	}
	if got := DBFS(half); math.Abs(got+6.0206) > 0.001 {
		t.Errorf("DBFS(half scale) = %v, want about -6.02", got)
	}
}

func TestConfirmToneShape(t *testing.T) {
	tone := ConfirmTone(16000)
	// Two notes with a gap: 90ms + 20ms + 120ms at 16kHz.
	if want := 1440 + 320 + 1920; len(tone) != want {
		t.Fatalf("tone length = %d samples, want %d", len(tone), want)
	}
	if got := RMS(tone); got < 0.05 {
		t.Errorf("tone RMS = %v, want audible level above 0.05", got)
	}
	for _, s := range tone {
		if s < -12000 || s > 12000 {
			t.Fatalf("tone sample %d exceeds the 0.35 amplitude ceiling", s)
		}
	}
}
