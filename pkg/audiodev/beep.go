package audiodev

import (
	"math"
	"time"
)

// Acknowledgment chirp parameters. Two rising notes, quiet enough not
// to startle anyone across the room.
const (
	beepAmplitude = 0.35
	beepRampMS    = 5
)

var beepNotes = []struct {
	freq float64
	dur  time.Duration
}{
	{880, 90 * time.Millisecond},
	{1320, 120 * time.Millisecond},
}

const beepGap = 20 * time.Millisecond

// ConfirmTone synthesizes the wake acknowledgment chirp as mono PCM16
// at the given rate. Each note gets short edge ramps so the burst
// starts and ends without clicks.
func ConfirmTone(sampleRate int) []int16 {
	var out []int16
	gapSamples := int(float64(sampleRate) * beepGap.Seconds())
	rampSamples := sampleRate * beepRampMS / 1000

	for i, note := range beepNotes {
		if i > 0 {
			out = append(out, make([]int16, gapSamples)...)
		}

		n := int(float64(sampleRate) * note.dur.Seconds())
		for j := 0; j < n; j++ {
			v := beepAmplitude * math.Sin(2*math.Pi*note.freq*float64(j)/float64(sampleRate))

			// Edge ramps
			if rampSamples > 0 {
				if j < rampSamples {
					v *= float64(j) / float64(rampSamples)
				}
				if n-j <= rampSamples {
					v *= float64(n-j) / float64(rampSamples)
				}
			}
			out = append(out, int16(v*32767))
		}
	}
	return out
}
