// audio-probe exercises the capture path end to end: open a backend,
// stream frames, and print per-second level stats. Useful for checking
// microphone wiring and gain before running the full core.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-embody/internal/log"
	"github.com/teslashibe/go-embody/pkg/audiodev"
)

func main() {
	backend := flag.String("backend", string(audiodev.BackendAuto), "audio backend: auto, alsa, webrtc, mock")
	device := flag.String("device", "", "ALSA device, e.g. hw:0,0")
	signalURL := flag.String("signal-url", "", "WebRTC signalling server, e.g. ws://192.168.68.80:8443")
	duration := flag.Duration("duration", 10*time.Second, "capture length; 0 runs until interrupted")
	beep := flag.Bool("beep", false, "play the confirmation tone before capturing")
	logLevel := flag.String("log-level", "warn", "debug, info, warn, or error")
	flag.Parse()

	log.Init(*logLevel)

	cfg := audiodev.DefaultConfig()
	cfg.Backend = audiodev.Backend(*backend)
	cfg.Device = *device
	cfg.SignalURL = *signalURL

	mgr := audiodev.NewManager(cfg, log.Component("audio-probe"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := mgr.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "audio-probe: open: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	if *beep {
		if err := mgr.Beep(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "audio-probe: beep: %v\n", err)
		}
	}

	lease, err := mgr.AcquireInput(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audio-probe: acquire input: %v\n", err)
		os.Exit(1)
	}
	defer lease.Release()

	fmt.Printf("capturing from %s backend (%d Hz, %d ch); Ctrl+C to stop\n",
		cfg.Backend, cfg.SampleRate, cfg.Channels)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var frames, samples, peak int
	var sumSquares float64

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			if stats, ok := mgr.SourceStats(); ok {
				fmt.Printf("done: %d frames read, %d overruns\n", stats.FramesRead, stats.Overruns)
			}
			return
		case <-ticker.C:
			rms, db := level(sumSquares, samples)
			fmt.Printf("  %3d fps  rms %.4f  %6.1f dBFS  peak %6d\n", frames, rms, db, peak)
			frames, samples, peak, sumSquares = 0, 0, 0, 0
		case f, ok := <-lease.Frames():
			if !ok {
				fmt.Fprintln(os.Stderr, "audio-probe: capture stream ended")
				return
			}
			frames++
			samples += len(f.Samples)
			for _, s := range f.Samples {
				v := int(s)
				if v < 0 {
					v = -v
				}
				if v > peak {
					peak = v
				}
				n := float64(s) / 32768.0
				sumSquares += n * n
			}
		}
	}
}

// level reduces accumulated squares to RMS and dBFS.
func level(sumSquares float64, n int) (rms, dbfs float64) {
	if n == 0 || sumSquares == 0 {
		return 0, math.Inf(-1)
	}
	rms = math.Sqrt(sumSquares / float64(n))
	return rms, 20 * math.Log10(rms)
}
