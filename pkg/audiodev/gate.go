package audiodev

import "sync"

// frameGate serializes frame delivery against channel shutdown so a
// producer goroutine can never send on a closed stream.
type frameGate struct {
	mu     sync.Mutex
	ch     chan Frame
	closed bool
}

func newFrameGate(buf int) *frameGate {
	return &frameGate{ch: make(chan Frame, buf)}
}

// emit delivers a frame without blocking. Returns false when the gate
// is closed or the buffer is full.
func (g *frameGate) emit(f Frame) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	select {
	case g.ch <- f:
		return true
	default:
		return false
	}
}

// close shuts the stream. Safe to call more than once.
func (g *frameGate) close() {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.ch)
	}
	g.mu.Unlock()
}

// stream returns the receive side.
func (g *frameGate) stream() <-chan Frame {
	return g.ch
}
