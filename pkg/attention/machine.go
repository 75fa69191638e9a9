package attention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// request is one transition request waiting in the machine's inbox.
// Timer requests carry the generation they were scheduled under so a
// timeout that lost the cancellation race is discarded instead of
// firing against a newer state.
type request struct {
	event   Event
	persona string
	gen     uint64
	reply   chan State
}

// Machine is the attention state machine. It is a single-writer
// actor: every transition request, whether from the audio path, the
// perception path, or an internal timer, is funneled through one
// inbox and handled in arrival order by the Run goroutine. State-change
// callbacks fire on that goroutine before the originating call
// returns, so consumers observe transitions without polling.
//
// Callbacks must not call back into the machine and must not block;
// they run inside the transition that triggered them.
type Machine struct {
	cfg    Config
	logger *slog.Logger

	inbox   chan request
	stopped chan struct{}

	// Actor-owned; only the Run goroutine touches these.
	state    State
	persona  string
	timer    *time.Timer
	timerGen uint64

	// Published snapshots for lock-free readers (the motion loop
	// reads these every tick).
	current        atomic.Int32
	currentPersona atomic.Value

	cbMu     sync.Mutex
	onChange []func(Change)
}

// NewMachine creates a machine in the Passive state. Nothing moves
// until Run is started.
func NewMachine(cfg Config, logger *slog.Logger) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		cfg:     cfg,
		logger:  logger,
		inbox:   make(chan request),
		stopped: make(chan struct{}),
		state:   Passive,
	}
	m.current.Store(int32(Passive))
	m.currentPersona.Store("")
	return m, nil
}

// OnChange registers a callback invoked synchronously on every state
// transition. Register before Run; later registrations apply from the
// next transition.
func (m *Machine) OnChange(fn func(Change)) {
	m.cbMu.Lock()
	m.onChange = append(m.onChange, fn)
	m.cbMu.Unlock()
}

// State returns the latest published attention state without blocking.
func (m *Machine) State() State {
	return State(m.current.Load())
}

// ActivePersona returns the persona that engaged the robot, or "" when
// none is active.
func (m *Machine) ActivePersona() string {
	return m.currentPersona.Load().(string)
}

// MotionDetected reports ambient motion from the perception path.
func (m *Machine) MotionDetected() State {
	return m.signal(request{event: EventMotion})
}

// FaceDetected reports a face from the perception path.
func (m *Machine) FaceDetected() State {
	return m.signal(request{event: EventFace})
}

// WakeDetected reports a wake-word hit. The persona becomes the active
// interaction context.
func (m *Machine) WakeDetected(persona string) State {
	return m.signal(request{event: EventWake, persona: persona})
}

// UserSpeaking reports live user speech. While Engaged it pushes the
// silence timeout out without emitting a state change.
func (m *Machine) UserSpeaking() State {
	return m.signal(request{event: EventUserSpeaking})
}

// signal queues a request and waits for the actor to process it,
// returning the state after handling. Once the machine has stopped it
// returns the last published state.
func (m *Machine) signal(req request) State {
	req.reply = make(chan State, 1)
	select {
	case m.inbox <- req:
	case <-m.stopped:
		return m.State()
	}
	select {
	case s := <-req.reply:
		return s
	case <-m.stopped:
		return m.State()
	}
}

// submit queues a request without waiting. Timer callbacks use this.
func (m *Machine) submit(req request) {
	select {
	case m.inbox <- req:
	case <-m.stopped:
	}
}

// Run processes transition requests until the context ends. It returns
// nil on a clean shutdown.
func (m *Machine) Run(ctx context.Context) error {
	defer close(m.stopped)
	defer m.cancelTimer()

	m.logger.Info("attention machine running",
		"alert_timeout", m.cfg.AlertTimeout,
		"engaged_timeout", m.cfg.EngagedTimeout,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-m.inbox:
			m.handle(req)
			if req.reply != nil {
				req.reply <- m.state
			}
		}
	}
}

// handle applies one request against the transition table. Runs on the
// actor goroutine only.
func (m *Machine) handle(req request) {
	from := m.state

	switch req.event {
	case EventMotion:
		if from == Passive {
			m.transition(from, Alert, req)
		}

	case EventWake:
		switch from {
		case Passive, Alert:
			m.transition(from, Engaged, req)
		case Engaged:
			// Already engaged: adopt the persona and extend the
			// silence window.
			if req.persona != "" {
				m.setPersona(req.persona)
			}
			m.rescheduleTimeout(m.cfg.EngagedTimeout, EventEngagedTimeout)
		}

	case EventFace:
		if from == Alert {
			m.transition(from, Engaged, req)
		}

	case EventUserSpeaking:
		if from == Engaged {
			m.rescheduleTimeout(m.cfg.EngagedTimeout, EventEngagedTimeout)
		}

	case EventAlertTimeout:
		if req.gen == m.timerGen && from == Alert {
			m.transition(from, Passive, req)
		}

	case EventEngagedTimeout:
		if req.gen == m.timerGen && from == Engaged {
			m.transition(from, Alert, req)
		}
	}
}

// transition commits a state change: cancel the old state's timer,
// arm the new one, publish snapshots, then fire callbacks.
func (m *Machine) transition(from, to State, req request) {
	m.cancelTimer()
	m.state = to
	m.current.Store(int32(to))

	switch to {
	case Alert:
		m.scheduleTimeout(m.cfg.AlertTimeout, EventAlertTimeout)
	case Engaged:
		m.scheduleTimeout(m.cfg.EngagedTimeout, EventEngagedTimeout)
	case Passive:
		m.setPersona("")
	}
	if req.event == EventWake && req.persona != "" {
		m.setPersona(req.persona)
	}

	change := Change{
		From:    from,
		To:      to,
		Event:   req.event,
		Persona: m.persona,
		At:      time.Now(),
	}
	m.logger.Info("attention changed",
		"from", from.String(),
		"to", to.String(),
		"event", string(req.event),
		"persona", m.persona,
	)

	m.cbMu.Lock()
	callbacks := make([]func(Change), len(m.onChange))
	copy(callbacks, m.onChange)
	m.cbMu.Unlock()
	for _, fn := range callbacks {
		fn(change)
	}
}

func (m *Machine) setPersona(p string) {
	m.persona = p
	m.currentPersona.Store(p)
}

// scheduleTimeout arms the single pending timer for the current state.
func (m *Machine) scheduleTimeout(d time.Duration, ev Event) {
	m.timerGen++
	gen := m.timerGen
	m.timer = time.AfterFunc(d, func() {
		m.submit(request{event: ev, gen: gen})
	})
}

// rescheduleTimeout resets the pending timer without a state change.
func (m *Machine) rescheduleTimeout(d time.Duration, ev Event) {
	m.cancelTimer()
	m.scheduleTimeout(d, ev)
}

// cancelTimer stops the pending timer and invalidates any timeout of
// its generation that already fired and is waiting in the inbox.
func (m *Machine) cancelTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}
