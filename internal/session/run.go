package session

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/vovakirdan/runstake/internal/sim"
)

// DefaultGrace is how long a detached run waits for a reconnect before
// it is forfeited.
const DefaultGrace = 10 * time.Second

// RunOptions configures a Run.
type RunOptions struct {
	Clock       quartz.Clock
	Logger      *log.Logger
	Grace       time.Duration
	InputBuffer int
}

type controlKind int

const (
	controlAttach controlKind = iota
	controlDetach
	controlGrace
	controlForfeit
)

type control struct {
	kind   controlKind
	handle Handle
	gen    uint64
	ack    chan struct{}
}

// Run drives one engine from a ticker at the config tick rate.
// All engine access happens on the goroutine executing Run.
type Run struct {
	id     string
	engine *sim.Engine
	clock  quartz.Clock
	logger *log.Logger
	grace  time.Duration

	tickInterval time.Duration
	ticker       *quartz.Ticker
	graceTimer   *quartz.Timer
	detachGen    uint64

	hmu    sync.RWMutex
	handle Handle

	inputs  chan sim.InputKind
	control chan control

	done     chan struct{}
	doneOnce sync.Once
}

// NewRun creates a run attached to h. The ticker starts immediately;
// call Run to begin processing.
func NewRun(id string, engine *sim.Engine, h Handle, opts RunOptions) *Run {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.InputBuffer < 1 {
		opts.InputBuffer = 64
	}

	interval := time.Second / time.Duration(engine.Config().TickRate)
	r := &Run{
		id:           id,
		engine:       engine,
		clock:        opts.Clock,
		logger:       opts.Logger.WithPrefix("run").With("run", id),
		grace:        opts.Grace,
		tickInterval: interval,
		ticker:       opts.Clock.NewTicker(interval),
		handle:       h,
		inputs:       make(chan sim.InputKind, opts.InputBuffer),
		control:      make(chan control),
		done:         make(chan struct{}),
	}
	if h != nil {
		go r.watch(h)
	}
	return r
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// TickInterval is the wall-clock duration of one tick.
func (r *Run) TickInterval() time.Duration {
	return r.tickInterval
}

// Handle returns the attached handle, or nil while detached.
func (r *Run) Handle() Handle {
	r.hmu.RLock()
	defer r.hmu.RUnlock()
	return r.handle
}

func (r *Run) setHandle(h Handle) {
	r.hmu.Lock()
	r.handle = h
	r.hmu.Unlock()
}

// Done closes when the run has left its loop.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// SendInput queues an input for the next tick.
// Non-blocking; input is dropped if the queue is full.
func (r *Run) SendInput(kind sim.InputKind) {
	select {
	case r.inputs <- kind:
	default:
		r.logger.Warn("input queue full, dropping input", "kind", kind)
	}
}

// Attach connects a handle, cancelling any pending grace forfeit.
func (r *Run) Attach(h Handle) {
	r.do(control{kind: controlAttach, handle: h})
}

// Detach disconnects h if it is the attached handle and starts the
// grace timer.
func (r *Run) Detach(h Handle) {
	r.do(control{kind: controlDetach, handle: h})
}

// Forfeit ends the run with reason forfeit and settles it. It returns
// once the loop has taken the request.
func (r *Run) Forfeit() {
	r.do(control{kind: controlForfeit})
}

// Stop ends the loop without settling the run.
func (r *Run) Stop() {
	r.doneOnce.Do(func() {
		close(r.done)
	})
}

// do sends a control message and waits until the loop has handled it.
func (r *Run) do(c control) {
	c.ack = make(chan struct{})
	select {
	case r.control <- c:
	case <-r.done:
		return
	}
	select {
	case <-c.ack:
	case <-r.done:
	}
}

func (r *Run) post(c control) {
	select {
	case r.control <- c:
	case <-r.done:
	}
}

func (r *Run) watch(h Handle) {
	select {
	case <-h.Done():
		r.Detach(h)
	case <-r.done:
	}
}

// Run is the authoritative loop. It returns when the run ends or Stop
// is called; onComplete is only invoked for the former.
func (r *Run) Run(onComplete func(Outcome)) {
	defer r.Stop()
	defer r.ticker.Stop()

	r.logger.Info("run started", "tick", r.engine.Tick())

	for {
		select {
		case <-r.ticker.C:
			if r.Handle() == nil {
				continue
			}
			if r.step() {
				r.finish(onComplete)
				return
			}

		case c := <-r.control:
			ended := r.handleControl(c)
			if c.ack != nil {
				close(c.ack)
			}
			if ended {
				r.finish(onComplete)
				return
			}

		case <-r.done:
			r.logger.Info("run stopped", "tick", r.engine.Tick())
			return
		}
	}
}

// step applies queued inputs at the current tick and advances once.
// Reports whether the run is over.
func (r *Run) step() bool {
	h := r.Handle()

	for drained := false; !drained && !r.engine.Over(); {
		select {
		case kind := <-r.inputs:
			in := sim.Input{Tick: r.engine.Tick(), Kind: kind}
			if err := r.engine.Apply(in); err != nil {
				h.Send(RejectedEvent{RunID: r.id, Kind: kind, Message: err.Error()})
			}
		default:
			drained = true
		}
	}
	if r.engine.Over() {
		return true
	}

	view := r.engine.Advance()
	h.Send(StateEvent{RunID: r.id, View: view})
	return view.Over
}

func (r *Run) handleControl(c control) bool {
	switch c.kind {
	case controlAttach:
		if r.graceTimer != nil {
			r.graceTimer.Stop()
			r.graceTimer = nil
		}
		if r.Handle() == nil {
			r.ticker.Reset(r.tickInterval)
		}
		r.setHandle(c.handle)
		go r.watch(c.handle)
		c.handle.Send(StateEvent{RunID: r.id, View: r.engine.StateView()})
		r.logger.Info("session attached", "session", c.handle.ID())

	case controlDetach:
		if h := r.Handle(); h == nil || h != c.handle {
			return false
		}
		r.ticker.Stop()
		r.detachGen++
		gen := r.detachGen
		r.graceTimer = r.clock.AfterFunc(r.grace, func() {
			r.post(control{kind: controlGrace, gen: gen})
		})
		r.setHandle(nil)
		r.logger.Warn("session detached, waiting for reconnect", "grace", r.grace)

	case controlGrace:
		if r.Handle() != nil || c.gen != r.detachGen {
			return false
		}
		r.logger.Warn("grace period expired, forfeiting", "tick", r.engine.Tick())
		r.engine.Forfeit()
		return true

	case controlForfeit:
		r.engine.Forfeit()
		return true
	}
	return false
}

func (r *Run) finish(onComplete func(Outcome)) {
	out := Outcome{
		RunID:        r.id,
		Ledger:       r.engine.Ledger().String(),
		Reason:       r.engine.Reason(),
		Ticks:        r.engine.Tick(),
		Inputs:       r.engine.Inputs(),
		EventsDigest: sim.EventsDigest(r.engine.Events()),
	}
	if out.Reason == sim.ReasonPause {
		snap, err := r.engine.Snapshot()
		if err != nil {
			r.logger.Error("cannot snapshot paused run", "error", err)
		}
		out.Snapshot = snap
	}

	r.logger.Info("run ended", "reason", out.Reason, "ledger", out.Ledger, "tick", out.Ticks)
	if h := r.Handle(); h != nil {
		h.Send(EndedEvent{RunID: r.id, Outcome: out})
	}
	if onComplete != nil {
		onComplete(out)
	}
}
