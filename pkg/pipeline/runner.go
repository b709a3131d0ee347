package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/accentid/pkg/accent"
	"github.com/haivivi/accentid/pkg/extract"
	"github.com/haivivi/accentid/pkg/jsontime"
	"github.com/haivivi/accentid/pkg/media"
)

// DefaultTimeout bounds one request once it starts running.
const DefaultTimeout = 5 * time.Minute

// State is a request stage.
type State string

const (
	StateIdle        State = "idle"
	StateAcquiring   State = "acquiring"
	StateExtracting  State = "extracting"
	StateClassifying State = "classifying"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Label is the stage name shown while it runs.
func (s State) Label() string {
	switch s {
	case StateAcquiring:
		return "Acquiring media"
	case StateExtracting:
		return "Extracting audio"
	case StateClassifying:
		return "Classifying accent"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	}
	return "Idle"
}

// Event reports a state change.
type Event struct {
	RequestID string         `json:"request_id"`
	State     State          `json:"state"`
	Label     string         `json:"label"`
	Kind      Kind           `json:"kind,omitempty"`
	Message   string         `json:"message,omitempty"`
	Result    *accent.Result `json:"result,omitempty"`

	// At is sent as Unix milliseconds.
	At jsontime.Milli `json:"at"`
}

// Acquirer produces the request's media file.
type Acquirer interface {
	Acquire(ctx context.Context, in media.Input) (*media.File, error)
}

// Classifier classifies a waveform at its sample rate.
type Classifier interface {
	SampleRate() int
	Classify(ctx context.Context, w *extract.Waveform) (*accent.Result, error)
}

// Runner executes requests one at a time.
type Runner struct {
	acquirer   Acquirer
	extractor  extract.Extractor
	classifier Classifier
	timeout    time.Duration
	logger     *slog.Logger

	sem chan struct{}

	mu      sync.RWMutex
	state   State
	current string

	subMu sync.RWMutex
	subs  map[chan Event]struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner wires the three stages.
func NewRunner(a Acquirer, e extract.Extractor, c Classifier, opts ...Option) *Runner {
	r := &Runner{
		acquirer:   a,
		extractor:  e,
		classifier: c,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
		sem:        make(chan struct{}, 1),
		state:      StateIdle,
		subs:       make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state and the id of the running request.
func (r *Runner) State() (State, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, r.current
}

// Subscribe returns a channel of events and a function to stop receiving
// them. Slow subscribers miss events instead of blocking the runner.
func (r *Runner) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	r.subMu.Lock()
	r.subs[ch] = struct{}{}
	r.subMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, ch)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

func (r *Runner) publish(ev Event) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (r *Runner) set(id string, s State, ev Event) {
	r.mu.Lock()
	r.state = s
	r.current = id
	if s == StateIdle {
		r.current = ""
	}
	r.mu.Unlock()

	ev.RequestID, ev.State, ev.Label, ev.At = id, s, s.Label(), jsontime.Now()
	r.publish(ev)
}

// Run processes in. An empty id gets a fresh one. Failures are returned
// as *Error.
func (r *Runner) Run(ctx context.Context, id string, in media.Input) (res *accent.Result, err error) {
	if id == "" {
		id = uuid.NewString()
	}
	log := r.logger.With("request_id", id)

	if err := in.Validate(); err != nil {
		return nil, &Error{RequestID: id, Kind: KindInvalidInput, Err: err}
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, &Error{RequestID: id, Kind: KindOf(ctx.Err()), Err: fmt.Errorf("waiting for a previous request: %w", ctx.Err())}
	}
	defer func() { <-r.sem }()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		p := recover()
		if p != nil {
			log.Error("pipeline: panic", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
		if err != nil {
			kind := KindOf(err)
			if p == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				kind = KindTimeout
			}
			pe := &Error{RequestID: id, Kind: kind, Err: err}
			log.Warn("pipeline: request failed", "kind", kind, "error", err, "took", time.Since(start).Round(time.Millisecond))
			r.set(id, StateFailed, Event{Kind: kind, Message: kind.Message()})
			res, err = nil, pe
		} else {
			log.Info("pipeline: request done", "label", res.Label, "confidence", res.Confidence, "took", time.Since(start).Round(time.Millisecond))
			r.set(id, StateDone, Event{Result: res, Message: res.Summary()})
		}
		r.set(id, StateIdle, Event{})
	}()

	log.Info("pipeline: request started", "input", in.String())
	r.set(id, StateAcquiring, Event{})
	file, err := r.acquirer.Acquire(ctx, in)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := file.Remove(); rerr != nil {
			log.Warn("pipeline: remove media file", "path", file.Path, "error", rerr)
		}
	}()

	r.set(id, StateExtracting, Event{})
	w, err := r.extractor.Extract(ctx, file.Path, r.classifier.SampleRate())
	if err != nil {
		return nil, err
	}

	r.set(id, StateClassifying, Event{})
	return r.classifier.Classify(ctx, w)
}
