// Package playback replays a pre-generated training curve on a timer.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/verte-zerg/trainviz/internal/model"
)

// DefaultSpeed is the interval between revealed epochs.
const DefaultSpeed = 200 * time.Millisecond

const fetchFailedMsg = "Failed to fetch training data"

var (
	// ErrInvalidTransition is returned when an action is not allowed in the
	// current state. The state is left unchanged.
	ErrInvalidTransition = errors.New("invalid playback transition")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sequencer closed")
	// ErrCanceled is returned by Start and Retry when the run was stopped
	// before its data arrived.
	ErrCanceled = errors.New("playback canceled")
	// ErrInvalidSpeed rejects non-positive tick intervals.
	ErrInvalidSpeed = errors.New("speed must be positive")
)

// Fetcher loads the full curve for a run.
type Fetcher interface {
	FetchTrainingData(ctx context.Context, params model.TrainingParams) ([]model.EpochRecord, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, params model.TrainingParams) ([]model.EpochRecord, error)

// FetchTrainingData calls f.
func (f FetcherFunc) FetchTrainingData(ctx context.Context, params model.TrainingParams) ([]model.EpochRecord, error) {
	return f(ctx, params)
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Sequencer) {
		s.clock = c
	}
}

// WithSpeed sets the initial tick interval. Non-positive values are ignored.
func WithSpeed(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.speed = d
		}
	}
}

// WithParams sets the initial form parameters.
func WithParams(p model.TrainingParams) Option {
	return func(s *Sequencer) {
		s.params = p
	}
}

// Sequencer owns one playback session. All methods are safe for concurrent
// use; state changes are serialized.
type Sequencer struct {
	fetcher Fetcher
	clock   Clock

	mu        sync.Mutex
	status    model.Status
	params    model.TrainingParams
	submitted model.TrainingParams
	sequence  []model.EpochRecord
	cursor    int
	best      float64
	speed     time.Duration
	err       string
	closed    bool

	// gen is bumped on every Start, Retry, Stop and Close. A fetch result
	// is applied only if the generation it started under is still current.
	gen         uint64
	cancelFetch context.CancelFunc

	ticker     Ticker
	tickerID   uint64
	tickerDone chan struct{}

	updates chan struct{}
}

// New returns an idle sequencer.
func New(f Fetcher, opts ...Option) *Sequencer {
	s := &Sequencer{
		fetcher: f,
		clock:   realClock{},
		status:  model.StatusIdle,
		params:  model.DefaultParams(),
		speed:   DefaultSpeed,
		updates: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Updates signals after every state change. Signals coalesce; read
// Snapshot for the current state. The channel is closed by Close.
func (s *Sequencer) Updates() <-chan struct{} {
	return s.updates
}

// Snapshot returns a copy of the current state.
func (s *Sequencer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Status:       s.status,
		Params:       s.params,
		Cursor:       s.cursor,
		Speed:        s.speed,
		Err:          s.err,
		BestAccuracy: s.best,
	}
	if s.status != model.StatusIdle {
		st.Params = s.submitted
	}
	// The sequence is never written after fetch, so the revealed prefix
	// can be shared. The capped slice keeps appends by the caller off it.
	st.Revealed = s.sequence[:s.cursor:s.cursor]
	return st
}

// Params returns the form parameters used by the next Start.
func (s *Sequencer) Params() model.TrainingParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetParams replaces the form parameters. A run in progress is unaffected.
func (s *Sequencer) SetParams(p model.TrainingParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.params = p
	s.notifyLocked()
}

// Start fetches a curve for the form parameters and begins playback. It
// blocks until the fetch resolves. A fetch failure moves to the error state
// and is also returned.
func (s *Sequencer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !canStart(s.status) {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	return s.run(ctx, s.params)
}

// Retry repeats the last submitted run after an error.
func (s *Sequencer) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.status != model.StatusError {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	return s.run(ctx, s.submitted)
}

// run is entered with s.mu held and returns with it released.
func (s *Sequencer) run(ctx context.Context, params model.TrainingParams) error {
	s.gen++
	gen := s.gen
	s.releaseTickerLocked()
	s.status = model.StatusLoading
	s.submitted = params
	s.sequence = nil
	s.cursor = 0
	s.best = 0
	s.err = ""
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancelFetch = cancel
	s.notifyLocked()
	s.mu.Unlock()

	data, err := s.fetcher.FetchTrainingData(fetchCtx, params)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return ErrCanceled
	}
	s.cancelFetch = nil
	if err != nil {
		s.status = model.StatusError
		s.err = err.Error()
		if s.err == "" {
			s.err = fetchFailedMsg
		}
		s.notifyLocked()
		return err
	}
	s.sequence = data
	s.status = model.StatusTraining
	s.acquireTickerLocked()
	s.notifyLocked()
	return nil
}

// Pause halts playback, keeping the revealed epochs.
func (s *Sequencer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.status != model.StatusTraining {
		return ErrInvalidTransition
	}
	s.releaseTickerLocked()
	s.status = model.StatusPaused
	s.notifyLocked()
	return nil
}

// Resume continues a paused run at the current speed.
func (s *Sequencer) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.status != model.StatusPaused {
		return ErrInvalidTransition
	}
	s.status = model.StatusTraining
	s.acquireTickerLocked()
	s.notifyLocked()
	return nil
}

// Stop returns to idle from any state and cancels an in-flight fetch.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.gen++
	s.cancelFetchLocked()
	s.releaseTickerLocked()
	s.status = model.StatusIdle
	s.sequence = nil
	s.cursor = 0
	s.best = 0
	s.err = ""
	s.notifyLocked()
}

// SetSpeed changes the tick interval. While training, the ticker is
// replaced and the cursor is kept.
func (s *Sequencer) SetSpeed(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidSpeed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.speed = d
	if s.status == model.StatusTraining && s.ticker != nil {
		s.releaseTickerLocked()
		s.acquireTickerLocked()
	}
	s.notifyLocked()
	return nil
}

// Close releases the ticker and cancels any fetch. Later calls fail with
// ErrClosed or do nothing.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	s.cancelFetchLocked()
	s.releaseTickerLocked()
	close(s.updates)
}

func (s *Sequencer) tick(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || id != s.tickerID || s.ticker == nil || s.status != model.StatusTraining {
		return
	}
	if s.cursor >= len(s.sequence) {
		s.releaseTickerLocked()
		s.status = model.StatusComplete
		s.notifyLocked()
		return
	}
	if acc := s.sequence[s.cursor].Accuracy; s.cursor == 0 || acc > s.best {
		s.best = acc
	}
	s.cursor++
	s.notifyLocked()
}

func (s *Sequencer) acquireTickerLocked() {
	s.releaseTickerLocked()
	s.tickerID++
	id := s.tickerID
	t := s.clock.NewTicker(s.speed)
	done := make(chan struct{})
	s.ticker = t
	s.tickerDone = done
	go func() {
		for {
			select {
			case <-done:
				return
			case <-t.C():
				s.tick(id)
			}
		}
	}()
}

func (s *Sequencer) releaseTickerLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.tickerDone)
	s.ticker = nil
	s.tickerDone = nil
}

func (s *Sequencer) cancelFetchLocked() {
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
}

func (s *Sequencer) notifyLocked() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
