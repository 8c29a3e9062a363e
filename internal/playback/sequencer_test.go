package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/verte-zerg/trainviz/internal/generator"
	"github.com/verte-zerg/trainviz/internal/model"
)

type fakeTicker struct {
	c        chan time.Time
	interval time.Duration

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.c
}

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time), interval: d}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) all() []*fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTicker(nil), c.tickers...)
}

func (c *fakeClock) latest(t *testing.T) *fakeTicker {
	t.Helper()
	tickers := c.all()
	if len(tickers) == 0 {
		t.Fatalf("no ticker created")
	}
	return tickers[len(tickers)-1]
}

func (c *fakeClock) active() int {
	n := 0
	for _, t := range c.all() {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

// tick delivers one tick to the newest ticker and waits for the sequencer
// to receive it.
func (c *fakeClock) tick(t *testing.T) {
	t.Helper()
	tk := c.latest(t)
	select {
	case tk.c <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("tick not received")
	}
}

func waitFor(t *testing.T, s *Sequencer, desc string, pred func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := s.Snapshot()
		if pred(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; state %+v", desc, st)
		}
		time.Sleep(time.Millisecond)
	}
}

func statusIs(status model.Status) func(State) bool {
	return func(st State) bool { return st.Status == status }
}

func curve(n int) []model.EpochRecord {
	return generator.NewWithSeed(7).Generate(model.TrainingParams{Epochs: n, LearningRate: 0.01, BatchSize: 32})
}

func staticFetcher(data []model.EpochRecord) Fetcher {
	return FetcherFunc(func(context.Context, model.TrainingParams) ([]model.EpochRecord, error) {
		return data, nil
	})
}

func newTraining(t *testing.T, epochs int) (*Sequencer, *fakeClock, []model.EpochRecord) {
	t.Helper()
	data := curve(epochs)
	clock := &fakeClock{}
	params := model.TrainingParams{Epochs: epochs, LearningRate: 0.01, BatchSize: 32}
	s := New(staticFetcher(data), WithClock(clock), WithParams(params))
	t.Cleanup(s.Close)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if st := s.Snapshot(); st.Status != model.StatusTraining {
		t.Fatalf("expected training, got %s", st.Status)
	}
	return s, clock, data
}

func TestPlaybackRevealsEveryEpochInOrder(t *testing.T) {
	s, clock, data := newTraining(t, 5)

	for i := 1; i <= len(data); i++ {
		clock.tick(t)
		want := i
		waitFor(t, s, "cursor advance", func(st State) bool { return st.Cursor == want })
	}
	st := s.Snapshot()
	if st.Status != model.StatusTraining {
		t.Fatalf("expected training before the final tick, got %s", st.Status)
	}
	for i, rec := range st.Revealed {
		if rec != data[i] {
			t.Fatalf("revealed[%d] = %+v, want %+v", i, rec, data[i])
		}
	}

	clock.tick(t)
	st = waitFor(t, s, "complete", statusIs(model.StatusComplete))
	if len(st.Revealed) != len(data) || st.Cursor != len(data) {
		t.Fatalf("expected %d revealed, got %d", len(data), len(st.Revealed))
	}
	if st.Progress() != 100 {
		t.Fatalf("expected 100%% progress, got %v", st.Progress())
	}
	if clock.active() != 0 {
		t.Fatalf("expected ticker released on completion")
	}
}

func TestBestAccuracyIsRunningMax(t *testing.T) {
	s, clock, data := newTraining(t, 8)
	best := 0.0
	for i := range data {
		clock.tick(t)
		want := i + 1
		st := waitFor(t, s, "cursor advance", func(st State) bool { return st.Cursor == want })
		if data[i].Accuracy > best {
			best = data[i].Accuracy
		}
		if st.BestAccuracy != best {
			t.Fatalf("after %d epochs best = %v, want %v", want, st.BestAccuracy, best)
		}
	}
}

func TestPauseAndResumeKeepCursor(t *testing.T) {
	s, clock, data := newTraining(t, 6)
	for i := 1; i <= 3; i++ {
		clock.tick(t)
		want := i
		waitFor(t, s, "cursor advance", func(st State) bool { return st.Cursor == want })
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	st := s.Snapshot()
	if st.Status != model.StatusPaused || st.Cursor != 3 || len(st.Revealed) != 3 {
		t.Fatalf("unexpected paused state %+v", st)
	}
	if clock.active() != 0 {
		t.Fatalf("expected no active ticker while paused")
	}
	if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition pausing twice, got %v", err)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	clock.tick(t)
	st = waitFor(t, s, "cursor 4", func(st State) bool { return st.Cursor == 4 })
	if st.Revealed[3] != data[3] {
		t.Fatalf("expected epoch %d after resume, got %+v", data[3].Epoch, st.Revealed[3])
	}
}

func TestSetSpeedKeepsCursor(t *testing.T) {
	s, clock, _ := newTraining(t, 4)
	clock.tick(t)
	clock.tick(t)
	waitFor(t, s, "cursor 2", func(st State) bool { return st.Cursor == 2 })

	if err := s.SetSpeed(50 * time.Millisecond); err != nil {
		t.Fatalf("set speed: %v", err)
	}
	st := s.Snapshot()
	if st.Cursor != 2 || st.Speed != 50*time.Millisecond {
		t.Fatalf("unexpected state after speed change %+v", st)
	}
	if clock.active() != 1 {
		t.Fatalf("expected exactly one active ticker, got %d", clock.active())
	}
	if got := clock.latest(t).interval; got != 50*time.Millisecond {
		t.Fatalf("expected new ticker at 50ms, got %v", got)
	}
	clock.tick(t)
	waitFor(t, s, "cursor 3", func(st State) bool { return st.Cursor == 3 })

	if err := s.SetSpeed(0); !errors.Is(err, ErrInvalidSpeed) {
		t.Fatalf("expected invalid speed, got %v", err)
	}
}

func TestStopFromEveryState(t *testing.T) {
	check := func(t *testing.T, s *Sequencer, clock *fakeClock) {
		t.Helper()
		for i := 0; i < 2; i++ {
			s.Stop()
			st := s.Snapshot()
			if st.Status != model.StatusIdle || st.Cursor != 0 || len(st.Revealed) != 0 || st.Err != "" {
				t.Fatalf("unexpected state after stop %+v", st)
			}
		}
		if clock.active() != 0 {
			t.Fatalf("expected no active ticker after stop")
		}
	}

	t.Run("idle", func(t *testing.T) {
		clock := &fakeClock{}
		s := New(staticFetcher(curve(3)), WithClock(clock))
		defer s.Close()
		check(t, s, clock)
	})
	t.Run("training", func(t *testing.T) {
		s, clock, _ := newTraining(t, 3)
		clock.tick(t)
		waitFor(t, s, "cursor 1", func(st State) bool { return st.Cursor == 1 })
		check(t, s, clock)
	})
	t.Run("paused", func(t *testing.T) {
		s, clock, _ := newTraining(t, 3)
		if err := s.Pause(); err != nil {
			t.Fatalf("pause: %v", err)
		}
		check(t, s, clock)
	})
	t.Run("complete", func(t *testing.T) {
		s, clock, _ := newTraining(t, 1)
		clock.tick(t)
		clock.tick(t)
		waitFor(t, s, "complete", statusIs(model.StatusComplete))
		check(t, s, clock)
	})
	t.Run("error", func(t *testing.T) {
		clock := &fakeClock{}
		s := New(FetcherFunc(func(context.Context, model.TrainingParams) ([]model.EpochRecord, error) {
			return nil, errors.New("boom")
		}), WithClock(clock))
		defer s.Close()
		_ = s.Start(context.Background())
		check(t, s, clock)
	})
}

func TestStopDiscardsInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	var sawCancel bool
	var mu sync.Mutex
	fetcher := FetcherFunc(func(ctx context.Context, _ model.TrainingParams) ([]model.EpochRecord, error) {
		<-release
		mu.Lock()
		sawCancel = ctx.Err() != nil
		mu.Unlock()
		return curve(3), nil
	})
	clock := &fakeClock{}
	s := New(fetcher, WithClock(clock))
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()
	waitFor(t, s, "loading", statusIs(model.StatusLoading))

	s.Stop()
	close(release)
	select {
	case err := <-done:
		if !errors.Is(err, ErrCanceled) {
			t.Fatalf("expected canceled start, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("start did not return")
	}

	st := s.Snapshot()
	if st.Status != model.StatusIdle || len(st.Revealed) != 0 {
		t.Fatalf("stale fetch applied: %+v", st)
	}
	if len(clock.all()) != 0 {
		t.Fatalf("stale fetch acquired a ticker")
	}
	mu.Lock()
	defer mu.Unlock()
	if !sawCancel {
		t.Fatalf("expected fetch context to be canceled by stop")
	}
}

func TestDuplicateStartWhileLoadingIsRejected(t *testing.T) {
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	fetcher := FetcherFunc(func(ctx context.Context, _ model.TrainingParams) ([]model.EpochRecord, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return curve(2), nil
	})
	s := New(fetcher, WithClock(&fakeClock{}))
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()
	waitFor(t, s, "loading", statusIs(model.StatusLoading))

	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("start: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
}

func TestFetchErrorAndRetryUsesSubmittedParams(t *testing.T) {
	var mu sync.Mutex
	var got []model.TrainingParams
	fail := true
	fetcher := FetcherFunc(func(_ context.Context, p model.TrainingParams) ([]model.EpochRecord, error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p)
		if fail {
			fail = false
			return nil, errors.New("Server error: 503")
		}
		return curve(p.Epochs), nil
	})
	submitted := model.TrainingParams{Epochs: 4, LearningRate: 0.1, BatchSize: 64}
	s := New(fetcher, WithClock(&fakeClock{}), WithParams(submitted))
	defer s.Close()

	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	st := s.Snapshot()
	if st.Status != model.StatusError || st.Err != "Server error: 503" {
		t.Fatalf("unexpected error state %+v", st)
	}
	if !st.CanStart() {
		t.Fatalf("expected error state to allow start")
	}

	s.SetParams(model.TrainingParams{Epochs: 9, LearningRate: 0.5, BatchSize: 16})
	if err := s.Retry(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[1] != submitted {
		t.Fatalf("expected retry with %+v, got %+v", submitted, got)
	}
	if st := s.Snapshot(); st.Status != model.StatusTraining || st.Err != "" {
		t.Fatalf("unexpected state after retry %+v", st)
	}
}

type emptyError struct{}

func (emptyError) Error() string { return "" }

func TestFetchErrorMessageNeverEmpty(t *testing.T) {
	s := New(FetcherFunc(func(context.Context, model.TrainingParams) ([]model.EpochRecord, error) {
		return nil, emptyError{}
	}), WithClock(&fakeClock{}))
	defer s.Close()
	_ = s.Start(context.Background())
	if st := s.Snapshot(); st.Err != "Failed to fetch training data" {
		t.Fatalf("expected fallback message, got %q", st.Err)
	}
}

func TestInvalidTransitionsLeaveStateUnchanged(t *testing.T) {
	s := New(staticFetcher(curve(2)), WithClock(&fakeClock{}))
	defer s.Close()
	before := s.Snapshot()
	if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pause from idle: %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resume from idle: %v", err)
	}
	if err := s.Retry(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("retry from idle: %v", err)
	}
	if after := s.Snapshot(); after.Status != before.Status || after.Cursor != before.Cursor {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
}

func TestCloseReleasesTicker(t *testing.T) {
	s, clock, _ := newTraining(t, 5)
	s.Close()
	if clock.active() != 0 {
		t.Fatalf("expected ticker released on close")
	}
	if _, ok := <-s.Updates(); ok {
		// drain a pending signal, then expect the channel closed
		if _, ok := <-s.Updates(); ok {
			t.Fatalf("expected updates channel closed")
		}
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestUpdatesSignalStateChanges(t *testing.T) {
	s := New(staticFetcher(curve(2)), WithClock(&fakeClock{}))
	defer s.Close()
	s.SetParams(model.TrainingParams{Epochs: 2, LearningRate: 0.01, BatchSize: 32})
	select {
	case <-s.Updates():
	case <-time.After(time.Second):
		t.Fatalf("expected update signal")
	}
}

func TestDerivedValues(t *testing.T) {
	st := State{
		Status: model.StatusTraining,
		Params: model.TrainingParams{Epochs: 10},
		Revealed: []model.EpochRecord{
			{Epoch: 1, Loss: 0.8, Accuracy: 50},
			{Epoch: 2, Loss: 0.6, Accuracy: 55.5},
		},
		Cursor: 2,
		Speed:  100 * time.Millisecond,
	}
	if st.Progress() != 20 {
		t.Fatalf("expected 20%% progress, got %v", st.Progress())
	}
	if cur, ok := st.Current(); !ok || cur.Epoch != 2 {
		t.Fatalf("unexpected current %+v", cur)
	}
	trend, ok := st.Trend()
	if !ok {
		t.Fatalf("expected trend")
	}
	if d := trend.Loss + 0.2; d > 1e-9 || d < -1e-9 {
		t.Fatalf("unexpected loss trend %v", trend.Loss)
	}
	if trend.Accuracy != 5.5 {
		t.Fatalf("unexpected accuracy trend %v", trend.Accuracy)
	}
	if rem, ok := st.Remaining(); !ok || rem != 800*time.Millisecond {
		t.Fatalf("unexpected remaining %v", rem)
	}
	if st.CanStart() || !st.IsActive() {
		t.Fatalf("training must be active and not startable")
	}

	empty := State{Status: model.StatusIdle}
	if empty.Progress() != 0 {
		t.Fatalf("expected 0 progress with no epochs")
	}
	if _, ok := empty.Current(); ok {
		t.Fatalf("expected no current record")
	}
	if _, ok := empty.Trend(); ok {
		t.Fatalf("expected no trend")
	}
	if _, ok := empty.Remaining(); ok {
		t.Fatalf("expected no remaining outside training")
	}
}
