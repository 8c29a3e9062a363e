package playback

import (
	"time"

	"github.com/verte-zerg/trainviz/internal/model"
)

// State is a point-in-time copy of a sequencer.
type State struct {
	Status model.Status
	// Params are the parameters of the current run, or the pending form
	// values when no run has been submitted.
	Params   model.TrainingParams
	Revealed []model.EpochRecord
	Cursor   int
	Speed    time.Duration
	// Err is set only in the error state.
	Err          string
	BestAccuracy float64
}

// Trend is the change between the last two revealed epochs.
type Trend struct {
	Loss     float64
	Accuracy float64
}

// Epochs returns the total epoch count used for progress.
func (s State) Epochs() int {
	return s.Params.Epochs
}

// Progress returns the revealed share of the run in percent.
func (s State) Progress() float64 {
	total := s.Epochs()
	if total <= 0 {
		return 0
	}
	return float64(s.Cursor) / float64(total) * 100
}

// Current returns the most recently revealed epoch.
func (s State) Current() (model.EpochRecord, bool) {
	if len(s.Revealed) == 0 {
		return model.EpochRecord{}, false
	}
	return s.Revealed[len(s.Revealed)-1], true
}

// CurrentEpoch returns the epoch number last revealed, 0 before the first.
func (s State) CurrentEpoch() int {
	rec, ok := s.Current()
	if !ok {
		return 0
	}
	return rec.Epoch
}

// Trend reports the delta between the last two revealed epochs.
func (s State) Trend() (Trend, bool) {
	n := len(s.Revealed)
	if n < 2 {
		return Trend{}, false
	}
	last, prev := s.Revealed[n-1], s.Revealed[n-2]
	return Trend{
		Loss:     last.Loss - prev.Loss,
		Accuracy: last.Accuracy - prev.Accuracy,
	}, true
}

// Remaining estimates the playback time left. It is only defined while
// training.
func (s State) Remaining() (time.Duration, bool) {
	if s.Status != model.StatusTraining {
		return 0, false
	}
	left := s.Epochs() - s.Cursor
	if left < 0 {
		left = 0
	}
	return time.Duration(left) * s.Speed, true
}

// CanStart reports whether a new run may begin.
func (s State) CanStart() bool {
	return canStart(s.Status)
}

// IsActive reports whether a run is loading, playing or paused.
func (s State) IsActive() bool {
	switch s.Status {
	case model.StatusLoading, model.StatusTraining, model.StatusPaused:
		return true
	}
	return false
}

func canStart(st model.Status) bool {
	switch st {
	case model.StatusIdle, model.StatusComplete, model.StatusError:
		return true
	}
	return false
}
