// Package model defines shared data structures.
package model

import (
	"fmt"
	"time"
)

// Parameter bounds and defaults for a simulated run.
const (
	MinEpochs = 1
	MaxEpochs = 200

	DefaultEpochs       = 50
	DefaultLearningRate = 0.01
	DefaultBatchSize    = 32
)

// BatchSizes lists the accepted batch sizes in ascending order.
var BatchSizes = []int{16, 32, 64, 128, 256}

// Validation messages returned to API callers.
const (
	ErrMsgEpochs       = "Epochs must be between 1 and 200"
	ErrMsgLearningRate = "Learning rate must be between 0 and 1"
	ErrMsgBatchSize    = "Batch size must be one of: 16, 32, 64, 128, 256"
)

// TrainingParams configures one simulated training run.
type TrainingParams struct {
	Epochs       int     `json:"epochs" yaml:"epochs"`
	LearningRate float64 `json:"learningRate" yaml:"learningRate"`
	BatchSize    int     `json:"batchSize" yaml:"batchSize"`
}

// DefaultParams returns the parameters used when a request omits them.
func DefaultParams() TrainingParams {
	return TrainingParams{
		Epochs:       DefaultEpochs,
		LearningRate: DefaultLearningRate,
		BatchSize:    DefaultBatchSize,
	}
}

// ValidationError reports a rejected parameter. Message is user-facing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate checks epochs, learning rate and batch size in that order and
// returns the first failure.
func (p TrainingParams) Validate() error {
	if p.Epochs < MinEpochs || p.Epochs > MaxEpochs {
		return &ValidationError{Field: "epochs", Message: ErrMsgEpochs}
	}
	// NaN fails both comparisons, so test for the accepted range instead.
	if !(p.LearningRate > 0 && p.LearningRate <= 1) {
		return &ValidationError{Field: "learningRate", Message: ErrMsgLearningRate}
	}
	if !IsBatchSize(p.BatchSize) {
		return &ValidationError{Field: "batchSize", Message: ErrMsgBatchSize}
	}
	return nil
}

// String formats params for headers and logs.
func (p TrainingParams) String() string {
	return fmt.Sprintf("epochs=%d lr=%g batch=%d", p.Epochs, p.LearningRate, p.BatchSize)
}

// IsBatchSize reports whether n is an accepted batch size.
func IsBatchSize(n int) bool {
	for _, b := range BatchSizes {
		if b == n {
			return true
		}
	}
	return false
}

// EpochRecord is one point of a generated curve.
type EpochRecord struct {
	Epoch    int     `json:"epoch" yaml:"epoch"`
	Loss     float64 `json:"loss" yaml:"loss"`
	Accuracy float64 `json:"accuracy" yaml:"accuracy"`
}

// Status is a playback state.
type Status string

// Playback states.
const (
	StatusIdle     Status = "idle"
	StatusLoading  Status = "loading"
	StatusTraining Status = "training"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// RequestEntry is one journaled training request.
type RequestEntry struct {
	RequestID    string
	ReceivedAt   time.Time
	Epochs       int
	LearningRate float64
	BatchSize    int
	Status       int
	Error        string
	DurationMs   int64
}

// RequestFilter selects journal entries.
type RequestFilter struct {
	Since  *time.Time
	Last   int
	Status int
}
