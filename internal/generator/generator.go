// Package generator synthesizes training curves.
package generator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/verte-zerg/trainviz/internal/model"
)

const (
	minLoss     = 0.005
	lossStart   = 0.92
	lossNoise   = 0.03
	accBase     = 48.0
	accGain     = 49.0
	accRate     = 1.2
	accNoise    = 1.5
	minAccuracy = 30.0
	maxAccuracy = 99.5
)

// Generator produces noisy loss/accuracy curves. Safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	noise float64
}

// Option configures a Generator.
type Option func(*Generator)

// WithNoise scales both noise amplitudes. Zero disables noise.
func WithNoise(scale float64) Option {
	return func(g *Generator) {
		if scale < 0 {
			scale = 0
		}
		g.noise = scale
	}
}

// New returns a Generator seeded with the current time.
func New(opts ...Option) *Generator {
	return NewWithSeed(time.Now().UnixNano(), opts...)
}

// NewWithSeed returns a Generator with a reproducible random source.
func NewWithSeed(seed int64, opts ...Option) *Generator {
	g := &Generator{rnd: rand.New(rand.NewSource(seed)), noise: 1}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns exactly p.Epochs records numbered 1..p.Epochs.
// Params are expected to be validated by the caller.
func (g *Generator) Generate(p model.TrainingParams) []model.EpochRecord {
	if p.Epochs <= 0 {
		return nil
	}
	rate := ConvergenceRate(p.LearningRate)
	penalty := BatchPenalty(p.BatchSize)

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]model.EpochRecord, 0, p.Epochs)
	for i := 0; i < p.Epochs; i++ {
		progress := float64(i+1) / float64(p.Epochs)
		t := progress * rate * penalty

		loss := lossStart*math.Exp(-t) + g.uniform(lossNoise)*math.Exp(-t/2)
		loss = math.Max(minLoss, loss)

		acc := accBase + accGain*(1-math.Exp(-accRate*t)) + g.uniform(accNoise)*math.Exp(-progress)
		acc = math.Min(maxAccuracy, math.Max(minAccuracy, acc))

		out = append(out, model.EpochRecord{
			Epoch:    i + 1,
			Loss:     round(loss, 4),
			Accuracy: round(acc, 2),
		})
	}
	return out
}

// uniform draws from [-amp, amp) scaled by the noise factor.
func (g *Generator) uniform(amp float64) float64 {
	if g.noise == 0 {
		return 0
	}
	return (g.rnd.Float64()*2 - 1) * amp * g.noise
}

// LRScale maps learning rates in [0.001, 1] onto roughly [0, 1]. Values
// below 0.001 extrapolate below 0.
func LRScale(lr float64) float64 {
	return math.Log10(lr*1000+1) / math.Log10(1001)
}

// ConvergenceRate grows from 2.5 to 5.5 with the learning rate.
func ConvergenceRate(lr float64) float64 {
	return 2.5 + LRScale(lr)*3
}

// BatchPenalty slows convergence linearly for larger batches.
func BatchPenalty(batchSize int) float64 {
	return 1 - float64(batchSize-16)/1200
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
