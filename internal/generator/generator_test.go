package generator

import (
	"math"
	"testing"

	"github.com/verte-zerg/trainviz/internal/model"
)

func TestGenerateLengthAndEpochs(t *testing.T) {
	g := NewWithSeed(1)
	for _, epochs := range []int{1, 2, 5, 50, 200} {
		p := model.TrainingParams{Epochs: epochs, LearningRate: 0.01, BatchSize: 32}
		records := g.Generate(p)
		if len(records) != epochs {
			t.Fatalf("epochs=%d: expected %d records, got %d", epochs, epochs, len(records))
		}
		for i, r := range records {
			if r.Epoch != i+1 {
				t.Fatalf("epochs=%d: record %d has epoch %d", epochs, i, r.Epoch)
			}
		}
	}
}

func TestGenerateBoundsAndRounding(t *testing.T) {
	g := NewWithSeed(42)
	params := []model.TrainingParams{
		{Epochs: 200, LearningRate: 1, BatchSize: 16},
		{Epochs: 200, LearningRate: 0.0001, BatchSize: 256},
		{Epochs: 3, LearningRate: 0.5, BatchSize: 64},
	}
	for _, p := range params {
		for run := 0; run < 20; run++ {
			for _, r := range g.Generate(p) {
				if r.Loss < 0.005 {
					t.Fatalf("%s: loss %v below floor", p, r.Loss)
				}
				if r.Accuracy < 30 || r.Accuracy > 99.5 {
					t.Fatalf("%s: accuracy %v out of range", p, r.Accuracy)
				}
				if !hasPlaces(r.Loss, 4) {
					t.Fatalf("%s: loss %v not rounded to 4 places", p, r.Loss)
				}
				if !hasPlaces(r.Accuracy, 2) {
					t.Fatalf("%s: accuracy %v not rounded to 2 places", p, r.Accuracy)
				}
			}
		}
	}
}

func TestGenerateNoiselessIsMonotonic(t *testing.T) {
	g := New(WithNoise(0))
	p := model.TrainingParams{Epochs: 100, LearningRate: 0.05, BatchSize: 64}
	records := g.Generate(p)
	for i := 1; i < len(records); i++ {
		if records[i].Loss > records[i-1].Loss {
			t.Fatalf("loss increased at epoch %d: %v -> %v", records[i].Epoch, records[i-1].Loss, records[i].Loss)
		}
		if records[i].Accuracy < records[i-1].Accuracy {
			t.Fatalf("accuracy decreased at epoch %d: %v -> %v", records[i].Epoch, records[i-1].Accuracy, records[i].Accuracy)
		}
	}
}

func TestGenerateHigherLearningRateConvergesFaster(t *testing.T) {
	g := New(WithNoise(0))
	slow := g.Generate(model.TrainingParams{Epochs: 50, LearningRate: 0.001, BatchSize: 32})
	fast := g.Generate(model.TrainingParams{Epochs: 50, LearningRate: 0.5, BatchSize: 32})
	mid := 24
	if fast[mid].Loss >= slow[mid].Loss {
		t.Fatalf("expected lower loss for higher learning rate at epoch %d: fast=%v slow=%v", mid+1, fast[mid].Loss, slow[mid].Loss)
	}
}

func TestGenerateSeedIsReproducible(t *testing.T) {
	p := model.TrainingParams{Epochs: 30, LearningRate: 0.01, BatchSize: 32}
	a := NewWithSeed(7).Generate(p)
	b := NewWithSeed(7).Generate(p)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("record %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestGenerateNoiselessMatchesFormula(t *testing.T) {
	g := New(WithNoise(0))
	p := model.TrainingParams{Epochs: 10, LearningRate: 0.01, BatchSize: 32}
	records := g.Generate(p)

	tv := 1.0 * ConvergenceRate(p.LearningRate) * BatchPenalty(p.BatchSize)
	wantLoss := math.Round(0.92*math.Exp(-tv)*1e4) / 1e4
	wantAcc := math.Round((48+49*(1-math.Exp(-1.2*tv)))*100) / 100

	last := records[len(records)-1]
	if last.Loss != wantLoss {
		t.Fatalf("expected final loss %v, got %v", wantLoss, last.Loss)
	}
	if last.Accuracy != wantAcc {
		t.Fatalf("expected final accuracy %v, got %v", wantAcc, last.Accuracy)
	}
}

func TestBatchPenalty(t *testing.T) {
	if got := BatchPenalty(16); got != 1 {
		t.Fatalf("expected no penalty for batch 16, got %v", got)
	}
	if BatchPenalty(256) >= BatchPenalty(32) {
		t.Fatalf("expected larger batches to converge slower")
	}
}

func hasPlaces(v float64, places int) bool {
	scale := math.Pow(10, float64(places))
	scaled := v * scale
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}
