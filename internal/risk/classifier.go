// Package risk assigns a risk tier to packet feature vectors.
//
// A Classifier is built once at startup by Load and injected into the pipeline. Load picks
// between two variants: Trained, backed by a model artifact, and Stub, a random placeholder
// used when no artifact can be loaded.
package risk

import (
	"math/rand/v2"
	"sync/atomic"

	"go.uber.org/zap"

	"netrisk/internal/dataset"
	"netrisk/internal/features"
	"netrisk/internal/models"
)

// Classifier predicts the risk tier of a packet.
type Classifier interface {
	Predict(v features.Vector) models.Risk
}

// Model is a loaded artifact predicting a class index from a flat feature slice.
type Model interface {
	Predict(x []float64) (int, error)
}

// Variant names which implementation Load selected.
type Variant string

const (
	VariantTrained Variant = "trained"
	VariantStub    Variant = "stub"
)

// Stub picks LOW or HIGH uniformly at random. Its output carries no information.
type Stub struct{}

func (Stub) Predict(features.Vector) models.Risk {
	if rand.IntN(2) == 0 {
		return models.RiskLow
	}
	return models.RiskHigh
}

// Trained classifies with a model. A failing call is answered by the stub; the model stays
// in use for later calls.
type Trained struct {
	model     Model
	fallback  Classifier
	log       *zap.Logger
	fallbacks atomic.Uint64
}

// NewTrained wraps m. A nil logger disables logging.
func NewTrained(m Model, log *zap.Logger) *Trained {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trained{model: m, fallback: Stub{}, log: log}
}

func (t *Trained) Predict(v features.Vector) (risk models.Risk) {
	defer func() {
		if p := recover(); p != nil {
			t.fallbacks.Add(1)
			t.log.Warn("risk model panicked, using stub for this packet", zap.Any("panic", p))
			risk = t.fallback.Predict(v)
		}
	}()

	class, err := t.model.Predict(v.Slice())
	if err != nil {
		t.fallbacks.Add(1)
		t.log.Warn("risk prediction failed, using stub for this packet", zap.Error(err))
		return t.fallback.Predict(v)
	}
	return dataset.RiskForClass(class)
}

// Fallbacks reports how many predictions were answered by the stub.
func (t *Trained) Fallbacks() uint64 {
	return t.fallbacks.Load()
}

// Describe names the variant behind c.
func Describe(c Classifier) string {
	switch c.(type) {
	case *Trained:
		return string(VariantTrained)
	case Stub, *Stub:
		return string(VariantStub)
	default:
		return "custom"
	}
}
