package risk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"netrisk/internal/features"
	"netrisk/internal/forest"
	"netrisk/internal/models"
)

type fakeModel struct {
	class int
	err   error
	panic bool
	calls int
	seen  []float64
}

func (m *fakeModel) Predict(x []float64) (int, error) {
	m.calls++
	m.seen = x
	if m.panic {
		panic("boom")
	}
	return m.class, m.err
}

func stubOutput(r models.Risk) bool {
	return r == models.RiskLow || r == models.RiskHigh
}

func TestStub_OnlyLowOrHigh(t *testing.T) {
	var s Stub
	for i := 0; i < 200; i++ {
		require.True(t, stubOutput(s.Predict(features.Extract(i))))
	}
}

func TestTrained_MapsClasses(t *testing.T) {
	m := &fakeModel{}
	c := NewTrained(m, nil)

	for class, want := range []models.Risk{models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskLow} {
		m.class = class
		require.Equal(t, want, c.Predict(features.Extract(120)))
	}
	require.Equal(t, []float64{120, 60, 30}, m.seen)
}

func TestTrained_ErrorFallsBackPerCall(t *testing.T) {
	m := &fakeModel{err: errors.New("bad shape")}
	c := NewTrained(m, nil)

	require.True(t, stubOutput(c.Predict(features.Extract(10))))
	require.Equal(t, uint64(1), c.Fallbacks())

	m.err = nil
	m.class = 1
	require.Equal(t, models.RiskMedium, c.Predict(features.Extract(10)))
	require.Equal(t, 2, m.calls)
}

func TestTrained_PanicFallsBackPerCall(t *testing.T) {
	m := &fakeModel{panic: true}
	c := NewTrained(m, nil)

	require.NotPanics(t, func() {
		require.True(t, stubOutput(c.Predict(features.Extract(10))))
	})

	m.panic = false
	m.class = 2
	require.Equal(t, models.RiskHigh, c.Predict(features.Extract(10)))
}

func TestLoad_FallsBackToStub(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))

	for _, path := range []string{
		"",
		filepath.Join(dir, "missing.json"),
		bad,
		filepath.Join(dir, "model.pkl"),
		filepath.Join(dir, "missing.onnx"),
	} {
		cfg := DefaultConfig()
		cfg.ModelPath = path
		c, variant := Load(cfg, nil)
		require.Equal(t, VariantStub, variant, path)
		require.IsType(t, Stub{}, c)
	}
}

func TestLoad_Forest(t *testing.T) {
	f := &forest.Forest{
		Version:  forest.FormatVersion,
		Features: features.Columns,
		Classes:  []string{"LOW", "MEDIUM", "HIGH"},
		Trees: []forest.Tree{{Nodes: []forest.Node{
			{Feature: 0, Threshold: 100, Left: 1, Right: 2},
			{Leaf: true, Class: 0},
			{Leaf: true, Class: 2},
		}}},
	}
	path := filepath.Join(t.TempDir(), "risk_model.json")
	require.NoError(t, f.Save(path))

	cfg := DefaultConfig()
	cfg.ModelPath = path
	c, variant := Load(cfg, nil)
	require.Equal(t, VariantTrained, variant)
	require.Equal(t, models.RiskLow, c.Predict(features.Extract(60)))
	require.Equal(t, models.RiskHigh, c.Predict(features.Extract(1500)))
}

func TestDescribe(t *testing.T) {
	require.Equal(t, "stub", Describe(Stub{}))
	require.Equal(t, "trained", Describe(NewTrained(&fakeModel{}, nil)))
}
