package risk

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"netrisk/internal/features"
)

var ortInit sync.Mutex

// onnxModel runs an exported classifier (for example skl2onnx output) with a single
// float32 input row and an int64 label output.
type onnxModel struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[int64]
}

func openONNX(cfg Config) (Model, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrap(err, "onnx model")
	}
	if err := initRuntime(cfg.ONNXLibrary); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(features.Columns))))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	output, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}
	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.ONNXInput}, []string{cfg.ONNXOutput},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create onnx session")
	}
	return &onnxModel{session: session, input: input, output: output}, nil
}

func initRuntime(lib string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	return errors.Wrap(ort.InitializeEnvironment(), "initialize onnx runtime")
}

func (m *onnxModel) Predict(x []float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in := m.input.GetData()
	if len(x) != len(in) {
		return 0, errors.Errorf("feature shape mismatch: got %d values, want %d", len(x), len(in))
	}
	for i, v := range x {
		in[i] = float32(v)
	}
	if err := m.session.Run(); err != nil {
		return 0, errors.Wrap(err, "onnx inference")
	}
	return int(m.output.GetData()[0]), nil
}
