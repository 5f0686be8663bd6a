package risk

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"netrisk/internal/forest"
)

// Config locates the model artifact.
type Config struct {
	ModelPath   string `yaml:"model_path"`
	ONNXLibrary string `yaml:"onnx_library"` // path to libonnxruntime, empty for the loader default
	ONNXInput   string `yaml:"onnx_input"`
	ONNXOutput  string `yaml:"onnx_output"`
}

// DefaultConfig matches the artifact written by cmd/trainrisk.
func DefaultConfig() Config {
	return Config{
		ModelPath:  "risk_model.json",
		ONNXInput:  "float_input",
		ONNXOutput: "label",
	}
}

// Load tries to open the configured model. On failure it logs once and returns the stub,
// which then serves every prediction of the returned classifier.
func Load(cfg Config, log *zap.Logger) (Classifier, Variant) {
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("loading risk model", zap.String("path", cfg.ModelPath))

	m, err := OpenModel(cfg)
	if err != nil {
		log.Warn("could not load risk model, falling back to random stub",
			zap.String("path", cfg.ModelPath), zap.Error(err))
		return Stub{}, VariantStub
	}
	log.Info("risk model loaded", zap.String("path", cfg.ModelPath))
	return NewTrained(m, log), VariantTrained
}

// OpenModel opens an artifact, choosing the format by file extension.
func OpenModel(cfg Config) (Model, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("no model path configured")
	}
	switch ext := strings.ToLower(filepath.Ext(cfg.ModelPath)); ext {
	case ".json":
		return forest.Load(cfg.ModelPath)
	case ".onnx":
		return openONNX(cfg)
	default:
		return nil, errors.Errorf("unsupported model format %q", ext)
	}
}
