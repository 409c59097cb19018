// Package scorer consumes externally trained anomaly models. Training
// happens offline; only the exported artifact's score capability is used
// here.
package scorer

import (
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

func initRuntime(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNX scores feature vectors with an exported anomaly model. The model must
// take a single [1, featureCount] float32 input and produce a single float32
// probability. The runtime shared library is expected alongside the model
// file.
type ONNX struct {
	mu           sync.Mutex
	session      *ort.DynamicAdvancedSession
	inputName    string
	outputName   string
	featureCount int64
	outputSize   int64
}

func NewONNX(modelPath string) (*ONNX, error) {
	libPath := filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
	if err := initRuntime(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected 1 model input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}
	inDims := inputs[0].Dimensions
	if len(inDims) != 2 {
		return nil, fmt.Errorf("onnx: expected 2D input tensor, got %v", inDims)
	}
	featureCount := inDims[1]
	if featureCount <= 0 {
		return nil, fmt.Errorf("onnx: model input has dynamic feature dimension %v", inDims)
	}
	outputSize := int64(1)
	for _, d := range outputs[0].Dimensions {
		if d > 0 {
			outputSize *= d
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}
	return &ONNX{
		session:      session,
		inputName:    inputs[0].Name,
		outputName:   outputs[0].Name,
		featureCount: featureCount,
		outputSize:   outputSize,
	}, nil
}

// Score runs one inference call and returns the model probability clamped
// to [0,1]. Calls are serialized; scoring is cheap relative to the rest of
// the pipeline and the session is not safe for concurrent Run.
func (m *ONNX) Score(features []float64) (float64, error) {
	if int64(len(features)) != m.featureCount {
		return 0, fmt.Errorf("onnx: expected %d features, got %d", m.featureCount, len(features))
	}
	data := make([]float32, len(features))
	for i, f := range features {
		data[i] = float32(f)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	in, err := ort.NewTensor(ort.NewShape(1, m.featureCount), data)
	if err != nil {
		return 0, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, m.outputSize))
	if err != nil {
		return 0, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, fmt.Errorf("onnx: inference failed: %w", err)
	}
	raw := out.GetData()
	if len(raw) == 0 {
		return 0, fmt.Errorf("onnx: empty model output")
	}
	p := float64(raw[len(raw)-1])
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p, nil
}

func (m *ONNX) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
}
