package onnx

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"recognition-server/faces"
	"recognition-server/logger"
)

var (
	envMu    sync.Mutex
	envUsers int
)

// acquireEnvironment initialises the onnxruntime environment on first use
func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envUsers == 0 && !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envUsers++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	envUsers--
	if envUsers == 0 {
		if err := ort.DestroyEnvironment(); err != nil {
			logger.Warn(logger.Fields{"error": err}, "Failed to destroy ONNX environment")
		}
	}
}

const (
	cpuProvider  = "CPUExecutionProvider"
	cudaProvider = "CUDAExecutionProvider"
)

// appendCUDA is swapped out in tests
var appendCUDA = appendCUDAProvider

// session wraps a dynamic session together with its tensor metadata
type session struct {
	*ort.DynamicAdvancedSession
	inputs   []ort.InputOutputInfo
	outputs  []ort.InputOutputInfo
	provider string
}

func appendCUDAProvider(so *ort.SessionOptions, deviceID int) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options: %w", err)
	}
	defer cuda.Destroy()
	if err = cuda.Update(map[string]string{"device_id": strconv.Itoa(deviceID)}); err != nil {
		return fmt.Errorf("failed to configure CUDA provider: %w", err)
	}
	if err = so.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("failed to enable CUDA provider: %w", err)
	}
	return nil
}

// configureProviders enables CUDA when asked to. A runtime without CUDA
// support is not fatal, inference then runs on the CPU provider.
func configureProviders(so *ort.SessionOptions, opts faces.Options) string {
	if !opts.UseGPU {
		return cpuProvider
	}
	if err := appendCUDA(so, opts.GPUDeviceID); err != nil {
		logger.Warn(logger.Fields{"error": err, "device_id": opts.GPUDeviceID}, "CUDA unavailable, falling back to CPU")
		return cpuProvider
	}
	return cudaProvider
}

func newSession(path string, inputs, outputs []ort.InputOutputInfo, opts faces.Options) (*session, error) {
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer so.Destroy()
	provider := configureProviders(so, opts)
	s, err := ort.NewDynamicAdvancedSession(path, names(inputs), names(outputs), so)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", path, err)
	}
	return &session{DynamicAdvancedSession: s, inputs: inputs, outputs: outputs, provider: provider}, nil
}

func openSession(path string, opts faces.Options) (*session, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info for %s: %w", path, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has no inputs or outputs", path)
	}
	s, err := newSession(path, inputs, outputs, opts)
	if err != nil && opts.UseGPU {
		// CUDA libraries can fail to load only when the session is created
		logger.Warn(logger.Fields{"error": err, "model": path}, "GPU session failed, retrying on CPU")
		opts.UseGPU = false
		s, err = newSession(path, inputs, outputs, opts)
	}
	return s, err
}

func (s *session) Close() {
	if s != nil && s.DynamicAdvancedSession != nil {
		s.Destroy()
	}
}

func names(infos []ort.InputOutputInfo) []string {
	result := make([]string, len(infos))
	for i, info := range infos {
		result[i] = info.Name
	}
	return result
}

func destroyAll(tensors []ort.ArbitraryTensor) {
	for _, t := range tensors {
		if t != nil {
			t.Destroy()
		}
	}
}
