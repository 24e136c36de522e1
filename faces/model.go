package faces

import (
	"context"
	"image"
	"sync"
	"time"

	"recognition-server/logger"
)

// Model is the process-wide handle on the loaded analyzer.
// Inferences share a read lock; installing and closing the analyzer take the
// write lock, so Close waits for in-flight calls to finish. Opening a backend
// happens outside of mu, so Ready and Analyze answer while a load is running.
type Model struct {
	mu       sync.RWMutex
	loadMu   sync.Mutex
	opts     Options
	analyzer Analyzer
}

func NewModel(opts Options) *Model {
	return &Model{opts: opts}
}

func (m *Model) Options() Options {
	return m.opts
}

// Load opens the configured backend. Loading an already loaded model is a no-op.
func (m *Model) Load() error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.Ready() {
		return nil
	}
	logger.Info(logger.Fields{"backend": m.opts.Backend, "models_dir": m.opts.ModelsDir}, "Loading face model...")
	start := time.Now()
	a, err := Open(m.opts)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.analyzer = a
	m.mu.Unlock()
	logger.Info(logger.Fields{
		"gpu":            m.opts.UseGPU,
		"det_size":       m.opts.DetSize,
		"embedding_size": a.EmbeddingSize(),
		"load_ms":        time.Since(start).Milliseconds(),
	}, "Model loaded")
	return nil
}

func (m *Model) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.analyzer != nil
}

// Analyze runs the loaded analyzer, or returns ErrNotLoaded
func (m *Model) Analyze(ctx context.Context, img image.Image) ([]Face, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.analyzer == nil {
		return nil, ErrNotLoaded
	}
	return m.analyzer.Get(ctx, img)
}

// Close releases the analyzer. The handle can be loaded again afterwards.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.analyzer == nil {
		return nil
	}
	logger.Info(nil, "Shutting down face model...")
	err := m.analyzer.Close()
	m.analyzer = nil
	return err
}
