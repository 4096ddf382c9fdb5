// Package local runs an in-process encoder backed by a word-vector table
// (GloVe text format: one "word v1 v2 ... vN" per line).
package local

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/metrics"
)

// ModelConfig describes the table on disk and its residency policy.
type ModelConfig struct {
	Path       string
	Dimensions int
	// ReleaseAfterBatch unloads the table when the last handle is released.
	ReleaseAfterBatch bool
	Logger            *zap.Logger
}

type table struct {
	dims    int
	vectors map[string][]float32
}

// Model owns the lifecycle of the loaded table. Safe for concurrent use.
type Model struct {
	cfg  ModelConfig
	name string

	mu    sync.Mutex
	table *table
	refs  int
}

// NewModel validates the config. Nothing is read from disk until the first Acquire.
func NewModel(cfg ModelConfig) (*Model, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: local model path is required", domain.ErrConfiguration)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: local model dimensions must be positive", domain.ErrConfiguration)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Model{cfg: cfg, name: filepath.Base(cfg.Path)}, nil
}

// Name returns the model file name.
func (m *Model) Name() string { return m.name }

// Dimensions returns the configured vector size.
func (m *Model) Dimensions() int { return m.cfg.Dimensions }

// Acquire loads the table if needed and pins it until the handle is released.
// Concurrent acquirers wait for a single load.
func (m *Model) Acquire(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.table == nil {
		t, err := m.load(ctx)
		if err != nil {
			return nil, err
		}
		m.table = t
		metrics.LocalModelLoaded.WithLabelValues(m.name).Set(1)
	}
	m.refs++
	return &Handle{model: m, table: m.table}, nil
}

// Loaded reports whether the table is resident.
func (m *Model) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table != nil
}

// Close drops the table if no handle holds it.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs == 0 {
		m.unloadLocked()
	}
	return nil
}

func (m *Model) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs--
	if m.refs == 0 && m.cfg.ReleaseAfterBatch {
		m.unloadLocked()
	}
}

func (m *Model) unloadLocked() {
	if m.table == nil {
		return
	}
	m.table = nil
	metrics.LocalModelLoaded.WithLabelValues(m.name).Set(0)
	m.cfg.Logger.Debug("Local model released", zap.String("model", m.name))
}

func (m *Model) load(ctx context.Context) (*table, error) {
	start := time.Now()
	t, err := readTable(ctx, m.cfg.Path, m.cfg.Dimensions)
	if err != nil {
		metrics.LocalModelLoadsTotal.WithLabelValues(m.name, "error").Inc()
		m.cfg.Logger.Error("Local model load failed", zap.String("path", m.cfg.Path), zap.Error(err))
		return nil, err
	}
	metrics.LocalModelLoadsTotal.WithLabelValues(m.name, "ok").Inc()
	m.cfg.Logger.Info("Local model loaded",
		zap.String("model", m.name),
		zap.Int("vocabulary", len(t.vectors)),
		zap.Int("dimensions", t.dims),
		zap.Duration("duration", time.Since(start)),
	)
	return t, nil
}

// readTable parses a GloVe-style file. Every line must carry exactly dims values.
func readTable(ctx context.Context, path string, dims int) (*table, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open local model: %w", domain.ErrConfiguration, err)
	}
	defer f.Close()

	t := &table{dims: dims, vectors: make(map[string][]float32)}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("load local model: %w", err)
			}
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != dims+1 {
			return nil, fmt.Errorf("%w: %s line %d has %d values, want %d",
				domain.ErrConfiguration, path, line, len(fields)-1, dims)
		}
		vec := make([]float32, dims)
		for i, s := range fields[1:] {
			v, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d: %w", domain.ErrConfiguration, path, line, err)
			}
			vec[i] = float32(v)
		}
		t.vectors[strings.ToLower(fields[0])] = vec
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read local model: %w", domain.ErrConfiguration, err)
	}
	if len(t.vectors) == 0 {
		return nil, fmt.Errorf("%w: local model %s is empty", domain.ErrConfiguration, path)
	}
	return t, nil
}

// Handle is a scoped reference to the loaded table.
type Handle struct {
	model *Model
	table *table
	once  sync.Once
}

// Encode embeds every text in one pass. A text vector is the L2-normalized mean
// of its in-vocabulary word vectors; texts with no known words get a zero vector.
func (h *Handle) Encode(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, h.table.dims)
		known := 0
		for _, w := range tokenize(text) {
			wv, ok := h.table.vectors[w]
			if !ok {
				continue
			}
			for j := range vec {
				vec[j] += wv[j]
			}
			known++
		}
		if known > 0 {
			for j := range vec {
				vec[j] /= float32(known)
			}
			domain.Normalize(vec)
		}
		out[i] = vec
	}
	return out
}

// Release unpins the table. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(h.model.release)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
