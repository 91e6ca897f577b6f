// Package store provides append-only persistence of binned pseudo-spectra keyed by (pass, bin).
package store

import (
	"context"
	"sync"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

// Store is the durable tier behind the binning engine's in-memory accumulator.
//
// Append adds spectra after any already stored under the key, so repeated
// flushes never lose prior content. Load returns the spectra of a key in
// append order; a key that was never written loads as empty without error.
type Store interface {
	Append(ctx context.Context, key core.BinKey, spectra []*core.Spectrum) error
	Load(ctx context.Context, key core.BinKey) ([]*core.Spectrum, error)
	Delete(ctx context.Context, key core.BinKey) error
	Close() error
}

// Memory keeps everything in process memory. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	bins map[core.BinKey][]*core.Spectrum
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{bins: make(map[core.BinKey][]*core.Spectrum)}
}

func (m *Memory) Append(_ context.Context, key core.BinKey, spectra []*core.Spectrum) error {
	if len(spectra) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bins[key] = append(m.bins[key], spectra...)
	return nil
}

func (m *Memory) Load(_ context.Context, key core.BinKey) ([]*core.Spectrum, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.bins[key]
	out := make([]*core.Spectrum, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, key core.BinKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bins, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
