package store

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

// Cached is a read-through LRU cache in front of another Store. Bins are read
// once for statistics and again for detection; the cache serves the second read.
type Cached struct {
	inner Store
	cache *lru.Cache[core.BinKey, []*core.Spectrum]
}

// NewCached wraps inner with a cache holding up to size bins.
func NewCached(inner Store, size int) (*Cached, error) {
	cache, err := lru.New[core.BinKey, []*core.Spectrum](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create bin cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Append(ctx context.Context, key core.BinKey, spectra []*core.Spectrum) error {
	c.cache.Remove(key)
	return c.inner.Append(ctx, key, spectra)
}

func (c *Cached) Load(ctx context.Context, key core.BinKey) ([]*core.Spectrum, error) {
	if spectra, ok := c.cache.Get(key); ok {
		return spectra, nil
	}
	spectra, err := c.inner.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, spectra)
	return spectra, nil
}

func (c *Cached) Delete(ctx context.Context, key core.BinKey) error {
	c.cache.Remove(key)
	return c.inner.Delete(ctx, key)
}

func (c *Cached) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
