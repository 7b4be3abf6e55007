// Package catalog keeps the datasets the service can explore.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dataset-explorer/backend/internal/dataset"
)

// ErrNotFound is returned for unknown dataset IDs.
var ErrNotFound = errors.New("dataset not found")

// Catalog defines the interface for registering and looking up datasets
type Catalog interface {
	List() []dataset.Info
	Get(id string) (*dataset.Dataset, error)
	Put(ds *dataset.Dataset) error
	Delete(id string) error
	Close() error
}

// MemoryCatalog implements Catalog in process memory. Put replaces the
// dataset registered under the same ID.
type MemoryCatalog struct {
	mu       sync.RWMutex
	datasets map[string]*dataset.Dataset
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{datasets: make(map[string]*dataset.Dataset)}
}

// List returns the listing of every dataset ordered by ID.
func (c *MemoryCatalog) List() []dataset.Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]dataset.Info, 0, len(c.datasets))
	for _, ds := range c.datasets {
		out = append(out, ds.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *MemoryCatalog) Get(id string) (*dataset.Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ds, ok := c.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ds, nil
}

func (c *MemoryCatalog) Put(ds *dataset.Dataset) error {
	if ds == nil || ds.ID == "" {
		return errors.New("dataset id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.datasets[ds.ID] = ds
	return nil
}

func (c *MemoryCatalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.datasets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(c.datasets, id)
	return nil
}

// Close is a no-op for the in-memory catalog
func (c *MemoryCatalog) Close() error {
	return nil
}
