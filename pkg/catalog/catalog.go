// Package catalog maps table names and ids to the heap files and schemas
// behind them, and registers each file with the buffer pool so its pages
// become reachable.
package catalog

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"corestore/pkg/buffer"
	"corestore/pkg/dberr"
	"corestore/pkg/storage"
	"corestore/pkg/tuple"
)

// Info is one table's catalog entry.
type Info struct {
	File       buffer.TupleFile
	Name       string
	PrimaryKey string
}

// ID returns the table's identity.
func (i *Info) ID() storage.TableID { return i.File.ID() }

// Catalog is the table registry. Every scan looks up its table's schema
// when it is built, so schema lookups are served from a ristretto cache in
// front of the authoritative maps; the maps stay small and mutex-guarded.
type Catalog struct {
	pool *buffer.Manager

	mu     sync.RWMutex
	byName map[string]*Info
	byID   map[storage.TableID]*Info

	descs *ristretto.Cache[uint64, tuple.Description]
}

// New creates an empty catalog registering tables against pool.
func New(pool *buffer.Manager) (*Catalog, error) {
	descs, err := ristretto.NewCache(&ristretto.Config[uint64, tuple.Description]{
		NumCounters: 1 << 12,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, dberr.BadInput("building schema cache: %v", err)
	}
	return &Catalog{
		pool:   pool,
		byName: make(map[string]*Info),
		byID:   make(map[storage.TableID]*Info),
		descs:  descs,
	}, nil
}

// AddTable registers f under name, replacing any table previously holding
// the same name or id, and makes its pages reachable through the buffer
// pool.
func (c *Catalog) AddTable(f buffer.TupleFile, name, primaryKey string) error {
	if f == nil {
		return dberr.BadInput("table file cannot be nil")
	}
	if name == "" {
		return dberr.BadInput("table name cannot be empty")
	}

	c.mu.Lock()
	info := &Info{File: f, Name: name, PrimaryKey: primaryKey}
	if old, ok := c.byName[name]; ok {
		delete(c.byID, old.ID())
	}
	if old, ok := c.byID[f.ID()]; ok {
		delete(c.byName, old.Name)
	}
	c.byName[name] = info
	c.byID[f.ID()] = info
	c.mu.Unlock()

	c.descs.Set(uint64(f.ID()), f.Desc(), 1)
	c.pool.RegisterStore(f)
	return nil
}

// TableID returns the id of the named table.
func (c *Catalog) TableID(name string) (storage.TableID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.byName[name]
	if !ok {
		return 0, dberr.BadInput("table %q not found", name)
	}
	return info.ID(), nil
}

// DbFile returns the heap file behind the table id.
func (c *Catalog) DbFile(id storage.TableID) (buffer.TupleFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.byID[id]
	if !ok {
		return nil, dberr.BadInput("table with id %d not found", id)
	}
	return info.File, nil
}

// TupleDesc returns the schema of the table id, served from the schema
// cache when possible.
func (c *Catalog) TupleDesc(id storage.TableID) (tuple.Description, error) {
	if d, ok := c.descs.Get(uint64(id)); ok {
		return d, nil
	}
	f, err := c.DbFile(id)
	if err != nil {
		return tuple.Description{}, err
	}
	d := f.Desc()
	c.descs.Set(uint64(id), d, 1)
	return d, nil
}

// TableNames returns every registered table name.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	return names
}

// Close closes every registered file and the schema cache.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, info := range c.byID {
		if err := info.File.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.byName = make(map[string]*Info)
	c.byID = make(map[storage.TableID]*Info)
	c.descs.Close()
	return firstErr
}
