package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"corestore/pkg/buffer"
	"corestore/pkg/catalog"
	"corestore/pkg/config"
	"corestore/pkg/logging"
	"corestore/pkg/storage"
	"corestore/pkg/storage/heap"
	"corestore/pkg/tuple"
)

// benchDesc is the schema of the table both serve and bench operate on.
var benchDesc = tuple.Description{
	Columns: []tuple.ColumnDesc{
		{Name: "id", Type: tuple.IntType},
		{Name: "payload", Type: tuple.StringType},
	},
}

// engine bundles the wired-up storage stack for the CLI commands.
type engine struct {
	cfg     config.Config
	log     *logrus.Logger
	pool    *buffer.Manager
	catalog *catalog.Catalog
	bench   storage.TableID
}

func openEngine(cfg config.Config) (*engine, error) {
	log, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	storage.PageSize = cfg.PageSize

	pool := buffer.New(cfg.Capacity, logging.Component(log, "buffer"))
	cat, err := catalog.New(pool)
	if err != nil {
		return nil, err
	}

	f, err := heap.Open(filepath.Join(cfg.DataDir, "bench.dat"), benchDesc)
	if err != nil {
		return nil, err
	}
	if err := cat.AddTable(f, "bench", "id"); err != nil {
		return nil, err
	}

	return &engine{
		cfg:     cfg,
		log:     log,
		pool:    pool,
		catalog: cat,
		bench:   f.ID(),
	}, nil
}

func (e *engine) close() error {
	err := e.pool.FlushAll()
	if cerr := e.catalog.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
