package coredb

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Loader serves the dataset, preferring the SQLite cache when the
// Access file has not changed since the last export.
type Loader struct {
	DBPath    string
	CachePath string

	run exportRunner
}

// NewLoader builds a loader over the given Access file. cachePath may
// be empty to disable caching.
func NewLoader(dbPath, cachePath string) *Loader {
	return &Loader{DBPath: dbPath, CachePath: cachePath, run: runMDBExport}
}

// Load returns the dataset, from the cache when it is fresh.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	fi, err := os.Stat(l.DBPath)
	if err != nil {
		return nil, fmt.Errorf("database file: %w", err)
	}

	if l.CachePath == "" {
		return export(ctx, l.run, l.DBPath)
	}

	store, err := OpenStore(l.CachePath)
	if err != nil {
		log.Printf("[CoreDB] Cache unavailable, exporting directly: %v", err)
		return export(ctx, l.run, l.DBPath)
	}
	defer store.Close()

	cached, err := store.SourceModTime(ctx)
	if err == nil && !cached.IsZero() && cached.Equal(fi.ModTime()) {
		ds, err := store.Load(ctx)
		if err == nil {
			log.Printf("[CoreDB] Loaded %d clients / %d quotes / %d projects from cache",
				len(ds.Clients), len(ds.Quotes), len(ds.Projects))
			return ds, nil
		}
		log.Printf("[CoreDB] Cache read failed, re-exporting: %v", err)
	}

	log.Printf("[CoreDB] Exporting tables from %s", l.DBPath)
	ds, err := export(ctx, l.run, l.DBPath)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, ds, fi.ModTime()); err != nil {
		log.Printf("[CoreDB] Cache write failed: %v", err)
	}
	return ds, nil
}
