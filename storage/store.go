/*
	Package storage persists seed directories and voxel grids in a key-value
	store.  Each backend lives in its own package and registers an Engine at
	init, so a binary only carries the backends it imports.
*/
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blang/semver"

	"github.com/janelia-flyem/acseg/acseg"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is a flat key-value store.  Values are opaque; serialization happens
// above this layer.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores the value, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes the key.  Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix in sorted order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
	String() string
}

// Config selects and configures a backend.
type Config struct {
	// Engine is the registered engine name, e.g., "badger" or "blob".
	Engine string `toml:"engine"`

	// Path is a directory for local engines or a bucket URL for blob storage.
	Path string `toml:"path"`

	// ReadOnly opens an existing store without write access where supported.
	ReadOnly bool `toml:"read_only"`

	// InMemory keeps data in memory where supported.  Path is ignored.
	InMemory bool `toml:"in_memory"`

	// Options holds engine-specific settings, e.g., swift credentials.
	Options map[string]string `toml:"options"`
}

// Engine is a storage backend that can open stores.
type Engine interface {
	GetName() string
	GetDescription() string
	GetSemVer() semver.Version

	// NewStore opens the store described by config and reports whether it
	// was newly created.
	NewStore(config Config) (Store, bool, error)

	String() string
}

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]Engine)
)

// RegisterEngine makes an engine available by name.  Backends call it at init.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[e.GetName()] = e
}

// GetEngine returns the named engine or nil if it was never registered.
func GetEngine(name string) Engine {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	return engines[name]
}

// EnginesAvailable returns a description of the registered engines.
func EnginesAvailable() string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	var names []string
	for _, e := range engines {
		names = append(names, e.String())
	}
	sort.Strings(names)
	return strings.Join(names, "; ")
}

// Open returns a store for the configuration using its registered engine.
func Open(config Config) (Store, error) {
	e := GetEngine(config.Engine)
	if e == nil {
		return nil, fmt.Errorf("storage engine %q is not available; have %s", config.Engine, EnginesAvailable())
	}
	store, created, err := e.NewStore(config)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", config.Engine, err)
	}
	if created {
		acseg.Infof("Created new %s\n", store)
	} else {
		acseg.Infof("Opened existing %s\n", store)
	}
	return store, nil
}
