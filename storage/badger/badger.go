package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/storage"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		acseg.Errorf("Unable to make semver in badger: %v\n", err)
	}
	e := Engine{"badger", "BadgerDB", ver}
	storage.RegisterEngine(e)
}

// --- Engine Implementation ------

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore returns a badger store.  The config must have a path unless the
// store is in memory.
func (e Engine) NewStore(config storage.Config) (storage.Store, bool, error) {
	return newDB(config)
}

// badgerLogger routes badger's own logging through the acseg logger, one level down.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	acseg.Errorf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	acseg.Warningf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	acseg.Debugf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {}

// Periodically sync to prevent too many writes from being buffered
// if the process crashes.
func syncPeriodically(db *BadgerDB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			return
		case <-ticker.C:
			if err := db.bdp.Sync(); err != nil {
				acseg.Errorf("Unable to sync badger @ %s: %v\n", db.directory, err)
			}
		}
	}
}

// newDB returns a Badger backend, creating one at path if it doesn't exist.
func newDB(config storage.Config) (*BadgerDB, bool, error) {
	var opts badger.Options
	var created bool
	path := config.Path
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
		path = "memory"
		created = true
	} else {
		if path == "" {
			return nil, false, fmt.Errorf("%q must be specified for BadgerDB configuration", "path")
		}
		// Is there a database already at this path?  If not, create.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if config.ReadOnly {
				return nil, false, fmt.Errorf("no read-only badger database at %s", path)
			}
			created = true
			if err := os.MkdirAll(path, 0744); err != nil {
				return nil, true, fmt.Errorf("can't make directory at %s: %v", path, err)
			}
		}
		opts = badger.DefaultOptions(path).WithReadOnly(config.ReadOnly)
	}
	opts = opts.WithNumVersionsToKeep(1).WithSyncWrites(false).WithLogger(badgerLogger{})

	timedLog := acseg.NewTimeLog()
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, false, err
	}
	timedLog.Debugf("Opened badger @ %s", path)
	db := &BadgerDB{
		directory:  path,
		bdp:        bdp,
		stopSyncCh: make(chan struct{}),
		inMemory:   config.InMemory,
	}
	if !config.InMemory && !config.ReadOnly {
		go syncPeriodically(db)
	}
	return db, created, nil
}

// BadgerDB is a storage.Store backed by a local badger database.
type BadgerDB struct {
	directory  string
	bdp        *badger.DB
	stopSyncCh chan struct{}
	inMemory   bool
}

func (db *BadgerDB) String() string {
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Close closes the BadgerDB.
func (db *BadgerDB) Close() error {
	if db == nil || db.bdp == nil {
		return nil
	}
	close(db.stopSyncCh)
	err := db.bdp.Close()
	db.bdp = nil
	acseg.Infof("Closed Badger DB @ %s\n", db.directory)
	return err
}

// Get returns a value given a key.
func (db *BadgerDB) Get(ctx context.Context, key string) ([]byte, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Get on closed BadgerDB")
	}
	var value []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

// Put stores a value under the key.
func (db *BadgerDB) Put(ctx context.Context, key string, value []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Put on closed BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Delete removes the key.
func (db *BadgerDB) Delete(ctx context.Context, key string) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Delete on closed BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys returns all keys with the prefix.
func (db *BadgerDB) Keys(ctx context.Context, prefix string) ([]string, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Keys on closed BadgerDB")
	}
	var keys []string
	err := db.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}
