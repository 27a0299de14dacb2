package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blang/semver"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/storage"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		acseg.Errorf("Unable to make semver in blobstore: %v\n", err)
	}
	e := Engine{"blob", "Go Cloud blob storage (file, mem, gs)", ver}
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

// NewStore opens a bucket.  The config path is a bucket URL such as
// gs://<bucket>, mem://, or file:///<dir>.  A plain directory path is
// opened with the file driver, creating the directory if needed.
func (e Engine) NewStore(config storage.Config) (storage.Store, bool, error) {
	ref := config.Path
	if config.InMemory {
		ref = "mem://"
	}
	if ref == "" {
		return nil, false, fmt.Errorf("%q must be specified for blob storage configuration", "path")
	}
	bucket, created, err := OpenBucket(context.Background(), ref)
	if err != nil {
		return nil, false, err
	}
	return &Store{ref: ref, bucket: bucket, readOnly: config.ReadOnly}, created, nil
}

// OpenBucket returns a bucket for a URL or local directory.
func OpenBucket(ctx context.Context, ref string) (bucket *blob.Bucket, created bool, err error) {
	if strings.Contains(ref, "://") {
		created = strings.HasPrefix(ref, "mem://")
		bucket, err = blob.OpenBucket(ctx, ref)
		if err != nil {
			acseg.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
		}
		return
	}
	dir, err := filepath.Abs(ref)
	if err != nil {
		return nil, false, err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		created = true
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, true, fmt.Errorf("can't make directory at %s: %v", dir, err)
		}
	}
	bucket, err = fileblob.OpenBucket(dir, nil)
	return
}

// Store is a storage.Store backed by a Go Cloud bucket.
type Store struct {
	ref      string
	bucket   *blob.Bucket
	readOnly bool
}

func (s *Store) String() string {
	return fmt.Sprintf("blob store @ %s", s.ref)
}

// Get returns the object named key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, storage.ErrNotFound
	}
	return data, err
}

// Put writes the object named key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if s.readOnly {
		return fmt.Errorf("can't write %q to read-only %s", key, s)
	}
	return s.bucket.WriteAll(ctx, key, value, nil)
}

// Delete removes the object named key if it exists.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.readOnly {
		return fmt.Errorf("can't delete %q from read-only %s", key, s)
	}
	err := s.bucket.Delete(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

// Keys returns the names of all objects with the prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !obj.IsDir {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}
