/*
	Package swift implements an Openstack Swift store.  The container is taken
	from the config Path and credentials from the config Options:

		user, key, auth     required
		project, domain     optional, switch to v3 authentication

	Keys are stored as object names so a container can be browsed directly.
*/
package swift

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blang/semver"
	"github.com/ncw/swift"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/storage"
)

const (
	// The maximum number of operations sent to Swift in parallel.
	maxConcurrentOperations = 10

	// The initial delay upon a failure.
	initialDelay = 50 * time.Millisecond

	// The maximum delay after which we give up and an error is returned.
	maximumDelay = 2 * time.Minute
)

// rateLimit is a buffered channel used to limit the number of concurrent
// operations sent to Swift.
var rateLimit = make(chan struct{}, maxConcurrentOperations)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		acseg.Errorf("Unable to make semver in swift: %v\n", err)
	}
	storage.RegisterEngine(Engine{"swift", "Openstack Swift", ver})
}

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

// NewStore authenticates and creates the container if necessary.  The store
// is reported as new when the container had to be created.
func (e Engine) NewStore(config storage.Config) (storage.Store, bool, error) {
	if config.InMemory {
		return nil, false, fmt.Errorf("swift engine cannot be in memory")
	}
	if config.Path == "" {
		return nil, false, fmt.Errorf("swift engine needs a container name as path")
	}
	conn := &swift.Connection{}
	option := func(name string, required bool) (string, error) {
		v := config.Options[name]
		if v == "" && required {
			return "", fmt.Errorf("configuration option %q missing for swift store", name)
		}
		return v, nil
	}
	var err error
	if conn.UserName, err = option("user", true); err != nil {
		return nil, false, err
	}
	if conn.ApiKey, err = option("key", true); err != nil {
		return nil, false, err
	}
	if conn.AuthUrl, err = option("auth", true); err != nil {
		return nil, false, err
	}
	conn.Tenant, _ = option("project", false)
	conn.TenantDomain, _ = option("domain", false)
	if conn.Tenant != "" {
		conn.AuthVersion = 3
	}
	if err := conn.Authenticate(); err != nil {
		return nil, false, fmt.Errorf("unable to authenticate with swift: %v", err)
	}
	acseg.Infof("Authenticated to Openstack Swift with user %q, container %q via %s\n", conn.UserName, config.Path, conn.AuthUrl)

	s := &Store{container: config.Path, conn: conn}
	var created bool
	_, _, err = conn.Container(s.container)
	if errors.Is(err, swift.ContainerNotFound) {
		if err = conn.ContainerCreate(s.container, nil); err != nil {
			return nil, false, fmt.Errorf("cannot create swift container %q: %v", s.container, err)
		}
		acseg.Infof("Created new container %q\n", s.container)
		created = true
	} else if err != nil {
		return nil, false, fmt.Errorf("unable to check if swift container %q exists: %v", s.container, err)
	}
	return s, created, nil
}

// Store is a storage.Store over a single Swift container.
type Store struct {
	container string
	conn      *swift.Connection
}

func (s *Store) String() string {
	return fmt.Sprintf("Openstack Swift store, user %q, container %q", s.conn.UserName, s.container)
}

// Close is a no-op; Swift connections are plain HTTP.
func (s *Store) Close() error {
	return nil
}

// retry runs op until it succeeds, returns a terminal error, or the delay
// exceeds maximumDelay.  Only one rate limit slot is held per attempt.
func retry(ctx context.Context, what string, op func() error) error {
	delay := initialDelay
	for {
		select {
		case rateLimit <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		err := op()
		<-rateLimit
		if err == nil || errors.Is(err, swift.ObjectNotFound) {
			return err
		}
		if delay > maximumDelay {
			return fmt.Errorf("maximum swift %s retries exceeded: %v", what, err)
		}
		acseg.Debugf("swift %s failed, retrying in %s: %v\n", what, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var contents []byte
	err := retry(ctx, "download", func() (err error) {
		contents, err = s.conn.ObjectGetBytes(s.container, key)
		return
	})
	if errors.Is(err, swift.ObjectNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if contents == nil {
		contents = []byte{}
	}
	return contents, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return retry(ctx, "upload", func() error {
		return s.conn.ObjectPutBytes(s.container, key, value, "application/octet-stream")
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := retry(ctx, "delete", func() error {
		return s.conn.ObjectDelete(s.container, key)
	})
	if errors.Is(err, swift.ObjectNotFound) {
		return nil
	}
	return err
}

// Keys lists object names with the given prefix.  Swift returns names in
// sorted order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := retry(ctx, "listing", func() (err error) {
		names, err = s.conn.ObjectNamesAll(s.container, &swift.ObjectsOpts{Prefix: prefix})
		return
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
