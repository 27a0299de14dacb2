/*
	Package bigtable implements a Google Cloud Bigtable store.  Each key is a
	row holding one cell in the "values" family.  The table name is taken from
	the config Path; the "project" and "instance" options pick the cluster.
*/
package bigtable

import (
	"context"
	"fmt"
	"slices"

	api "cloud.google.com/go/bigtable"
	"github.com/blang/semver"
	"google.golang.org/api/option"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/storage"
)

const (
	familyName = "values"
	columnName = "v"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		acseg.Errorf("Unable to make semver in bigtable: %v\n", err)
	}
	storage.RegisterEngine(Engine{"bigtable", "Google's Cloud Bigtable", ver})
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

// NewStore uses Application Default Credentials.  The table and its column
// family are created if missing.
func (e Engine) NewStore(config storage.Config) (storage.Store, bool, error) {
	return open(context.Background(), config)
}

// BigTable is a storage.Store over a single table.
type BigTable struct {
	project  string
	instance string
	table    string

	client *api.Client
	tbl    *api.Table
}

func open(ctx context.Context, config storage.Config, opts ...option.ClientOption) (*BigTable, bool, error) {
	if config.InMemory {
		return nil, false, fmt.Errorf("bigtable engine cannot be in memory")
	}
	db := &BigTable{
		project:  config.Options["project"],
		instance: config.Options["instance"],
		table:    config.Path,
	}
	if db.project == "" || db.instance == "" || db.table == "" {
		return nil, false, fmt.Errorf("bigtable engine needs project and instance options and a table path")
	}

	admin, err := api.NewAdminClient(ctx, db.project, db.instance, opts...)
	if err != nil {
		return nil, false, fmt.Errorf("unable to create a table admin client: %v", err)
	}
	defer admin.Close()
	tables, err := admin.Tables(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("unable to fetch table list: %v", err)
	}
	var created bool
	if !slices.Contains(tables, db.table) {
		if err := admin.CreateTable(ctx, db.table); err != nil {
			return nil, false, fmt.Errorf("unable to create table %q: %v", db.table, err)
		}
		created = true
	}
	info, err := admin.TableInfo(ctx, db.table)
	if err != nil {
		return nil, created, fmt.Errorf("unable to read info for table %q: %v", db.table, err)
	}
	if !slices.Contains(info.Families, familyName) {
		if err := admin.CreateColumnFamily(ctx, db.table, familyName); err != nil {
			return nil, created, fmt.Errorf("unable to create column family %q: %v", familyName, err)
		}
	}

	db.client, err = api.NewClient(ctx, db.project, db.instance, opts...)
	if err != nil {
		return nil, created, fmt.Errorf("unable to create a table client: %v", err)
	}
	db.tbl = db.client.Open(db.table)
	return db, created, nil
}

func (db *BigTable) String() string {
	return fmt.Sprintf("Google Cloud Bigtable, project %s, instance %s, table %s", db.project, db.instance, db.table)
}

func (db *BigTable) Close() error {
	return db.client.Close()
}

func (db *BigTable) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := db.tbl.ReadRow(ctx, key, api.RowFilter(api.LatestNFilter(1)))
	if err != nil {
		return nil, err
	}
	items := r[familyName]
	if len(items) == 0 {
		return nil, storage.ErrNotFound
	}
	if items[0].Value == nil {
		return []byte{}, nil
	}
	return items[0].Value, nil
}

// Put replaces the row's cell so old versions do not accumulate.
func (db *BigTable) Put(ctx context.Context, key string, value []byte) error {
	mut := api.NewMutation()
	mut.DeleteCellsInColumn(familyName, columnName)
	mut.Set(familyName, columnName, api.Now(), value)
	return db.tbl.Apply(ctx, key, mut)
}

func (db *BigTable) Delete(ctx context.Context, key string) error {
	mut := api.NewMutation()
	mut.DeleteRow()
	return db.tbl.Apply(ctx, key, mut)
}

// Keys scans the prefix range with values stripped.  Rows come back in key order.
func (db *BigTable) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := db.tbl.ReadRows(ctx, api.PrefixRange(prefix), func(r api.Row) bool {
		keys = append(keys, r.Key())
		return true
	}, api.RowFilter(api.StripValueFilter()))
	if err != nil {
		return nil, err
	}
	return keys, nil
}
