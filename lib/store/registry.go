package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/query"
	"github.com/ValentinKolb/iKV/lib/schema"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("store")

// fileExt is the extension of database snapshot files.
const fileExt = ".ikv"

// ErrInvalidName is returned for database names that cannot be used as file names.
var ErrInvalidName = errors.New("invalid database name")

// DBFactory creates the empty engine that backs one database.
type DBFactory func() db.Engine

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry manages named databases below a data directory. Every database
// is persisted as one snapshot file. Opened engines are cached until they
// are closed.
type Registry struct {
	dir       string
	factory   DBFactory
	queryOpts *query.Options
	engines   *xsync.MapOf[string, db.Engine]
	mu        sync.Mutex // serializes open, close and delete
}

// NewRegistry creates a registry for dir (created if missing).
// queryOpts are passed to query.New by Query and may be nil.
func NewRegistry(dir string, factory DBFactory, queryOpts *query.Options) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data directory %q", dir)
	}
	return &Registry{
		dir:       dir,
		factory:   factory,
		queryOpts: queryOpts,
		engines:   xsync.NewMapOf[string, db.Engine](),
	}, nil
}

// Dir returns the data directory.
func (r *Registry) Dir() string { return r.dir }

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return nil
}

func (r *Registry) path(name string) string {
	return filepath.Join(r.dir, name+fileExt)
}

// Exists reports whether the database is open or has a snapshot file.
func (r *Registry) Exists(name string) bool {
	if checkName(name) != nil {
		return false
	}
	if _, ok := r.engines.Load(name); ok {
		return true
	}
	_, err := os.Stat(r.path(name))
	return err == nil
}

// List returns the names of all databases in ascending order.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read data directory %q", r.dir)
	}
	seen := map[string]bool{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), fileExt) {
			seen[strings.TrimSuffix(e.Name(), fileExt)] = true
		}
	}
	r.engines.Range(func(name string, _ db.Engine) bool {
		seen[name] = true
		return true
	})
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Open returns the engine of an existing database. It fails with
// db.ErrDatabaseNotFound if the database does not exist.
func (r *Registry) Open(name string) (db.Engine, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if e, ok := r.engines.Load(name); ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines.Load(name); ok {
		return e, nil
	}
	f, err := os.Open(r.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(db.ErrDatabaseNotFound, "database %q", name)
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	e := r.factory()
	if err := e.Load(f); err != nil {
		_ = e.Close()
		return nil, errors.Wrapf(err, "load database %q", name)
	}
	r.engines.Store(name, e)
	Logger.Infof("opened database %q (version %d)", name, e.Version())
	return e, nil
}

// Query opens the database and returns its query handle.
func (r *Registry) Query(name string) (*query.DB, error) {
	e, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	return query.New(e, r.queryOpts), nil
}

// Build creates the database if it does not exist and applies the store
// definitions as schema version (see schema.Build). The result is saved.
func (r *Registry) Build(name string, version uint64, defs map[string]string) (db.Engine, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	e, err := r.Open(name)
	if errors.Is(err, db.ErrDatabaseNotFound) {
		r.mu.Lock()
		e, _ = r.engines.LoadOrStore(name, r.factory())
		r.mu.Unlock()
		Logger.Infof("created database %q", name)
	} else if err != nil {
		return nil, err
	}

	if err := schema.Build(e, version, defs); err != nil {
		return nil, err
	}
	return e, r.Save(name)
}

// Save writes the snapshot of an open database. The file is replaced
// atomically.
func (r *Registry) Save(name string) error {
	e, ok := r.engines.Load(name)
	if !ok {
		return errors.Wrapf(db.ErrDatabaseNotFound, "database %q is not open", name)
	}
	tmp, err := os.CreateTemp(r.dir, "."+name+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create snapshot file")
	}
	defer os.Remove(tmp.Name())

	if err := e.Save(tmp); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "save database %q", name)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), r.path(name)); err != nil {
		return errors.Wrapf(err, "replace snapshot of %q", name)
	}
	Logger.Debugf("saved database %q", name)
	return nil
}

// Close saves and closes an open database. Closing a database that is not
// open is a no-op.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines.Load(name)
	if !ok {
		return nil
	}
	if err := r.Save(name); err != nil {
		return err
	}
	r.engines.Delete(name)
	return e.Close()
}

// CloseAll saves and closes every open database.
func (r *Registry) CloseAll() error {
	var names []string
	r.engines.Range(func(name string, _ db.Engine) bool {
		names = append(names, name)
		return true
	})
	var result error
	for _, name := range names {
		if err := r.Close(name); err != nil {
			result = errors.CombineErrors(result, err)
		}
	}
	return result
}

// Delete closes the database without saving and removes its snapshot.
// It fails with db.ErrDatabaseNotFound if the database does not exist.
func (r *Registry) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, open := r.engines.LoadAndDelete(name)
	if open {
		_ = e.Close()
	}
	err := os.Remove(r.path(name))
	if errors.Is(err, os.ErrNotExist) {
		if open {
			return nil
		}
		return errors.Wrapf(db.ErrDatabaseNotFound, "database %q", name)
	}
	if err == nil {
		Logger.Infof("deleted database %q", name)
	}
	return err
}
