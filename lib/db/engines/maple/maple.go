package maple

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/codec"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/iKV/lib/db/util"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("maple")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultCodec    = "gob"
	samplesPerStore = 100 // records encoded per store to estimate sizes
	entryOverhead   = 48  // btree item (key, pk, record header) per index entry
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements db.Engine on top of copy-on-write btrees.
type mapleImpl struct {
	stores    *xsync.MapOf[string, *storeData] // catalog, replaced store by store on upgrade
	version   atomic.Uint64
	upgradeMu sync.Mutex // serializes Upgrade, Load and Save
	closed    atomic.Bool
	codec     codec.ICodec
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	Codec string // codec used by Save and for size estimates ("gob" or "json")
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		Codec: defaultCodec,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new, empty engine at version 0 with the specified options (optional).
// An unknown codec name falls back to the default codec.
func NewMapleDB(opts *DBOptions) db.Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	c, err := codec.ByName(opts.Codec)
	if err != nil {
		Logger.Warningf("%v, using %s", err, defaultCodec)
		c, _ = codec.ByName(defaultCodec)
	}
	return &mapleImpl{
		stores: xsync.NewMapOf[string, *storeData](),
		codec:  c,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.Engine)
// --------------------------------------------------------------------------

func (maple *mapleImpl) StoreNames() []string {
	names := make([]string, 0, maple.stores.Size())
	maple.stores.Range(func(name string, _ *storeData) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

func (maple *mapleImpl) Version() uint64 {
	return maple.version.Load()
}

func (maple *mapleImpl) Upgrade(version uint64, fn func(u db.Upgrader) error) error {
	if maple.closed.Load() {
		return db.ErrClosed
	}
	maple.upgradeMu.Lock()
	defer maple.upgradeMu.Unlock()

	if current := maple.version.Load(); version <= current {
		return errors.Wrapf(db.ErrVersion, "cannot upgrade from version %d to %d", current, version)
	}

	// no transaction may run while the catalog changes
	current := maple.lockAll(db.ReadWrite)
	defer unlockAll(sortedStores(current), db.ReadWrite)

	u := &upgrader{current: current, next: make(map[string]*storeData, len(current))}
	for name, sd := range current {
		u.next[name] = sd
	}
	if err := fn(u); err != nil {
		Logger.Warningf("upgrade to version %d failed: %v", version, err)
		return err
	}

	maple.swapCatalog(current, u.next)
	maple.version.Store(version)
	Logger.Infof("upgraded to version %d (%d stores)", version, len(u.next))
	return nil
}

func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureCursor | db.FeatureSeek | db.FeatureUniqueCursor |
		db.FeatureMultiEntry | db.FeatureCompoundKey | db.FeatureAutoIncrement |
		db.FeatureRollback | db.FeatureSave | db.FeatureLoad
	return feature&supported == feature
}

func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	histogram := util.NewSizeHistogram()
	info := db.DatabaseInfo{
		DbType:  db.ImplMaple,
		Version: maple.version.Load(),
		SupportedFeatures: []db.Feature{
			db.FeatureCursor, db.FeatureSeek, db.FeatureUniqueCursor,
			db.FeatureMultiEntry, db.FeatureCompoundKey, db.FeatureAutoIncrement,
			db.FeatureRollback, db.FeatureSave, db.FeatureLoad,
		},
	}

	var (
		sizes        []float64
		totalRecords int
		indexEntries int
	)
	for _, name := range maple.StoreNames() {
		sd, ok := maple.stores.Load(name)
		if !ok {
			continue
		}
		sd.mu.RLock()
		records := sd.primary.Len()
		info.Stores = append(info.Stores, db.StoreInfo{Schema: sd.currentSchema(), Records: records})
		for _, idx := range sd.indexes {
			indexEntries += idx.tree.Len()
		}

		// sample the first records of the store
		count := 0
		sd.primary.Ascend(func(it internal.Item) bool {
			if b, err := maple.codec.Encode(it.Rec); err == nil {
				histogram.AddSample(len(b))
			}
			count++
			return count < samplesPerStore
		})
		sd.mu.RUnlock()

		sizes = append(sizes, float64(records))
		totalRecords += records
	}

	// weighted estimate (60% median, 40% average)
	recordSize := (histogram.MedianEstimate()*60 + histogram.AverageSize()*40) / 100
	info.SizeBytes = totalRecords*(recordSize+entryOverhead) + indexEntries*entryOverhead

	info.Metadata = &struct {
		Codec            string                 `json:"codec"`
		IndexEntries     int                    `json:"index_entries"`
		RecordSampleSize int64                  `json:"record_sample_size"`
		Distribution     util.DistributionStats `json:"distribution"`
		Info             string                 `json:"info"`
	}{
		Codec:            maple.codec.Name(),
		IndexEntries:     indexEntries,
		RecordSampleSize: histogram.Count(),
		Distribution:     util.NewDistributionStats(sizes),
		Info:             "SizeBytes is an estimate based on encoded record samples.",
	}
	return info
}

func (maple *mapleImpl) Close() error {
	if maple.closed.Swap(true) {
		return db.ErrClosed
	}
	Logger.Debugf("engine closed")
	return nil
}

// --------------------------------------------------------------------------
// Catalog helpers
// --------------------------------------------------------------------------

// lockAll locks every store of the catalog in name order and returns them.
// If a store was replaced while waiting, the catalog is read again.
func (maple *mapleImpl) lockAll(mode db.Mode) map[string]*storeData {
	for {
		locked := make(map[string]*storeData)
		stale := false
		for _, name := range maple.StoreNames() {
			sd, ok := maple.stores.Load(name)
			if !ok {
				continue
			}
			if mode == db.ReadWrite {
				sd.mu.Lock()
			} else {
				sd.mu.RLock()
			}
			locked[name] = sd
			if sd.dropped {
				stale = true
				break
			}
		}
		if !stale {
			return locked
		}
		unlockAll(sortedStores(locked), mode)
	}
}

// swapCatalog replaces the stores of old by those of next. Replaced or
// removed instances are marked dropped so that waiting transactions retry.
// The caller holds the write locks of all stores in old.
func (maple *mapleImpl) swapCatalog(old, next map[string]*storeData) {
	for name, sd := range old {
		if n, ok := next[name]; !ok || n != sd {
			sd.dropped = true
			if !ok {
				maple.stores.Delete(name)
			}
		}
	}
	for name, sd := range next {
		if old[name] != sd {
			maple.stores.Store(name, sd)
		}
	}
}

func sortedStores(m map[string]*storeData) []*storeData {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	order := make([]*storeData, len(names))
	for i, name := range names {
		order[i] = m[name]
	}
	return order
}

// --------------------------------------------------------------------------
// Upgrader (docu see db.Upgrader)
// --------------------------------------------------------------------------

// upgrader collects schema changes on copies of the affected stores.
type upgrader struct {
	current map[string]*storeData
	next    map[string]*storeData
}

// writable returns a private copy of the named store.
func (u *upgrader) writable(name string) (*storeData, error) {
	sd, ok := u.next[name]
	if !ok {
		return nil, errors.Wrapf(db.ErrStoreNotFound, "store %q", name)
	}
	if sd == u.current[name] {
		sd = sd.clone()
		u.next[name] = sd
	}
	return sd, nil
}

func validKeyPath(kp db.KeyPath) bool {
	for _, p := range kp {
		if p == "" {
			return false
		}
	}
	return true
}

func (u *upgrader) CreateStore(name string, keyPath db.KeyPath, autoIncrement bool) error {
	if name == "" || !validKeyPath(keyPath) {
		return errors.Wrapf(db.ErrDataError, "invalid store definition %q (%s)", name, keyPath)
	}
	if autoIncrement && keyPath.IsCompound() {
		return errors.Wrapf(db.ErrDataError, "store %q: auto increment requires a single key path", name)
	}
	if _, exists := u.next[name]; exists {
		return errors.Wrapf(db.ErrConstraint, "store %q already exists", name)
	}
	u.next[name] = newStoreData(name, keyPath, autoIncrement)
	return nil
}

func (u *upgrader) DeleteStore(name string) error {
	if _, ok := u.next[name]; !ok {
		return errors.Wrapf(db.ErrStoreNotFound, "store %q", name)
	}
	delete(u.next, name)
	return nil
}

func (u *upgrader) CreateIndex(store string, schema db.IndexSchema) error {
	if schema.Name == "" || len(schema.KeyPath) == 0 || !validKeyPath(schema.KeyPath) {
		return errors.Wrapf(db.ErrDataError, "invalid index definition %q (%s)", schema.Name, schema.KeyPath)
	}
	if schema.MultiEntry && schema.KeyPath.IsCompound() {
		return errors.Wrapf(db.ErrDataError, "index %q: multi entry requires a single key path", schema.Name)
	}
	sd, err := u.writable(store)
	if err != nil {
		return err
	}
	if _, exists := sd.indexes[schema.Name]; exists {
		return errors.Wrapf(db.ErrConstraint, "index %q already exists on store %q", schema.Name, store)
	}
	return sd.addIndex(schema)
}

func (u *upgrader) DeleteIndex(store, index string) error {
	sd, ok := u.next[store]
	if !ok {
		return errors.Wrapf(db.ErrStoreNotFound, "store %q", store)
	}
	if _, exists := sd.indexes[index]; !exists {
		return errors.Wrapf(db.ErrIndexNotFound, "index %q on store %q", index, store)
	}
	sd, _ = u.writable(store)
	delete(sd.indexes, index)
	return nil
}

func (u *upgrader) StoreNames() []string {
	names := make([]string, 0, len(u.next))
	for name := range u.next {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
