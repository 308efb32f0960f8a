package maple

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/codec"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple/internal"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Persistence Format
// --------------------------------------------------------------------------
//
//	magic      "MAPLEIDX"
//	format     uint8
//	codec      uint8 length + name
//	payload    uint64 length + codec encoded snapshot

const (
	magicNum      = "MAPLEIDX"
	formatVersion = 1
	maxPayload    = 1 << 34
)

func init() {
	codec.RegisterType(db.Record{})
}

type snapshot struct {
	Version uint64
	Stores  []storeSnapshot
}

type storeSnapshot struct {
	Schema  db.StoreSchema
	NextID  float64
	Entries []entrySnapshot
}

type entrySnapshot struct {
	Key    db.Key
	Record db.Record
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.Engine)
// --------------------------------------------------------------------------

// Save writes a consistent snapshot of all stores. Running read-write
// transactions finish before the snapshot is taken.
func (maple *mapleImpl) Save(w io.Writer) error {
	if maple.closed.Load() {
		return db.ErrClosed
	}
	maple.upgradeMu.Lock()
	defer maple.upgradeMu.Unlock()

	stores := maple.lockAll(db.ReadOnly)
	snap := snapshot{Version: maple.version.Load()}
	for _, sd := range sortedStores(stores) {
		ss := storeSnapshot{Schema: sd.currentSchema(), NextID: sd.nextID}
		sd.primary.Ascend(func(it internal.Item) bool {
			ss.Entries = append(ss.Entries, entrySnapshot{Key: it.PK, Record: it.Rec})
			return true
		})
		snap.Stores = append(snap.Stores, ss)
	}
	payload, err := maple.codec.Encode(&snap)
	unlockAll(sortedStores(stores), db.ReadOnly)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024)
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(formatVersion)); err != nil {
		return err
	}
	name := maple.codec.Name()
	if err := binary.Write(bw, binary.LittleEndian, uint8(len(name))); err != nil {
		return err
	}
	if _, err := bw.WriteString(name); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(payload))); err != nil {
		return err
	}
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	Logger.Debugf("saved %d stores (%d bytes, %s)", len(snap.Stores), len(payload), name)
	return bw.Flush()
}

// Load replaces all stores with the snapshot read from r. The snapshot is
// decoded completely before the current state is touched.
func (maple *mapleImpl) Load(r io.Reader) error {
	if maple.closed.Load() {
		return db.ErrClosed
	}
	snap, err := readSnapshot(r)
	if err != nil {
		return err
	}

	next := make(map[string]*storeData, len(snap.Stores))
	for _, ss := range snap.Stores {
		sd := newStoreData(ss.Schema.Name, ss.Schema.KeyPath, ss.Schema.AutoIncrement)
		sd.nextID = ss.NextID
		for _, e := range ss.Entries {
			pk, err := db.NormalizeKey(e.Key)
			if err != nil {
				return errors.Wrapf(err, "store %q", ss.Schema.Name)
			}
			if e.Record == nil {
				e.Record = db.Record{}
			}
			sd.write(e.Record, pk)
		}
		for _, idx := range ss.Schema.Indexes {
			if err := sd.addIndex(idx); err != nil {
				return err
			}
		}
		next[ss.Schema.Name] = sd
	}

	maple.upgradeMu.Lock()
	defer maple.upgradeMu.Unlock()
	current := maple.lockAll(db.ReadWrite)
	maple.swapCatalog(current, next)
	maple.version.Store(snap.Version)
	unlockAll(sortedStores(current), db.ReadWrite)

	Logger.Infof("loaded %d stores at version %d", len(next), snap.Version)
	return nil
}

func readSnapshot(r io.Reader) (*snapshot, error) {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if string(magicBytes) != magicNum {
		return nil, errors.New("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, errors.Newf("unsupported format version: %d (expected %d)", version, formatVersion)
	}

	var nameLen uint8
	if err := binary.Read(br, binary.LittleEndian, &nameLen); err != nil {
		return nil, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(br, name); err != nil {
		return nil, err
	}
	c, err := codec.ByName(string(name))
	if err != nil {
		return nil, err
	}

	var size uint64
	if err := binary.Read(br, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > maxPayload {
		return nil, errors.Newf("snapshot payload too large: %d bytes", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, errors.Wrap(err, "read payload")
	}

	snap := &snapshot{}
	if err := c.Decode(payload, snap); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return snap, nil
}
