package schema

import (
	"os"
	"sort"
	"strings"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"gopkg.in/yaml.v3"
)

var Logger = logger.GetLogger("schema")

// ErrSyntax is returned for malformed store definitions.
var ErrSyntax = errors.New("schema syntax error")

// --------------------------------------------------------------------------
// Definitions
// --------------------------------------------------------------------------

// Parse converts a store definition into a store schema.
//
// A definition is a comma separated list. The first element describes the
// primary key, all following elements describe indexes:
//
//	++id       auto increment primary key at "id" (also written @id)
//	id         in-line primary key at "id"
//	++         auto increment out-of-line primary key
//	(empty)    out-of-line primary key supplied on every write
//	name       index on "name"
//	!email     unique index
//	*tags      multi-entry index
//	a+b        compound index on [a, b], named "a+b"
//	addr.city  index on a nested field
func Parse(name, def string) (db.StoreSchema, error) {
	if name == "" {
		return db.StoreSchema{}, errors.Wrap(ErrSyntax, "empty store name")
	}
	s := db.StoreSchema{Name: name}
	parts := strings.Split(def, ",")

	primary := strings.TrimSpace(parts[0])
	switch {
	case strings.HasPrefix(primary, "++"):
		s.AutoIncrement = true
		primary = primary[2:]
	case strings.HasPrefix(primary, "@"):
		s.AutoIncrement = true
		primary = primary[1:]
	}
	if primary != "" {
		kp, err := parseKeyPath(primary)
		if err != nil {
			return db.StoreSchema{}, errors.Wrapf(err, "store %q: primary key", name)
		}
		if s.AutoIncrement && kp.IsCompound() {
			return db.StoreSchema{}, errors.Wrapf(ErrSyntax, "store %q: compound primary key cannot auto increment", name)
		}
		s.KeyPath = kp
	}

	seen := map[string]bool{}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := db.IndexSchema{}
		switch part[0] {
		case '!':
			idx.Unique = true
			part = part[1:]
		case '*':
			idx.MultiEntry = true
			part = part[1:]
		}
		kp, err := parseKeyPath(part)
		if err != nil {
			return db.StoreSchema{}, errors.Wrapf(err, "store %q: index %q", name, part)
		}
		if idx.MultiEntry && kp.IsCompound() {
			return db.StoreSchema{}, errors.Wrapf(ErrSyntax, "store %q: multi-entry index %q cannot be compound", name, part)
		}
		idx.Name = part
		idx.KeyPath = kp
		if seen[idx.Name] {
			return db.StoreSchema{}, errors.Wrapf(ErrSyntax, "store %q: duplicate index %q", name, idx.Name)
		}
		seen[idx.Name] = true
		s.Indexes = append(s.Indexes, idx)
	}
	return s, nil
}

func parseKeyPath(s string) (db.KeyPath, error) {
	fields := strings.Split(s, "+")
	kp := make(db.KeyPath, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || strings.ContainsAny(f, "!*@ ") || strings.HasPrefix(f, ".") || strings.HasSuffix(f, ".") {
			return nil, errors.Wrapf(ErrSyntax, "invalid key path %q", s)
		}
		kp = append(kp, f)
	}
	return kp, nil
}

// Describe renders a store schema as a definition accepted by Parse.
func Describe(s db.StoreSchema) string {
	parts := make([]string, 0, len(s.Indexes)+1)
	primary := strings.Join(s.KeyPath, "+")
	if s.AutoIncrement {
		primary = "++" + primary
	}
	parts = append(parts, primary)
	for _, idx := range s.Indexes {
		p := strings.Join(idx.KeyPath, "+")
		switch {
		case idx.Unique:
			p = "!" + p
		case idx.MultiEntry:
			p = "*" + p
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}

// --------------------------------------------------------------------------
// Building
// --------------------------------------------------------------------------

// Build upgrades the engine to version and (re)creates every store in defs.
// Stores that already exist are dropped together with their records, stores
// not named in defs are kept. All definitions are parsed before the engine is
// touched. A version that is not greater than the engine's version is
// rejected with db.ErrVersion.
func Build(engine db.Engine, version uint64, defs map[string]string) error {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]db.StoreSchema, 0, len(names))
	for _, name := range names {
		s, err := Parse(name, defs[name])
		if err != nil {
			return err
		}
		schemas = append(schemas, s)
	}

	return engine.Upgrade(version, func(u db.Upgrader) error {
		existing := map[string]bool{}
		for _, name := range u.StoreNames() {
			existing[name] = true
		}
		for _, s := range schemas {
			if existing[s.Name] {
				Logger.Infof("dropping store %q to apply the new definition", s.Name)
				if err := u.DeleteStore(s.Name); err != nil {
					return err
				}
			}
			if err := u.CreateStore(s.Name, s.KeyPath, s.AutoIncrement); err != nil {
				return err
			}
			for _, idx := range s.Indexes {
				if err := u.CreateIndex(s.Name, idx); err != nil {
					return err
				}
			}
			Logger.Debugf("created store %q (%s)", s.Name, Describe(s))
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Schema files
// --------------------------------------------------------------------------

// File is the YAML form of a schema:
//
//	version: 2
//	stores:
//	  friends: "++id, name, !email, *tags"
type File struct {
	Version uint64            `yaml:"version"`
	Stores  map[string]string `yaml:"stores"`
}

// ParseFile decodes a YAML schema and validates every definition.
func ParseFile(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, errors.Wrap(err, "decode schema file")
	}
	if f.Version == 0 {
		return nil, errors.Wrap(ErrSyntax, "schema file: version must be greater than 0")
	}
	if len(f.Stores) == 0 {
		return nil, errors.Wrap(ErrSyntax, "schema file: no stores defined")
	}
	for name, def := range f.Stores {
		if _, err := Parse(name, def); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// LoadFile reads and decodes the YAML schema file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schema file %q", path)
	}
	return ParseFile(data)
}

// Apply builds the schema of f on engine.
func (f *File) Apply(engine db.Engine) error {
	return Build(engine, f.Version, f.Stores)
}
