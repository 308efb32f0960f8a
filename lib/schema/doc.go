// Package schema turns compact store definitions into engine upgrades.
//
// A definition such as "++id, name, !email, *tags, last+first" describes the
// primary key followed by the indexes of one store (see Parse). Build applies
// a set of definitions as one Engine.Upgrade, and File/LoadFile read them
// from YAML:
//
//	version: 1
//	stores:
//	  friends: "++id, name, !email, *tags"
//	  events: "@id, at, *participants"
package schema
