// Package store manages named databases on disk.
//
// A Registry maps database names to engines. Each database lives in one
// snapshot file (<data dir>/<name>.ikv) written with Engine.Save. Open loads
// an existing database and keeps the engine cached, so later calls share
// the same engine. Databases are only created through Build, which applies
// a schema (see package schema) and saves the result:
//
//	reg, _ := store.NewRegistry("./data", func() db.Engine { return maple.NewMapleDB(nil) }, nil)
//	_, err := reg.Build("contacts", 1, map[string]string{"friends": "++id, name, !email"})
//	qdb, err := reg.Query("contacts")
//	friends, err := qdb.Store("friends")
//
// Changes made through an engine stay in memory until Save or Close.
package store
