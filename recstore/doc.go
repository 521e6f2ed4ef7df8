// Package recstore stores registration records (name, last name, email)
// together with an access key and answers membership queries.
//
// There are two backends behind the [Store] interface:
//   - [FileStore] appends one line per entry to a text file (default: "archivo.txt")
//   - [SQLStore] inserts one row per entry into a database (SQLite by default)
//
// Use [Open] to pick one based on configuration.
//
// # File Format
//
// Each line is:
//
//	<name> <last_name> <email> <key>
//
// Fields that contain spaces or newlines are written as Go quoted strings
// so that they can be split back reliably:
//
//	"Ana Maria" Diaz ana@x.com K1
//
// The file is only ever appended to. Saving the same entry twice stores
// two lines and queries return the first match in insertion order.
//
// # Basic Usage
//
//	s := &recstore.FileStore{DataDir: "."}
//	err := recstore.OpenFileStore(s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rec := recstore.Record{Name: "Ana", LastName: "Diaz", Email: "ana@x.com"}
//	err = s.Save(ctx, rec, "K1")
//	ok, err := s.KeyExists(ctx, "K1")
//	key, err := s.GetKeyForUser(ctx, rec)
package recstore
