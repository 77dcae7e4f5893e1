// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories with the storage package.
//
// In other words, importing this package makes the following storage kinds
// available at runtime:
//
//   - "filepart" (searchrollup/internal/storage/filepart)
//   - "postgres" (searchrollup/internal/storage/postgres)
//   - "sqlite"   (searchrollup/internal/storage/sqlite)
//
// Typical usage (in cmd/searchrollup/main.go or a similar wiring layer):
//
//	import (
//	    _ "searchrollup/internal/storage/all" // enable all built-in backends
//
//	    "searchrollup/internal/storage"
//	)
//
// From that point on, the caller can remain fully backend-agnostic:
// storage.New picks the concrete implementation from Config.Kind, and
// everything downstream goes through the storage.Repository interface.
//
// Note: if you want a binary that supports only a subset of backends, define
// an alternative wiring package that imports only the required backends
// instead of this one.
package all

import (
	_ "searchrollup/internal/storage/filepart"
	_ "searchrollup/internal/storage/postgres"
	_ "searchrollup/internal/storage/sqlite"
)
