//go:build sqlite_vec

package storage

// Fiche vectors are searched inside SQLite through the sqlite-vec extension:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./cmd/ficherag

import _ "github.com/mattn/go-sqlite3"

const (
	DriverName               = "sqlite3"
	VectorExtensionAvailable = true
	BuildMode                = "cgo"
)
