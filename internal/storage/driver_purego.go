//go:build purego || !sqlite_vec

package storage

// Default build. No C toolchain is needed and cosine similarity is computed
// in Go over the stored blobs (see vector_ops.go):
//
//	CGO_ENABLED=0 go build -tags purego ./cmd/ficherag

import _ "modernc.org/sqlite"

const (
	DriverName               = "sqlite"
	VectorExtensionAvailable = false
	BuildMode                = "purego"
)
