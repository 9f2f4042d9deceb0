// Package storage owns the store's directory layout and durable file
// mutations: an atomic filesystem provider plus the placement policy that
// maps notes to physical files.
package storage

// Provider is the interface for store file operations. All paths are
// slash-separated and relative to the store root.
type Provider interface {
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Enumerate returns every record-bearing file under dir, excluding the
	// reserved index subtree. Paths come back sorted for restartability.
	Enumerate(dir string) ([]string, error)
}
