// Package logicalfile holds the directory of PeSIT logical files a server
// exposes: the mapping from the logical name a partner names at SELECT to a
// backing filesystem location and its default transfer attributes.
package logicalfile

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no record for the given name.
var ErrNotFound = errors.New("logicalfile: not found")

// Record describes one logical file a partner may SELECT.
type Record struct {
	LogicalName string

	// FilenamePattern resolves a concrete filename from the peer-supplied
	// PI_12 value, e.g. "{name}" or "in/{name}.dat". Handlers reject any
	// resolution that escapes BackingRoot.
	FilenamePattern string
	BackingRoot     string

	DefaultFileType     string
	DefaultRecordFormat string
	DefaultRecordLength uint32

	MaxEntitySize int64 // 0 means unlimited

	Enabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store resolves a logical file name presented at CREATE/SELECT.
type Store interface {
	Get(name string) (*Record, error)
	List() ([]*Record, error)
}
