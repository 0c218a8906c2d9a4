package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedBackend is returned for store kinds other than memory and sqlite.
var ErrUnsupportedBackend = errors.New("unsupported store backend")

// NewStore opens the genome/run store named by kind. Kind is matched case
// insensitively; blank selects the in-memory store.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		path := strings.TrimSpace(sqlitePath)
		if path == "" {
			return nil, errors.New("sqlite store requires a database path")
		}
		return newSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, kind)
	}
}

// CloseIfSupported releases backends that hold a handle, such as sqlite.
func CloseIfSupported(store Store) error {
	if store == nil {
		return nil
	}
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
