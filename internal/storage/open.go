package storage

import (
	"fmt"
	"io"
	"log"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the store selected by backend. dir is used by the file backend,
// dbPath by the sqlite one. Close the result through CloseStore.
func Open(backend, dir, dbPath string) (Store, error) {
	switch backend {
	case BackendFile, "":
		s, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		log.Printf("📁 conversation history stored as files under %s", dir)
		return s, nil
	case BackendSQLite:
		s, err := OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		log.Printf("🗄️ conversation history stored in sqlite at %s", dbPath)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown history backend: %s", backend)
	}
}

// CloseStore releases resources held by stores that own any.
func CloseStore(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
