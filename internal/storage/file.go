package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var historyFileRe = regexp.MustCompile(`^course_(-?\d+)_user_(-?\d+)_history\.json$`)

// FileStore keeps one JSON document per (user, course) pair inside dir.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	s := &FileStore{dir: dir}
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure history dir: %w", err)
	}
	return nil
}

func (s *FileStore) path(key Key) string {
	return filepath.Join(s.dir, fmt.Sprintf("course_%d_user_%d_history.json", key.CourseID, key.UserID))
}

func (s *FileStore) Load(_ context.Context, key Key) (Log, error) {
	if err := s.ensureDir(); err != nil {
		return Log{}, err
	}
	p := s.path(key)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Log{}, nil
		}
		return Log{}, fmt.Errorf("read %s: %w", p, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Log{}, nil
	}
	var log Log
	if err := json.Unmarshal(data, &log); err != nil {
		return Log{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, p, err)
	}
	if log == nil {
		log = Log{}
	}
	return log, nil
}

// Save writes to a temp file in the same directory and renames it over the
// target, so readers see either the old or the new log.
func (s *FileStore) Save(_ context.Context, key Key, log Log) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if log == nil {
		log = Log{}
	}
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		cleanup()
		return fmt.Errorf("rename history: %w", err)
	}
	return nil
}

func (s *FileStore) Keys(_ context.Context) ([]Key, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	items, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list history dir: %w", err)
	}
	var keys []Key
	for _, it := range items {
		if it.IsDir() {
			continue
		}
		m := historyFileRe.FindStringSubmatch(it.Name())
		if m == nil {
			continue
		}
		courseID, err1 := strconv.ParseInt(m[1], 10, 64)
		userID, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		keys = append(keys, Key{UserID: userID, CourseID: courseID})
	}
	sortKeys(keys)
	return keys, nil
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].UserID != keys[j].UserID {
			return keys[i].UserID < keys[j].UserID
		}
		return keys[i].CourseID < keys[j].CourseID
	})
}
