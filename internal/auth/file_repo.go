package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository keeps sessions in one JSON file. The file holds user tokens,
// so it is readable by the owner only.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRepository) Upsert(session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i, s := range sessions {
		if s.ID == session.ID {
			sessions[i] = session
			updated = true
			break
		}
	}
	if !updated {
		sessions = append(sessions, session)
	}
	return r.saveUnlocked(sessions)
}

func (r *FileRepository) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	out := sessions[:0]
	for _, s := range sessions {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return r.saveUnlocked(out)
}

// loadUnlocked treats an empty or malformed file as no sessions.
func (r *FileRepository) loadUnlocked() ([]Session, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return []Session{}, nil
	}
	return sessions, nil
}

func (r *FileRepository) saveUnlocked(sessions []Session) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	return nil
}
