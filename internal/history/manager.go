package history

import (
	"context"
	"fmt"
	"log"
	"time"

	"moodle-assistant/internal/llm"
	"moodle-assistant/internal/storage"
)

// DefaultAgentWindow is how many recent interactions are fed back to the agent
// (two messages each).
const DefaultAgentWindow = 5

// Manager is the read/append surface over persisted conversation logs.
// Appends to one (user, course) key are serialized; different keys proceed independently.
type Manager struct {
	store      storage.Store
	summarizer Summarizer
	policy     Policy
	now        func() time.Time
	locks      *keyLocks
}

type Option func(*Manager)

func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager wires a store and an optional summarizer. A nil summarizer makes
// compaction write the placeholder summary. The policy must satisfy Validate.
func NewManager(store storage.Store, summarizer Summarizer, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:      store,
		summarizer: summarizer,
		policy:     DefaultPolicy(),
		now:        time.Now,
		locks:      newKeyLocks(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.policy.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// load never fails the caller: unreadable history degrades to an empty log.
func (m *Manager) load(ctx context.Context, key storage.Key) storage.Log {
	h, err := m.store.Load(ctx, key)
	if err != nil {
		log.Printf("⚠️ failed to load history for %s, continuing with empty history: %v", key, err)
		return storage.Log{}
	}
	return h
}

// AppendInteraction records one question/answer turn and applies the retention
// policy inline. A returned error means the turn was not persisted.
func (m *Manager) AppendInteraction(ctx context.Context, key storage.Key, question, answer string) error {
	unlock := m.locks.lock(key)
	defer unlock()

	h := m.load(ctx, key)
	h = append(h, storage.NewInteraction(m.now().UTC(), question, answer))
	h = m.policy.Apply(ctx, key, h, m.summarizer, m.now().UTC())

	if err := m.store.Save(ctx, key, h); err != nil {
		log.Printf("❌ failed to save history for %s: %v", key, err)
		return fmt.Errorf("save history: %w", err)
	}
	log.Printf("💾 history saved for %s (%d entries)", key, len(h))
	return nil
}

// Log returns the full log for the key.
func (m *Manager) Log(ctx context.Context, key storage.Key) storage.Log {
	return m.load(ctx, key)
}

// RecentInteractions returns up to limit of the newest interactions, oldest first.
// Summaries are never included.
func (m *Manager) RecentInteractions(ctx context.Context, key storage.Key, limit int) []storage.Entry {
	if limit <= 0 {
		return []storage.Entry{}
	}
	interactions := m.load(ctx, key).Interactions()
	if len(interactions) > limit {
		interactions = interactions[len(interactions)-limit:]
	}
	return interactions
}

// AgentMessages projects the recent window into user/assistant message pairs.
func (m *Manager) AgentMessages(ctx context.Context, key storage.Key, maxInteractions int) []llm.Message {
	recent := m.RecentInteractions(ctx, key, maxInteractions)
	out := make([]llm.Message, 0, 2*len(recent))
	for _, e := range recent {
		out = append(out,
			llm.Message{Role: llm.RoleUser, Content: e.Question},
			llm.Message{Role: llm.RoleAssistant, Content: e.Answer},
		)
	}
	return out
}
