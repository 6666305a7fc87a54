package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	TypeInteraction = "interaction"
	TypeSummary     = "summary"
)

// ErrCorrupt is returned by Load when a persisted record exists but cannot be decoded.
// Callers still receive an empty Log alongside it.
var ErrCorrupt = errors.New("history record is corrupt")

// Key addresses one conversation log. Two users never share a log,
// even for the same course.
type Key struct {
	UserID   int64
	CourseID int64
}

func (k Key) String() string {
	return fmt.Sprintf("user=%d course=%d", k.UserID, k.CourseID)
}

// Entry is either a question/answer interaction or a summary that replaced
// a batch of older interactions. Entries are immutable once written.
type Entry struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`

	Summary         string     `json:"summary,omitempty"`
	SummarizedCount int        `json:"summarized_count,omitempty"`
	CoversFrom      *time.Time `json:"covers_from,omitempty"`
	CoversUntil     *time.Time `json:"covers_until,omitempty"`
}

func NewInteraction(ts time.Time, question, answer string) Entry {
	return Entry{Type: TypeInteraction, Timestamp: ts, Question: question, Answer: answer}
}

// NewSummary builds a summary entry for the folded interactions.
func NewSummary(ts time.Time, text string, folded []Entry) Entry {
	e := Entry{Type: TypeSummary, Timestamp: ts, Summary: text, SummarizedCount: len(folded)}
	if len(folded) > 0 {
		from := folded[0].Timestamp
		until := folded[len(folded)-1].Timestamp
		e.CoversFrom = &from
		e.CoversUntil = &until
	}
	return e
}

func (e Entry) IsInteraction() bool { return e.Type == TypeInteraction }
func (e Entry) IsSummary() bool     { return e.Type == TypeSummary }

// SortTime is the chronological position of the entry. A summary sits where
// the last interaction it folded used to be, not at its creation time.
func (e Entry) SortTime() time.Time {
	if e.IsSummary() && e.CoversUntil != nil {
		return *e.CoversUntil
	}
	return e.Timestamp
}

// Log is the ordered record of one (user, course) pair, oldest first.
type Log []Entry

func (l Log) Interactions() []Entry { return l.filter(TypeInteraction) }
func (l Log) Summaries() []Entry    { return l.filter(TypeSummary) }

func (l Log) filter(typ string) []Entry {
	out := make([]Entry, 0, len(l))
	for _, e := range l {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a copy that does not share the backing array.
func (l Log) Clone() Log {
	out := make(Log, len(l))
	copy(out, l)
	return out
}

// Store abstracts persistence of conversation logs.
// Load returns an empty Log and a nil error when nothing was stored for the key.
// Save replaces the whole log; a reader never observes a partial write.
// Implementations must be safe for concurrent use across different keys.
type Store interface {
	Load(ctx context.Context, key Key) (Log, error)
	Save(ctx context.Context, key Key, log Log) error
	Keys(ctx context.Context) ([]Key, error)
}
