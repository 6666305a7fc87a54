package history

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"moodle-assistant/internal/storage"
)

const (
	DefaultSummaryTrigger = 40
	DefaultBatchSize      = 30
	DefaultHardCap        = 50
)

// SummaryUnavailable replaces the summary text when the summarizer fails.
const SummaryUnavailable = "Resumo indisponível: erro ao gerar resumo do histórico."

// Summarizer condenses a prompt into a short text. It may fail.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Policy bounds a log: once SummaryTrigger interactions accumulate, the oldest
// BatchSize are folded into one summary; a log longer than HardCap loses its
// oldest interactions first, then its oldest summaries.
type Policy struct {
	SummaryTrigger int
	BatchSize      int
	HardCap        int
}

func DefaultPolicy() Policy {
	return Policy{
		SummaryTrigger: DefaultSummaryTrigger,
		BatchSize:      DefaultBatchSize,
		HardCap:        DefaultHardCap,
	}
}

func (p Policy) Validate() error {
	if p.BatchSize < 1 || p.BatchSize > p.SummaryTrigger || p.SummaryTrigger > p.HardCap {
		return fmt.Errorf("invalid history policy: need 1 <= batch (%d) <= trigger (%d) <= cap (%d)",
			p.BatchSize, p.SummaryTrigger, p.HardCap)
	}
	return nil
}

// Apply runs compaction then eviction on a log that just received an append.
func (p Policy) Apply(ctx context.Context, key storage.Key, h storage.Log, s Summarizer, now time.Time) storage.Log {
	if p.needsCompaction(h) {
		h = p.compact(ctx, key, h, s, now)
	}
	if len(h) > p.HardCap {
		before := len(h)
		h = p.evict(h)
		log.Printf("✂️ evicted %d history entries for %s", before-len(h), key)
	}
	return h
}

func (p Policy) needsCompaction(h storage.Log) bool {
	return len(h.Interactions()) >= p.SummaryTrigger
}

// compact returns [existing summaries] + [new summary] + [interactions left out of the batch].
func (p Policy) compact(ctx context.Context, key storage.Key, h storage.Log, s Summarizer, now time.Time) storage.Log {
	interactions := h.Interactions()
	summaries := h.Summaries()
	batch := interactions[:p.BatchSize]
	rest := interactions[p.BatchSize:]

	text := summarizeBatch(ctx, key, batch, s)

	out := make(storage.Log, 0, len(summaries)+1+len(rest))
	out = append(out, summaries...)
	out = append(out, storage.NewSummary(now, text, batch))
	out = append(out, rest...)
	log.Printf("🗜️ folded %d interactions into a summary for %s", len(batch), key)
	return out
}

func summarizeBatch(ctx context.Context, key storage.Key, batch []storage.Entry, s Summarizer) string {
	if s == nil {
		return SummaryUnavailable
	}
	log.Printf("📝 requesting summary of %d interactions for %s", len(batch), key)
	text, err := s.Summarize(ctx, BuildSummaryPrompt(batch))
	if err != nil {
		log.Printf("❌ failed to summarize history for %s: %v", key, err)
		return SummaryUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return SummaryUnavailable
	}
	return text
}

func (p Policy) evict(h storage.Log) storage.Log {
	excess := len(h) - p.HardCap
	if excess <= 0 {
		return h
	}
	interactions := h.Interactions()
	summaries := h.Summaries()

	dropInteractions := min(excess, len(interactions))
	dropSummaries := min(excess-dropInteractions, len(summaries))

	kept := make(storage.Log, 0, p.HardCap)
	kept = append(kept, summaries[dropSummaries:]...)
	kept = append(kept, interactions[dropInteractions:]...)
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].SortTime().Before(kept[j].SortTime())
	})
	return kept
}

// BuildSummaryPrompt renders the batch of interactions for the summarizer.
func BuildSummaryPrompt(batch []storage.Entry) string {
	var b strings.Builder
	b.WriteString("A seguir está uma série de interações entre um Professor e um Assistente de IA sobre um curso Moodle.\n")
	b.WriteString("Crie um resumo conciso dos principais tópicos discutidos, decisões tomadas ou informações importantes trocadas.\n")
	b.WriteString("O objetivo é manter a essência da conversa para referência futura, sem todos os detalhes.\n\n")
	b.WriteString("Conversa para resumir:\n---\n")
	for i, e := range batch {
		fmt.Fprintf(&b, "Interação %d:\nP: %s\nR: %s\n\n", i+1, e.Question, e.Answer)
	}
	b.WriteString("---\n\nResumo conciso:")
	return b.String()
}
