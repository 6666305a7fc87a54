package history

import (
	"context"
	"fmt"
	"strings"

	"moodle-assistant/internal/storage"
)

const (
	// NoHistoryText is returned by the digest when there is nothing to show.
	NoHistoryText = "Não há histórico de conversas anteriores para este curso."

	digestHeader     = "Contexto de Conversas Anteriores (mais recentes primeiro):\n\n"
	digestDateLayout = "02/01/2006"
)

// LegacyDigest renders the log as a single text block, newest first.
//
// Deprecated: agents receive structured messages from AgentMessages. The digest
// is kept for tools that still consume plain text.
func (m *Manager) LegacyDigest(ctx context.Context, key storage.Key, maxEntries int) string {
	return FormatDigest(m.load(ctx, key), maxEntries)
}

// FormatDigest walks the log from the newest entry and stops after maxEntries
// entries. Dates are rendered in UTC.
func FormatDigest(h storage.Log, maxEntries int) string {
	if len(h) == 0 || maxEntries <= 0 {
		return NoHistoryText
	}

	var b strings.Builder
	b.WriteString(digestHeader)
	emitted := 0
	for i := len(h) - 1; i >= 0 && emitted < maxEntries; i-- {
		e := h[i]
		date := e.Timestamp.UTC().Format(digestDateLayout)
		switch e.Type {
		case storage.TypeInteraction:
			fmt.Fprintf(&b, "Em %s, o Professor perguntou: \"%s\"\n", date, e.Question)
			fmt.Fprintf(&b, "Assistente respondeu: \"%s\"\n\n", e.Answer)
		case storage.TypeSummary:
			fmt.Fprintf(&b, "Em %s, um resumo de %d interações anteriores indicou:\n\"%s\"\n\n", date, e.SummarizedCount, e.Summary)
		}
		// unknown entry types still use up a slot
		emitted++
	}
	return b.String()
}
