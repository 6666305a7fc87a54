package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"moodle-assistant/internal/storage"
)

// DailyStats summarizes one day of assistant usage across all conversation logs.
type DailyStats struct {
	Date                   string                `json:"date"`
	Questions              int                   `json:"questions"`
	UniqueUsers            int                   `json:"unique_users"`
	SummariesCreated       int                   `json:"summaries_created"`
	SummarizedInteractions int                   `json:"summarized_interactions"`
	StoredLogs             int                   `json:"stored_logs"`
	CourseStats            map[int64]CourseStats `json:"course_stats"`
}

type CourseStats struct {
	CourseID  int64 `json:"course_id"`
	Questions int   `json:"questions"`
	Users     int   `json:"users"`
}

// AnalyzeDailyLogs counts the entries written on targetDate (UTC day).
// Interactions already folded into a summary are only visible through that summary.
func AnalyzeDailyLogs(logs map[storage.Key]storage.Log, targetDate time.Time) *DailyStats {
	day := targetDate.UTC()
	startOfDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:        startOfDay.Format("2006-01-02"),
		StoredLogs:  len(logs),
		CourseStats: make(map[int64]CourseStats),
	}

	uniqueUsers := make(map[int64]bool)
	for key, h := range logs {
		asked := false
		for _, e := range h {
			if e.Timestamp.Before(startOfDay) || !e.Timestamp.Before(endOfDay) {
				continue
			}
			switch e.Type {
			case storage.TypeInteraction:
				stats.Questions++
				cs := stats.CourseStats[key.CourseID]
				cs.CourseID = key.CourseID
				cs.Questions++
				stats.CourseStats[key.CourseID] = cs
				asked = true
			case storage.TypeSummary:
				stats.SummariesCreated++
				stats.SummarizedInteractions += e.SummarizedCount
			}
		}
		if asked {
			uniqueUsers[key.UserID] = true
			cs := stats.CourseStats[key.CourseID]
			cs.Users++
			stats.CourseStats[key.CourseID] = cs
		}
	}

	stats.UniqueUsers = len(uniqueUsers)
	return stats
}

// Collect loads every stored log and analyzes targetDate. Unreadable logs are skipped.
func Collect(ctx context.Context, store storage.Store, targetDate time.Time) (*DailyStats, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list history keys: %w", err)
	}
	logs := make(map[storage.Key]storage.Log, len(keys))
	for _, key := range keys {
		h, err := store.Load(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrCorrupt) {
				log.Printf("⚠️ skipping corrupt history for %s", key)
				continue
			}
			return nil, fmt.Errorf("load history for %s: %w", key, err)
		}
		logs[key] = h
	}
	return AnalyzeDailyLogs(logs, targetDate), nil
}

// GenerateReportSummary renders the report sent to the administrator.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Relatório diário do Assistente Moodle (%s)\n\n", ds.Date)
	fmt.Fprintf(&b, "- Perguntas: %d\n", ds.Questions)
	fmt.Fprintf(&b, "- Professores ativos: %d\n", ds.UniqueUsers)
	fmt.Fprintf(&b, "- Resumos de histórico criados: %d (%d interações)\n", ds.SummariesCreated, ds.SummarizedInteractions)
	fmt.Fprintf(&b, "- Históricos guardados: %d\n", ds.StoredLogs)

	if len(ds.CourseStats) == 0 {
		return b.String()
	}
	ids := make([]int64, 0, len(ds.CourseStats))
	for id := range ds.CourseStats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	b.WriteString("\nPor disciplina:\n")
	for _, id := range ids {
		cs := ds.CourseStats[id]
		fmt.Fprintf(&b, "- Disciplina %d: %d perguntas de %d professores\n", id, cs.Questions, cs.Users)
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
