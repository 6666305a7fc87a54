package moodle

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

const maxDescriptionRunes = 300

// FormatCourseContext renders course contents as plain text for the agent.
// Hidden sections and modules are skipped.
func FormatCourseContext(courseName string, sections []Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Disciplina: %s\n", courseName)
	for _, s := range sections {
		if hidden(s.Visible) {
			continue
		}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = fmt.Sprintf("Secção %d", s.ID)
		}
		fmt.Fprintf(&b, "\n## %s\n", name)
		if summary := plainText(s.Summary); summary != "" {
			b.WriteString(summary)
			b.WriteString("\n")
		}
		for _, m := range s.Modules {
			if hidden(m.Visible) {
				continue
			}
			fmt.Fprintf(&b, "- [%s] %s", m.ModName, strings.TrimSpace(m.Name))
			if desc := truncate(plainText(m.Description), maxDescriptionRunes); desc != "" {
				fmt.Fprintf(&b, ": %s", desc)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// plainText drops markup and collapses whitespace.
func plainText(s string) string {
	if s == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var parts []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return strings.Join(strings.Fields(s), " ")
			}
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		case html.TextToken:
			parts = append(parts, string(z.Text()))
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
