package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/runoshun/gastown/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseStatuses(values []string) ([]domain.BeadStatus, error) {
	statuses := make([]domain.BeadStatus, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			s := domain.BeadStatus(part)
			if !s.IsValid() {
				return nil, fmt.Errorf("invalid status %q (want one of %s)", part, statusNames())
			}
			statuses = append(statuses, s)
		}
	}
	return statuses, nil
}

func statusNames() string {
	names := make([]string, 0, len(domain.AllBeadStatuses()))
	for _, s := range domain.AllBeadStatuses() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
