package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goodtune/kassist/internal/storage"
)

// Report renders cumulative usage per category. Speech is reported in
// seconds and queries as a call count.
func (l *Ledger) Report() string {
	l.mu.Lock()
	categories := make(map[Category]float64, len(l.categories)+2)
	for cat, v := range l.categories {
		categories[cat] = v
	}
	l.mu.Unlock()

	return formatReport(categories)
}

func formatReport(categories map[Category]float64) string {
	var b strings.Builder
	b.WriteString("API Usage Stats:\n")

	fmt.Fprintf(&b, "%s: %.2f seconds\n", CategoryVoice, categories[CategoryVoice])
	fmt.Fprintf(&b, "%s: %d calls\n", CategoryQuery, int64(categories[CategoryQuery]))

	var rest []string
	for cat := range categories {
		if cat != CategoryVoice && cat != CategoryQuery {
			rest = append(rest, string(cat))
		}
	}
	sort.Strings(rest)
	for _, cat := range rest {
		fmt.Fprintf(&b, "%s: %.2f\n", cat, categories[Category(cat)])
	}

	return b.String()
}

// WriteReport writes the report to path, replacing any previous report, and
// returns the text written.
func (l *Ledger) WriteReport(path string) (string, error) {
	l.reportMu.Lock()
	defer l.reportMu.Unlock()

	report := l.Report()

	if err := storage.EnsureParentDir(path); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Clean(path), []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("failed to write usage report: %w", err)
	}

	l.logger.Debug().Str("path", path).Msg("Usage report written")
	return report, nil
}
