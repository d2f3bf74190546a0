package query

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
)

const (
	trendBuckets    = 12
	trendBucketSpan = 30 * 24 * time.Hour
	trendWindow     = 365 * 24 * time.Hour
	monthLayout     = "2006-01"

	defaultCurrency = "USD"
	uncategorized   = "Uncategorized"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseDate parses the ISO dates produced by extraction. ok is false for
// anything else.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ComputeStats derives the dossier headline numbers. total_value sums the
// first usable amount of each document.
func ComputeStats(docs []common.Document) common.DossierStats {
	stats := common.DossierStats{TotalDocuments: len(docs)}

	var total float64
	var first, last time.Time
	observe := func(t time.Time) {
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if last.IsZero() || t.After(last) {
			last = t
		}
	}

	for _, doc := range docs {
		observe(doc.CreatedAt)

		data, err := common.ParseExtractedData(doc.ExtractedJSON)
		if err != nil || data == nil {
			continue
		}
		if amount := data.FirstAmount(); amount != nil {
			total += *amount.Value
			if stats.Currency == "" && amount.Currency != "" {
				stats.Currency = amount.Currency
			}
		}
		for _, d := range data.Dates {
			if t, ok := ParseDate(d.Date); ok {
				observe(t)
			}
		}
	}

	if !first.IsZero() {
		f, l := first.UTC(), last.UTC()
		stats.FirstInteraction = &f
		stats.LastInteraction = &l
	}
	if rounded := math.Round(total*100) / 100; rounded != 0 {
		stats.TotalValue = &rounded
	}
	if stats.Currency == "" {
		stats.Currency = defaultCurrency
	}
	return stats
}

// ActivityTrend counts documents per month over roughly the last year. The
// twelve seeded buckets are the months of now minus i*30 days for i in
// 11..0. Documents within 365 days before now whose month was not seeded
// get their own bucket; future-dated documents outside the seeded months are
// dropped.
func ActivityTrend(docs []common.Document, now time.Time) []common.TrendPoint {
	now = now.UTC()
	counts := make(map[string]int, trendBuckets)
	for i := trendBuckets - 1; i >= 0; i-- {
		counts[now.Add(-time.Duration(i)*trendBucketSpan).Format(monthLayout)] = 0
	}

	for _, doc := range docs {
		month := doc.CreatedAt.UTC().Format(monthLayout)
		if _, ok := counts[month]; ok {
			counts[month]++
			continue
		}
		if !doc.CreatedAt.After(now) && now.Sub(doc.CreatedAt) <= trendWindow {
			counts[month]++
		}
	}

	out := make([]common.TrendPoint, 0, len(counts))
	for month, count := range counts {
		out = append(out, common.TrendPoint{Month: month, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// TypeDistribution counts documents per doc_type, most frequent first.
func TypeDistribution(docs []common.Document) []common.TypeCount {
	counts := map[string]int{}
	for _, doc := range docs {
		t := uncategorized
		if doc.DocType != nil && strings.TrimSpace(*doc.DocType) != "" {
			t = *doc.DocType
		}
		counts[t]++
	}
	out := make([]common.TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, common.TypeCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}
