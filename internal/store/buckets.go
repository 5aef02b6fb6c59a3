package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultSearchLimit = 10

// Stamp fills the identifier, timestamp and reporting buckets of a record.
// Buckets are computed in loc so that they agree with the quota day.
func Stamp(record DialogRecord, now time.Time, loc *time.Location) DialogRecord {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now.UTC()
	}
	if loc == nil {
		loc = time.UTC
	}
	local := record.CreatedAt.In(loc)
	year, week := local.ISOWeek()
	record.Date = local.Format("2006-01-02")
	record.Week = fmt.Sprintf("%d-%02d", year, week)
	record.Month = local.Format("2006-01")
	return record
}

// prepare stamps records that arrive without buckets, using UTC.
func prepare(record DialogRecord) DialogRecord {
	if record.ID != "" && record.Date != "" && !record.CreatedAt.IsZero() {
		return record
	}
	if record.Date != "" {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}
		return record
	}
	return Stamp(record, time.Now(), time.UTC)
}

// Keywords splits a search phrase into lower-cased terms.
func Keywords(phrase string) []string {
	fields := strings.FieldsFunc(strings.ToLower(phrase), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ',', ';', '，', '；':
			return true
		}
		return false
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func matchesAll(p PromptRecord, keywords []string) bool {
	haystack := strings.ToLower(p.Act + "\n" + p.Prompt)
	for _, kw := range keywords {
		if !strings.Contains(haystack, kw) {
			return false
		}
	}
	return true
}
