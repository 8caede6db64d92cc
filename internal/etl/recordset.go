package etl

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	CustomerAnalytics   = "customer_analytics"
	ProductSalesSummary = "product_sales_summary"
	DailySalesSummary   = "daily_sales_summary"
)

// RecordSets lists the sets in the order they are extracted and loaded.
var RecordSets = []string{CustomerAnalytics, ProductSalesSummary, DailySalesSummary}

const (
	DateLayout       = "2006-01-02"
	artifactFileName = "transformed_data.json"
)

// Record is one flat row; keys are source column names.
type Record = map[string]any

// Artifact is the batch document written by Extract and read by Load.
type Artifact map[string][]Record

func (a Artifact) Count() int {
	n := 0
	for _, rs := range a {
		n += len(rs)
	}
	return n
}

func (a Artifact) Counts() map[string]int {
	out := make(map[string]int, len(a))
	for name, rs := range a {
		out[name] = len(rs)
	}
	return out
}

// ArtifactKey returns <prefix><YYYY-MM-DD>/transformed_data.json.
func ArtifactKey(prefix string, date time.Time) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return path.Join(date.Format(DateLayout), artifactFileName)
	}
	return path.Join(prefix, date.Format(DateLayout), artifactFileName)
}

// ParseDate accepts YYYY-MM-DD and returns midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Yesterday returns the calendar day before now in loc, at midnight.
func Yesterday(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, loc)
}
