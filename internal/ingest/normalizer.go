package ingest

import (
	"encoding/json"
	"strings"
	"time"
)

// Normalize converts one raw log line plus its metadata context into a
// normalized record. It is pure and never fails past its boundary: a line
// that is not valid JSON after cleanup becomes the parse-failure variant.
// The second return value is false when the line is empty after cleanup and
// no record should be emitted at all.
//
// The steps run in a fixed, load-bearing order: array-punctuation cleanup,
// JSON parse, cluster-time pruning (on the original $-prefixed names),
// $-prefix stripping, timestamp derivation, metadata attachment.
func Normalize(rawLine string, meta Metadata) (Record, bool) {
	cleaned := cleanLinePunctuation(rawLine)
	if cleaned == "" {
		return nil, false
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		failure := Record{
			FieldOriginalLine: rawLine,
			FieldParseError:   true,
		}
		meta.attach(failure)
		return failure, true
	}

	// Order dependency: the incomplete-cluster-time check matches the
	// original field names and must run before the rename pass.
	doc = removeIncompleteClusterTime(doc)
	doc = stripDollarKeys(doc).(map[string]interface{})

	logTS := extractLogTimestamp(doc)
	queryStart := deriveQueryStartTime(doc, logTS)

	record := Record(doc)
	record[FieldLogTimestamp] = timeOrNil(logTS)
	record[FieldQueryStartTime] = timeOrNil(queryStart)
	meta.attach(record)
	return record, true
}

// cleanLinePunctuation trims the line and strips the array punctuation left
// by JSON-array exports: a single leading '[', then a single trailing ','
// and a single trailing ']'.
func cleanLinePunctuation(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ","))
	s = strings.TrimSpace(strings.TrimSuffix(s, "]"))
	return s
}

// extractLogTimestamp derives the log timestamp from the t.date field
// (originally t.$date) or from a bare string t. Absence or an unparsable
// value yields nil.
func extractLogTimestamp(doc map[string]interface{}) *time.Time {
	switch t := doc["t"].(type) {
	case map[string]interface{}:
		if s, ok := t["date"].(string); ok {
			return parseLogTime(s)
		}
	case string:
		return parseLogTime(t)
	}
	return nil
}

// logTimeFormats covers the timestamp renditions mongod emits: RFC3339 with
// nanoseconds, and the iso8601-local form whose zone offset has no colon.
var logTimeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
}

func parseLogTime(s string) *time.Time {
	for _, layout := range logTimeFormats {
		if ts, err := time.Parse(layout, s); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

// deriveQueryStartTime resolves the query start time with the documented
// fallback chain: a well-formed cluster-time seconds value wins, else
// logTimestamp minus attr.durationMillis, else logTimestamp itself (which
// may be nil).
func deriveQueryStartTime(doc map[string]interface{}, logTS *time.Time) *time.Time {
	if sec, ok := clusterTimeSeconds(doc); ok {
		ts := time.UnixMilli(int64(sec * 1000)).UTC()
		return &ts
	}
	if logTS != nil {
		if millis, ok := durationMillis(doc); ok {
			ts := logTS.Add(-time.Duration(millis * float64(time.Millisecond))).UTC()
			return &ts
		}
	}
	return logTS
}

// clusterTimeSeconds reads attr.command.clusterTime.clusterTime.timestamp.t
// (the path after $-prefix stripping). The boolean is false unless the full
// path exists with a numeric leaf.
func clusterTimeSeconds(doc map[string]interface{}) (float64, bool) {
	attr, ok := doc["attr"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	cmd, ok := attr["command"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	outer, ok := cmd["clusterTime"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	inner, ok := outer["clusterTime"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	ts, ok := inner["timestamp"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	sec, ok := ts["t"].(float64)
	return sec, ok
}

func durationMillis(doc map[string]interface{}) (float64, bool) {
	attr, ok := doc["attr"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	millis, ok := attr["durationMillis"].(float64)
	return millis, ok
}

func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
