// Package grib handles the NBM archive's .idx sidecars and point extraction
// from byte-sliced GRIB2 records.
package grib

import (
	"fmt"
	"strconv"
	"strings"
)

// IndexEntry is one line of a GRIB index file: number:offset:...:key:...
type IndexEntry struct {
	Number int
	Offset int64
	Key    string // everything after the offset column, colons preserved
}

// ParseIndex parses an .idx sidecar. Malformed lines are skipped.
func ParseIndex(text string) []IndexEntry {
	var entries []IndexEntry
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}
		number, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		offset, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, IndexEntry{Number: number, Offset: offset, Key: parts[2]})
	}
	return entries
}

// FindRange locates the first non-"std dev" record whose key contains the
// delimited token (e.g. ":TMAX:") and returns its byte range. The range ends
// one byte before the next record's offset; end is -1 for the last record
// (read to EOF).
func FindRange(entries []IndexEntry, token string) (start, end int64, err error) {
	for i, entry := range entries {
		if !strings.Contains(entry.Key, token) || strings.Contains(entry.Key, "std dev") {
			continue
		}
		start = entry.Offset
		end = int64(-1)
		if i+1 < len(entries) {
			end = entries[i+1].Offset - 1
		}
		return start, end, nil
	}
	return 0, 0, fmt.Errorf("field %s not present in GRIB index", token)
}
