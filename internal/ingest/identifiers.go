package ingest

import (
	"regexp"
	"strings"
)

var (
	bareID  = regexp.MustCompile(`^\d+$`)
	itemURL = regexp.MustCompile(`^https?://[^/\s]+/item/(\d+)/?(?:[?#]\S*)?$`)
)

// ExtractID returns the numeric catalog id of a bare id or an item url.
// Malformed input yields ok == false so callers can collect every invalid entry.
func ExtractID(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if bareID.MatchString(s) {
		return s, true
	}
	if m := itemURL.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// ExtractIDs extracts every id, dropping duplicates and keeping first occurrence order.
// invalid holds the inputs that are neither an id nor an item url.
func ExtractIDs(raws []string) (ids []string, invalid []string) {
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		id, ok := ExtractID(raw)
		if !ok {
			invalid = append(invalid, raw)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, invalid
}
