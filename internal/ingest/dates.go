package ingest

import "regexp"

var partialDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// NormalizeDate turns the catalog's partial dates into real calendar days.
//
//	"0000-00-00" -> "" (placeholder, no day exists)
//	"2021-00-00" -> "2021-01-01"
//	"2021-07-00" -> "2021-07-01"
//
// Anything else is returned unchanged.
func NormalizeDate(s string) string {
	m := partialDate.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	year, month, day := m[1], m[2], m[3]
	if year == "0000" {
		return ""
	}
	if month == "00" {
		return year + "-01-01"
	}
	if day == "00" {
		return year + "-" + month + "-01"
	}
	return s
}
