package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitExtractID(t *testing.T) {
	tests := map[string]struct {
		in     string
		wantID string
		wantOK bool
	}{
		"bare id":              {in: "998271", wantID: "998271", wantOK: true},
		"bare id with spaces":  {in: "  42 ", wantID: "42", wantOK: true},
		"https url":            {in: "https://example.net/item/998271", wantID: "998271", wantOK: true},
		"http url trailing /":  {in: "http://example.net/item/12/", wantID: "12", wantOK: true},
		"url with query":       {in: "https://example.net/item/12?ref=home", wantID: "12", wantOK: true},
		"not a url":            {in: "not-a-url", wantOK: false},
		"empty":                {in: "", wantOK: false},
		"url without id":       {in: "https://example.net/item/", wantOK: false},
		"non numeric id":       {in: "https://example.net/item/abc", wantOK: false},
		"other path":           {in: "https://example.net/user/12", wantOK: false},
		"unsupported scheme":   {in: "ftp://example.net/item/12", wantOK: false},
		"negative number":      {in: "-12", wantOK: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			id, ok := ExtractID(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestUnitExtractIDsReportsEveryInvalidEntry(t *testing.T) {
	ids, invalid := ExtractIDs([]string{
		"https://example.net/item/998271",
		"998271",
		"not-a-url",
		"17",
		"also bad",
	})

	assert.Equal(t, []string{"998271", "17"}, ids)
	assert.Equal(t, []string{"not-a-url", "also bad"}, invalid)
}
