package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitPayloadEnvelope(t *testing.T) {
	payloads := []Payload{
		CSVPayload{Rows: []Row{{ID: "1", Title: "Figure", Status: "Owned"}}},
		OrderPayload{Header: OrderHeader{Shop: "AmiAmi"}, ItemsToScrape: []string{"1"}, ItemsToInsert: []string{"2"}},
		CollectionPayload{ItemsToScrape: []string{"3"}, ItemsToInsert: []string{}},
	}

	for _, p := range payloads {
		t.Run(string(p.Type()), func(t *testing.T) {
			b, err := MarshalPayload(p)
			require.NoError(t, err)
			assert.Contains(t, string(b), `"type":"`+string(p.Type())+`"`)

			got, err := UnmarshalPayload(b)
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestUnitUnmarshalPayloadRejectsUnknownType(t *testing.T) {
	_, err := UnmarshalPayload([]byte(`{"type":"wishlist","data":{}}`))
	assert.ErrorContains(t, err, "unknown payload type")
}

func TestUnitOrderPayloadExternalIDs(t *testing.T) {
	p := OrderPayload{ItemsToScrape: []string{"1", "2"}, ItemsToInsert: []string{"2", "3"}}
	assert.Equal(t, []string{"1", "2", "3"}, p.ExternalIDs())
}
