package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
)

// Type is the job payload discriminator.
type Type string

const (
	TypeCSV        Type = "csv"
	TypeOrder      Type = "order"
	TypeCollection Type = "collection"
)

// Payload is one of CSVPayload, OrderPayload or CollectionPayload.
type Payload interface {
	Type() Type
	// ExternalIDs returns every catalog reference carried by the payload, deduplicated, in order.
	ExternalIDs() []string
	isPayload()
}

// CSVPayload carries normalised spreadsheet rows.
type CSVPayload struct {
	Rows []Row `json:"rows"`
}

// OrderHeader is the order a manual order sync creates.
type OrderHeader struct {
	Status         string `json:"status,omitempty"`
	Shop           string `json:"shop,omitempty"`
	OrderDate      string `json:"orderDate,omitempty"`
	PaymentDate    string `json:"paymentDate,omitempty"`
	ShippingDate   string `json:"shippingDate,omitempty"`
	CollectionDate string `json:"collectionDate,omitempty"`
	ShippingMethod string `json:"shippingMethod,omitempty"`
}

// OrderPayload carries an order header and its items.
// ItemsToInsert are already in the catalog cache and must not be scraped again.
type OrderPayload struct {
	Header        OrderHeader `json:"header"`
	ItemsToScrape []string    `json:"itemsToScrape"`
	ItemsToInsert []string    `json:"itemsToInsert"`
}

// CollectionPayload carries collection items without an order.
type CollectionPayload struct {
	ItemsToScrape []string `json:"itemsToScrape"`
	ItemsToInsert []string `json:"itemsToInsert"`
}

func (CSVPayload) Type() Type        { return TypeCSV }
func (OrderPayload) Type() Type      { return TypeOrder }
func (CollectionPayload) Type() Type { return TypeCollection }

func (p CSVPayload) ExternalIDs() []string {
	return lo.Uniq(lo.Map(p.Rows, func(r Row, _ int) string { return r.ID }))
}

func (p OrderPayload) ExternalIDs() []string {
	return lo.Uniq(append(append([]string{}, p.ItemsToScrape...), p.ItemsToInsert...))
}

func (p CollectionPayload) ExternalIDs() []string {
	return lo.Uniq(append(append([]string{}, p.ItemsToScrape...), p.ItemsToInsert...))
}

func (CSVPayload) isPayload()        {}
func (OrderPayload) isPayload()      {}
func (CollectionPayload) isPayload() {}

type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalPayload encodes p as {"type": ..., "data": ...}.
func MarshalPayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("can't marshal %s payload: %w", p.Type(), err)
	}
	return json.Marshal(envelope{Type: p.Type(), Data: data})
}

// UnmarshalPayload decodes the envelope written by MarshalPayload.
func UnmarshalPayload(b []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("can't decode payload envelope: %w", err)
	}

	switch env.Type {
	case TypeCSV:
		var p CSVPayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeOrder:
		var p OrderPayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeCollection:
		var p CollectionPayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payload type %q", env.Type)
	}
}

func decodeData(env envelope, out any) error {
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("can't decode %s payload: %w", env.Type, err)
	}
	return nil
}
