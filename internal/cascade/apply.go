package cascade

// Header holds the cascadable attributes of an order. Empty means unset.
type Header struct {
	Status         string `json:"status,omitempty"`
	Shop           string `json:"shop,omitempty"`
	OrderDate      string `json:"orderDate,omitempty"`
	PaymentDate    string `json:"paymentDate,omitempty"`
	ShippingDate   string `json:"shippingDate,omitempty"`
	CollectionDate string `json:"collectionDate,omitempty"`
	ShippingMethod string `json:"shippingMethod,omitempty"`
}

// Record is one order item with its own copy of the order attributes.
type Record struct {
	ID      string `json:"id"`
	OrderID string `json:"orderId"`
	Header
}

// Apply overwrites, on every record, exactly the fields in opts with the
// header's value (an empty header value clears the field). Other fields
// keep their own values. records is not modified.
func Apply(h Header, records []Record, opts OptionSet) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		if opts.Has(FieldStatus) {
			r.Status = h.Status
		}
		if opts.Has(FieldShop) {
			r.Shop = h.Shop
		}
		if opts.Has(FieldOrderDate) {
			r.OrderDate = h.OrderDate
		}
		if opts.Has(FieldPaymentDate) {
			r.PaymentDate = h.PaymentDate
		}
		if opts.Has(FieldShippingDate) {
			r.ShippingDate = h.ShippingDate
		}
		if opts.Has(FieldCollectionDate) {
			r.CollectionDate = h.CollectionDate
		}
		if opts.Has(FieldShippingMethod) {
			r.ShippingMethod = h.ShippingMethod
		}
		out[i] = r
	}
	return out
}
