package cascade

import (
	"fmt"
	"sort"
)

// Field is one order attribute that may be propagated to order records.
type Field string

const (
	FieldStatus         Field = "status"
	FieldShop           Field = "shop"
	FieldOrderDate      Field = "orderDate"
	FieldPaymentDate    Field = "paymentDate"
	FieldShippingDate   Field = "shippingDate"
	FieldCollectionDate Field = "collectionDate"
	FieldShippingMethod Field = "shippingMethod"
)

// Fields lists every cascadable field.
var Fields = []Field{
	FieldStatus,
	FieldShop,
	FieldOrderDate,
	FieldPaymentDate,
	FieldShippingDate,
	FieldCollectionDate,
	FieldShippingMethod,
}

// OptionSet is the set of fields a merge or split overwrites.
type OptionSet map[Field]struct{}

// NewOptionSet returns a set holding fields.
func NewOptionSet(fields ...Field) OptionSet {
	s := make(OptionSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// ParseOptions builds an OptionSet from field names as sent by clients.
func ParseOptions(names []string) (OptionSet, error) {
	s := make(OptionSet, len(names))
	for _, n := range names {
		f := Field(n)
		if !f.valid() {
			return nil, fmt.Errorf("unknown cascade field %q", n)
		}
		s[f] = struct{}{}
	}
	return s, nil
}

// Has reports whether f is in the set.
func (s OptionSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// Sorted returns the fields in a stable order, for logging.
func (s OptionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

func (f Field) valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}
