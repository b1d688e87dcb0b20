package validation

// MaxBatchItems bounds how many catalog references one manual sync request may carry.
const MaxBatchItems = 500

// OrderHeader is the order part of a manual order sync or an order split.
type OrderHeader struct {
	Status         string `json:"status" validate:"omitempty,oneof=ordered paid shipped owned"`
	Shop           string `json:"shop" validate:"max=255"`
	OrderDate      string `json:"orderDate" validate:"omitempty,catalogdate"`
	PaymentDate    string `json:"paymentDate" validate:"omitempty,catalogdate"`
	ShippingDate   string `json:"shippingDate" validate:"omitempty,catalogdate"`
	CollectionDate string `json:"collectionDate" validate:"omitempty,catalogdate"`
	ShippingMethod string `json:"shippingMethod" validate:"max=64"`
}

// OrderSyncRequest is the payload for POST /sync/order.
type OrderSyncRequest struct {
	Header OrderHeader `json:"header"`
	Items  []string    `json:"items" validate:"required,min=1,max=500"` // bare ids or catalog urls
}

// CollectionSyncRequest is the payload for POST /sync/collection.
type CollectionSyncRequest struct {
	Items []string `json:"items" validate:"required,min=1,max=500"`
}

// CheckIDsRequest is the payload for POST /catalog/ids/check.
type CheckIDsRequest struct {
	Items []string `json:"items" validate:"required,min=1,max=500"`
}

// MergeOrdersRequest is the payload for POST /orders/merge.
type MergeOrdersRequest struct {
	TargetOrderID string   `json:"targetOrderId" validate:"required"`
	RecordIDs     []string `json:"recordIds" validate:"required,min=1,max=200,unique,dive,required"`
	Cascade       []string `json:"cascade" validate:"unique,dive,cascadefield"`
}

// SplitOrderRequest is the payload for POST /orders/split.
type SplitOrderRequest struct {
	Header    OrderHeader `json:"header"`
	RecordIDs []string    `json:"recordIds" validate:"required,min=1,max=200,unique,dive,required"`
	Cascade   []string    `json:"cascade" validate:"unique,dive,cascadefield"`
}
