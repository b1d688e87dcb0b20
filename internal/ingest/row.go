package ingest

// Row is one line of a collection spreadsheet export.
// Header names follow the catalog's csv export; columns not listed here are ignored.
type Row struct {
	ID             string `csv:"ID" json:"id" validate:"required,numeric"`
	Title          string `csv:"Title" json:"title" validate:"required"`
	Root           string `csv:"Root" json:"root,omitempty"`
	Category       string `csv:"Category" json:"category,omitempty"`
	ReleaseDate    string `csv:"Release date" json:"releaseDate,omitempty" validate:"omitempty,catalogdate"`
	Price          string `csv:"Price" json:"price,omitempty" validate:"omitempty,numeric"`
	Scale          string `csv:"Scale" json:"scale,omitempty"`
	Barcode        string `csv:"Barcode" json:"barcode,omitempty"`
	Status         string `csv:"Status" json:"status" validate:"required"`
	Count          string `csv:"Count" json:"count,omitempty" validate:"omitempty,numeric"`
	Score          string `csv:"Score" json:"score,omitempty"`
	PaymentDate    string `csv:"Payment date" json:"paymentDate,omitempty" validate:"omitempty,catalogdate"`
	ShippingDate   string `csv:"Shipping date" json:"shippingDate,omitempty" validate:"omitempty,catalogdate"`
	CollectingDate string `csv:"Collecting date" json:"collectingDate,omitempty" validate:"omitempty,catalogdate"`
	PaidPrice      string `csv:"Price (paid)" json:"paidPrice,omitempty" validate:"omitempty,numeric"`
	Shop           string `csv:"Shop" json:"shop,omitempty"`
	ShippingMethod string `csv:"Shipping method" json:"shippingMethod,omitempty"`
	TrackingNumber string `csv:"Tracking number" json:"trackingNumber,omitempty"`
	Note           string `csv:"Note" json:"note,omitempty"`
}

// requiredColumns must be present in the header line of every file.
var requiredColumns = []string{"ID", "Title", "Status"}

// Admissible collection statuses; everything else (wished, ...) is dropped.
var admissibleStatuses = []string{"Owned", "Ordered"}

// excludedMarker flags catalog entries the sync never imports.
const excludedMarker = "[NSFW"
