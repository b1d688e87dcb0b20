package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"
	"golang.org/x/text/unicode/norm"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/validation"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NormalizeCSV decodes, validates and filters a collection export.
// Every invalid row is reported; a single one aborts the batch.
func (n *Normalizer) NormalizeCSV(data []byte) (CSVPayload, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	data, err := normalizeHeader(data)
	if err != nil {
		return CSVPayload{}, err
	}

	var rows []Row
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return CSVPayload{}, apperror.ErrEmptyBatch
		}
		return CSVPayload{}, apperror.Validation(apperror.Problem{Message: fmt.Sprintf("malformed csv: %v", err)})
	}

	var problems []apperror.Problem
	for i := range rows {
		rows[i] = trimRow(rows[i])
		if err := n.validate.Struct(rows[i]); err != nil {
			// line 1 is the header
			problems = append(problems, validation.Problems(err, i+2)...)
		}
	}
	if len(problems) > 0 {
		return CSVPayload{}, apperror.Validation(problems...)
	}

	kept := lo.Filter(rows, func(r Row, _ int) bool { return admissible(r) })
	kept = lo.UniqBy(kept, func(r Row) string { return r.ID })
	if len(kept) == 0 {
		return CSVPayload{}, apperror.ErrEmptyBatch
	}

	for i := range kept {
		kept[i] = normalizeRow(kept[i])
	}
	return CSVPayload{Rows: kept}, nil
}

// normalizeHeader checks the required columns and rewrites the header line
// with trimmed names, so gocsv matches " Status" like "Status".
func normalizeHeader(data []byte) ([]byte, error) {
	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperror.ErrEmptyBatch
	}
	if err != nil {
		return nil, apperror.Validation(apperror.Problem{Line: 1, Message: fmt.Sprintf("unreadable header: %v", err)})
	}
	rest := data[r.InputOffset():]

	header = lo.Map(header, func(h string, _ int) string { return strings.TrimSpace(h) })
	var problems []apperror.Problem
	for _, col := range requiredColumns {
		if !lo.Contains(header, col) {
			problems = append(problems, apperror.Problem{Line: 1, Field: col, Message: fmt.Sprintf("missing column %q", col)})
		}
	}
	if len(problems) > 0 {
		return nil, apperror.Validation(problems...)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("can't rewrite csv header: %w", err)
	}
	w.Flush()
	buf.Write(rest)
	return buf.Bytes(), nil
}

func admissible(r Row) bool {
	statusOK := lo.ContainsBy(admissibleStatuses, func(s string) bool { return strings.EqualFold(s, r.Status) })
	if !statusOK {
		return false
	}
	title := strings.ToUpper(norm.NFKC.String(r.Title))
	return !strings.Contains(title, excludedMarker)
}

func trimRow(r Row) Row {
	r.ID = strings.TrimSpace(r.ID)
	r.Title = strings.TrimSpace(r.Title)
	r.Status = strings.TrimSpace(r.Status)
	r.ReleaseDate = strings.TrimSpace(r.ReleaseDate)
	r.PaymentDate = strings.TrimSpace(r.PaymentDate)
	r.ShippingDate = strings.TrimSpace(r.ShippingDate)
	r.CollectingDate = strings.TrimSpace(r.CollectingDate)
	r.Price = strings.TrimSpace(r.Price)
	r.PaidPrice = strings.TrimSpace(r.PaidPrice)
	r.Count = strings.TrimSpace(r.Count)
	return r
}

func normalizeRow(r Row) Row {
	r.Title = norm.NFKC.String(r.Title)
	r.ReleaseDate = NormalizeDate(r.ReleaseDate)
	r.PaymentDate = NormalizeDate(r.PaymentDate)
	r.ShippingDate = NormalizeDate(r.ShippingDate)
	r.CollectingDate = NormalizeDate(r.CollectingDate)
	return r
}
