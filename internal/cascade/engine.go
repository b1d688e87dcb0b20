// Package cascade moves order records between orders and propagates a chosen
// set of order attributes onto them, all inside one Postgres transaction.
package cascade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/metrics"
)

var (
	// ErrOrderNotFound is returned when the target order doesn't exist or belongs to someone else.
	ErrOrderNotFound = fmt.Errorf("order %w", apperror.ErrNotFound)
	// ErrRecordsNotFound is returned when a selected record doesn't exist or belongs to someone else.
	ErrRecordsNotFound = fmt.Errorf("order records %w", apperror.ErrNotFound)
	// ErrEmptySelection is returned when no record ids were given.
	ErrEmptySelection = errors.New("no records selected")
)

// MergeRequest moves records into an existing order.
type MergeRequest struct {
	UserID        string
	TargetOrderID string
	RecordIDs     []string
	Options       OptionSet
}

// SplitRequest moves records into a new order created from Header.
type SplitRequest struct {
	UserID    string
	Header    Header
	RecordIDs []string
	Options   OptionSet
}

// Result describes a committed merge or split.
type Result struct {
	OrderID       string   `json:"orderId"`
	Moved         int      `json:"moved"`
	RemovedOrders []string `json:"removedOrders,omitempty"`
}

// Engine runs merges and splits. Overlapping operations are serialized by
// the row locks they take, so any number of instances may share a database.
type Engine struct {
	db      *sql.DB
	metrics metrics.Recorder
	logger  *zerolog.Logger
	newID   func() string
}

// NewEngine returns an Engine on db.
func NewEngine(db *sql.DB, rec metrics.Recorder, logger *zerolog.Logger) *Engine {
	return &Engine{db: db, metrics: rec, logger: logger, newID: uuid.NewString}
}

// Merge moves req.RecordIDs into req.TargetOrderID and cascades req.Options
// from the target. Orders left without records are deleted.
func (e *Engine) Merge(ctx context.Context, req MergeRequest) (Result, error) {
	ids, err := selection(req.RecordIDs)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = runInTransaction(ctx, e.db, func(tx *sql.Tx) error {
		header, err := lockOrder(ctx, tx, req.UserID, req.TargetOrderID)
		if err != nil {
			return err
		}
		res, err = move(ctx, tx, req.UserID, req.TargetOrderID, header, ids, req.Options)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("can't merge into order %s: %w", req.TargetOrderID, err)
	}

	e.done(ctx, "merge", res, req.Options)
	return res, nil
}

// Split creates a new order from req.Header, moves req.RecordIDs into it and
// cascades req.Options from the new header.
func (e *Engine) Split(ctx context.Context, req SplitRequest) (Result, error) {
	ids, err := selection(req.RecordIDs)
	if err != nil {
		return Result{}, err
	}

	orderID := e.newID()
	var res Result
	err = runInTransaction(ctx, e.db, func(tx *sql.Tx) error {
		if err := insertOrder(ctx, tx, req.UserID, orderID, req.Header); err != nil {
			return err
		}
		var err error
		res, err = move(ctx, tx, req.UserID, orderID, req.Header, ids, req.Options)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("can't split into new order: %w", err)
	}

	e.done(ctx, "split", res, req.Options)
	return res, nil
}

func (e *Engine) done(ctx context.Context, op string, res Result, opts OptionSet) {
	e.metrics.Count(ctx, metrics.CascadeRecords, float64(res.Moved), map[string]string{"operation": op})
	e.logger.Info().
		Str("operation", op).
		Str("orderId", res.OrderID).
		Int("moved", res.Moved).
		Strs("cascade", opts.Sorted()).
		Strs("removedOrders", res.RemovedOrders).
		Msg("order records moved")
}

func selection(recordIDs []string) ([]string, error) {
	ids := lo.Uniq(recordIDs)
	if len(ids) == 0 {
		return nil, ErrEmptySelection
	}
	sort.Strings(ids)
	return ids, nil
}

// move locks the records, reassigns them to orderID with the cascaded header
// fields and removes the orders they left empty.
func move(ctx context.Context, tx *sql.Tx, userID, orderID string, h Header, ids []string, opts OptionSet) (Result, error) {
	records, err := lockRecords(ctx, tx, userID, ids)
	if err != nil {
		return Result{}, err
	}
	if len(records) != len(ids) {
		found := lo.Map(records, func(r Record, _ int) string { return r.ID })
		missing, _ := lo.Difference(ids, found)
		return Result{}, fmt.Errorf("%w: %v", ErrRecordsNotFound, missing)
	}

	sources := lo.Uniq(lo.FilterMap(records, func(r Record, _ int) (string, bool) {
		return r.OrderID, r.OrderID != "" && r.OrderID != orderID
	}))

	for _, r := range Apply(h, records, opts) {
		r.OrderID = orderID
		if err := updateRecord(ctx, tx, r); err != nil {
			return Result{}, err
		}
	}

	removed, err := deleteEmptyOrders(ctx, tx, userID, sources)
	if err != nil {
		return Result{}, err
	}
	return Result{OrderID: orderID, Moved: len(records), RemovedOrders: removed}, nil
}
