package cascade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

func lockOrder(ctx context.Context, tx *sql.Tx, userID, orderID string) (Header, error) {
	var c nullHeader
	err := tx.QueryRowContext(ctx,
		`SELECT status, shop, order_date, payment_date, shipping_date, collection_date, shipping_method
		FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		orderID, userID,
	).Scan(c.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return Header{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return Header{}, fmt.Errorf("can't lock order: %w", err)
	}
	return c.header(), nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, userID, orderID string, h Header) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, status, shop, order_date, payment_date, shipping_date, collection_date, shipping_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		orderID, userID,
		nullString(h.Status), nullString(h.Shop), nullString(h.OrderDate), nullString(h.PaymentDate),
		nullString(h.ShippingDate), nullString(h.CollectionDate), nullString(h.ShippingMethod),
	)
	if err != nil {
		return fmt.Errorf("can't insert order: %w", err)
	}
	return nil
}

// lockRecords locks rows in id order so overlapping selections can't deadlock.
func lockRecords(ctx context.Context, tx *sql.Tx, userID string, ids []string) ([]Record, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, order_id, status, shop, order_date, payment_date, shipping_date, collection_date, shipping_method
		FROM order_items WHERE user_id = $1 AND id = ANY($2) ORDER BY id FOR UPDATE`,
		userID, pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("can't lock order records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			id      string
			orderID sql.NullString
			c       nullHeader
		)
		if err := rows.Scan(append([]any{&id, &orderID}, c.dest()...)...); err != nil {
			return nil, fmt.Errorf("can't scan order record: %w", err)
		}
		records = append(records, Record{ID: id, OrderID: orderID.String, Header: c.header()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't iterate order records: %w", err)
	}
	return records, nil
}

func updateRecord(ctx context.Context, tx *sql.Tx, r Record) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE order_items SET order_id = $2, status = $3, shop = $4, order_date = $5, payment_date = $6,
		shipping_date = $7, collection_date = $8, shipping_method = $9 WHERE id = $1`,
		r.ID, r.OrderID,
		nullString(r.Status), nullString(r.Shop), nullString(r.OrderDate), nullString(r.PaymentDate),
		nullString(r.ShippingDate), nullString(r.CollectionDate), nullString(r.ShippingMethod),
	)
	if err != nil {
		return fmt.Errorf("can't update order record %s: %w", r.ID, err)
	}
	return nil
}

func deleteEmptyOrders(ctx context.Context, tx *sql.Tx, userID string, orderIDs []string) ([]string, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	rows, err := tx.QueryContext(ctx,
		`DELETE FROM orders o WHERE o.user_id = $1 AND o.id = ANY($2)
		AND NOT EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id) RETURNING o.id`,
		userID, pq.Array(orderIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("can't delete emptied orders: %w", err)
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("can't scan deleted order: %w", err)
		}
		removed = append(removed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't iterate deleted orders: %w", err)
	}
	return removed, nil
}

func runInTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	var (
		tx  *sql.Tx
		err error
	)

	if tx, err = db.BeginTx(ctx, nil); err != nil {
		return fmt.Errorf("can't begin transaction: %w", err)
	}

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("can't rollback transaction: %w (rollback reason: %w)", rbErr, err)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("can't commit transaction: %w", err)
	}

	return nil
}

type nullHeader struct {
	status, shop, orderDate, paymentDate, shippingDate, collectionDate, shippingMethod sql.NullString
}

func (c *nullHeader) dest() []any {
	return []any{&c.status, &c.shop, &c.orderDate, &c.paymentDate, &c.shippingDate, &c.collectionDate, &c.shippingMethod}
}

func (c *nullHeader) header() Header {
	return Header{
		Status:         c.status.String,
		Shop:           c.shop.String,
		OrderDate:      c.orderDate.String,
		PaymentDate:    c.paymentDate.String,
		ShippingDate:   c.shippingDate.String,
		CollectionDate: c.collectionDate.String,
		ShippingMethod: c.shippingMethod.String,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
