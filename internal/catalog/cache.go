// Package catalog talks to the external item catalog and keeps the local
// cache of pages already fetched from it.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Cache is the Postgres backed catalog cache (table catalog_items).
type Cache struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewCache returns a Cache using db.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db, nowFunc: time.Now}
}

// Known reports which of ids already have a cached page.
// Absent ids are simply missing from the returned map.
func (c *Cache) Known(ctx context.Context, ids []string) (map[string]bool, error) {
	known := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return known, nil
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT external_id FROM catalog_items WHERE external_id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("can't query catalog items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("can't scan catalog item: %w", err)
		}
		known[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't iterate catalog items: %w", err)
	}
	return known, nil
}

// Save stores or refreshes the page of externalID.
func (c *Cache) Save(ctx context.Context, externalID string, page []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO catalog_items (external_id, page, fetched_at) VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE SET page = EXCLUDED.page, fetched_at = EXCLUDED.fetched_at`,
		externalID, page, c.nowFunc().UTC(),
	)
	if err != nil {
		return fmt.Errorf("can't save catalog item %s: %w", externalID, err)
	}
	return nil
}
