package catalog

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockCache(t *testing.T) (*Cache, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := NewCache(db)
	c.nowFunc = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c, mock
}

func TestUnitCacheKnown(t *testing.T) {
	c, mock := newMockCache(t)
	ids := []string{"1", "2", "3"}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT external_id FROM catalog_items WHERE external_id = ANY($1)`)).
		WithArgs(pq.Array(ids)).
		WillReturnRows(sqlmock.NewRows([]string{"external_id"}).AddRow("1").AddRow("3"))

	known, err := c.Known(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": true, "3": true}, known)
	assert.False(t, known["2"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitCacheKnownEmptyInputSkipsQuery(t *testing.T) {
	c, mock := newMockCache(t)

	known, err := c.Known(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, known)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitCacheKnownQueryError(t *testing.T) {
	c, mock := newMockCache(t)
	mock.ExpectQuery("SELECT external_id").WillReturnError(errors.New("conn reset"))

	_, err := c.Known(context.Background(), []string{"1"})
	assert.ErrorContains(t, err, "can't query catalog items")
}

func TestUnitCacheSave(t *testing.T) {
	c, mock := newMockCache(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO catalog_items (external_id, page, fetched_at)`)).
		WithArgs("42", []byte("<html/>"), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, c.Save(context.Background(), "42", []byte("<html/>")))
	require.NoError(t, mock.ExpectationsWereMet())
}
