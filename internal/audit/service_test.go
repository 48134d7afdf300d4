package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTimelineStore struct {
	rows       []TimelineRow
	lastLimit  int
	lastOffset int
	err        error
}

func (m *mockTimelineStore) Timeline(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	m.lastLimit = limit
	m.lastOffset = offset
	if m.err != nil {
		return nil, m.err
	}
	if limit <= 0 || limit > len(m.rows) {
		return m.rows, nil
	}
	return m.rows[:limit], nil
}

func makeRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = TimelineRow{
			ID:         int64(n - i),
			OccurredAt: base.Add(-time.Duration(i) * time.Minute),
			UserID:     7,
			Pattern:    "invoices.read.tenant",
			Granted:    true,
			Source:     "direct",
		}
	}
	return rows
}

func TestTimelineDefaultsAndHasNext(t *testing.T) {
	store := &mockTimelineStore{rows: makeRows(21)}
	svc := NewService(store)

	result, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Equal(t, 21, store.lastLimit)
	assert.Equal(t, 0, store.lastOffset)
	assert.Len(t, result.Rows, 20)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.Page)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
}

func TestTimelineLastPage(t *testing.T) {
	store := &mockTimelineStore{rows: makeRows(5)}
	svc := NewService(store)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 11, store.lastLimit)
	assert.Equal(t, 10, store.lastOffset)
	assert.Len(t, result.Rows, 5)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	store := &mockTimelineStore{rows: makeRows(60)}
	svc := NewService(store)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 51, store.lastLimit)
	assert.Equal(t, 50, result.Paging.PageSize)
}

func TestTimelinePropagatesStoreError(t *testing.T) {
	store := &mockTimelineStore{err: errors.New("db down")}
	svc := NewService(store)

	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	assert.Error(t, err)
}

func TestExportFetchesAllRows(t *testing.T) {
	store := &mockTimelineStore{rows: makeRows(30)}
	svc := NewService(store)

	rows, err := svc.Export(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Len(t, rows, 30)
	assert.Equal(t, 0, store.lastLimit)
}

func TestWriteCSV(t *testing.T) {
	rows := makeRows(2)
	data, err := writeCSV(rows)
	require.NoError(t, err)
	assert.Contains(t, string(data), "occurred_at,user_id,pattern,granted,source")
	assert.Contains(t, string(data), "invoices.read.tenant")
}
