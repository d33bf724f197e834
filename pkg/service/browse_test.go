package service

import (
	"context"
	"math"
	"strings"
	"testing"

	"onelink/pkg/logging"
	"onelink/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowseQueryNormalization(t *testing.T) {
	tests := []struct {
		name       string
		query      BrowseQuery
		wantLimit  int
		wantOffset int
		wantType   storage.LinkType
		wantSort   storage.BrowseSort
	}{
		{"defaults", BrowseQuery{}, 12, 0, "", storage.SortRecent},
		{"second page", BrowseQuery{Page: 2, Limit: 10}, 10, 10, "", storage.SortRecent},
		{"negative page", BrowseQuery{Page: -3}, 12, 0, "", storage.SortRecent},
		{"limit capped", BrowseQuery{Limit: 500}, 50, 0, "", storage.SortRecent},
		{"limit floor", BrowseQuery{Limit: -5}, 1, 0, "", storage.SortRecent},
		{"all type", BrowseQuery{Type: "ALL"}, 12, 0, "", storage.SortRecent},
		{"code type", BrowseQuery{Type: "code"}, 12, 0, storage.LinkTypeCode, storage.SortRecent},
		{"popular", BrowseQuery{Sort: "popular"}, 12, 0, "", storage.SortPopular},
		{"huge page clamped", BrowseQuery{Page: math.MaxInt, Limit: 50}, 50, (maxPage - 1) * 50, "", storage.SortRecent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			clock := newTestClock()
			svc := NewBrowseService(store, logging.Discard(), WithClock(clock.Now))

			_, err := svc.Browse(context.Background(), tt.query)
			require.NoError(t, err)

			f := store.lastFilter
			assert.Equal(t, tt.wantLimit, f.Limit)
			assert.Equal(t, tt.wantOffset, f.Offset)
			assert.Equal(t, tt.wantType, f.Type)
			assert.Equal(t, tt.wantSort, f.Sort)
			assert.Equal(t, clock.Now(), f.Now)
		})
	}
}

func TestBrowseRejectsUnknownFilters(t *testing.T) {
	svc := NewBrowseService(newFakeStore(), logging.Discard())

	_, err := svc.Browse(context.Background(), BrowseQuery{Type: "VIDEO"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "type")

	_, err = svc.Browse(context.Background(), BrowseQuery{Sort: "oldest"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "sort")
}

func TestBrowsePreviews(t *testing.T) {
	long := strings.Repeat("é", 200)
	store := newFakeStore()
	store.browseRows = []storage.BrowseRow{
		{Link: storage.OneLink{Slug: "t1", Type: storage.LinkTypeText}, Text: ptr("short")},
		{Link: storage.OneLink{Slug: "t2", Type: storage.LinkTypeText}, Text: ptr(long)},
		{Link: storage.OneLink{Slug: "c1", Type: storage.LinkTypeCode}, Code: ptr("x := 1"), CodeLanguage: ptr("go")},
		{Link: storage.OneLink{Slug: "c2", Type: storage.LinkTypeCode}, Code: ptr(long)},
		{Link: storage.OneLink{Slug: "f1", Type: storage.LinkTypeFile}, FileName: ptr("report.pdf")},
		{Link: storage.OneLink{Slug: "l1", Type: storage.LinkTypeLinks}, LinkCount: 3, Author: storage.Author{Username: ptr("me")}},
	}
	svc := NewBrowseService(store, logging.Discard())

	page, err := svc.Browse(context.Background(), BrowseQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 6)

	assert.Equal(t, "short", page.Data[0].Preview)
	assert.Equal(t, strings.Repeat("é", 150)+"...", page.Data[1].Preview)
	assert.Equal(t, "go: x := 1", page.Data[2].Preview)
	assert.Equal(t, "plaintext: "+strings.Repeat("é", 100)+"...", page.Data[3].Preview)
	assert.Equal(t, "report.pdf", page.Data[4].Preview)
	assert.Equal(t, "3 links", page.Data[5].Preview)
	assert.Equal(t, "me", *page.Data[5].User.Username)
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		total       int64
		want        Pagination
	}{
		{"empty", 1, 12, 0, Pagination{Page: 1, Limit: 12}},
		{"single page", 1, 12, 12, Pagination{Page: 1, Limit: 12, TotalCount: 12, TotalPages: 1}},
		{"first of three", 1, 10, 25, Pagination{Page: 1, Limit: 10, TotalCount: 25, TotalPages: 3, HasNextPage: true}},
		{"middle", 2, 10, 25, Pagination{Page: 2, Limit: 10, TotalCount: 25, TotalPages: 3, HasNextPage: true, HasPrevPage: true}},
		{"last", 3, 10, 25, Pagination{Page: 3, Limit: 10, TotalCount: 25, TotalPages: 3, HasPrevPage: true}},
		{"past the end", 9, 10, 25, Pagination{Page: 9, Limit: 10, TotalCount: 25, TotalPages: 3, HasPrevPage: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, paginate(tt.page, tt.limit, tt.total))
		})
	}
}
