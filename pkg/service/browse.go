package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"onelink/pkg/logging"
	"onelink/pkg/storage"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 12
	maxPageSize     = 50
	textPreviewLen  = 150
	codePreviewLen  = 100

	// maxPage keeps (page-1)*limit within a PostgreSQL OFFSET.
	maxPage = math.MaxInt32 / maxPageSize
)

type BrowseQuery struct {
	Page  int
	Limit int
	// Type is a link type or empty/ALL for every type.
	Type string
	// Sort is recent (default) or popular.
	Sort string
}

type BrowseItem struct {
	ID        uuid.UUID        `json:"id"`
	Slug      string           `json:"slug"`
	Title     *string          `json:"title"`
	Type      storage.LinkType `json:"type"`
	ViewCount int64            `json:"viewCount"`
	CreatedAt time.Time        `json:"createdAt"`
	ExpiresAt *time.Time       `json:"expiresAt"`
	User      storage.Author   `json:"user"`
	Preview   string           `json:"preview,omitempty"`
}

type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalCount  int64 `json:"totalCount"`
	TotalPages  int64 `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

type BrowsePage struct {
	Data       []BrowseItem `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

type BrowseService struct {
	links  storage.LinkStorage
	logger *logging.Logger
	opts   options
}

func NewBrowseService(links storage.LinkStorage, logger *logging.Logger, opts ...Option) *BrowseService {
	return &BrowseService{links: links, logger: logger, opts: buildOptions(opts)}
}

// Browse lists active public links, one page at a time.
func (s *BrowseService) Browse(ctx context.Context, q BrowseQuery) (*BrowsePage, error) {
	page := min(max(q.Page, 1), maxPage)
	limit := q.Limit
	if limit == 0 {
		limit = defaultPageSize
	}
	limit = min(max(limit, 1), maxPageSize)

	filter := storage.BrowseFilter{
		Sort:   storage.SortRecent,
		Limit:  limit,
		Offset: (page - 1) * limit,
		Now:    s.opts.now(),
	}

	switch t := strings.ToUpper(q.Type); t {
	case "", "ALL":
	default:
		if !storage.LinkType(t).Valid() {
			return nil, fieldError("type", "must be ALL, TEXT, CODE, FILE or LINKS")
		}
		filter.Type = storage.LinkType(t)
	}

	switch storage.BrowseSort(strings.ToLower(q.Sort)) {
	case "", storage.SortRecent:
	case storage.SortPopular:
		filter.Sort = storage.SortPopular
	default:
		return nil, fieldError("sort", "must be recent or popular")
	}

	rows, total, err := s.links.Browse(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("browse: %w", err)
	}

	items := make([]BrowseItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, BrowseItem{
			ID:        r.Link.ID,
			Slug:      r.Link.Slug,
			Title:     r.Link.Title,
			Type:      r.Link.Type,
			ViewCount: r.Link.ViewCount,
			CreatedAt: r.Link.CreatedAt,
			ExpiresAt: r.Link.ExpiresAt,
			User:      r.Author,
			Preview:   preview(r),
		})
	}

	return &BrowsePage{Data: items, Pagination: paginate(page, limit, total)}, nil
}

func paginate(page, limit int, total int64) Pagination {
	totalPages := (total + int64(limit) - 1) / int64(limit)
	return Pagination{
		Page:        page,
		Limit:       limit,
		TotalCount:  total,
		TotalPages:  totalPages,
		HasNextPage: int64(page) < totalPages,
		HasPrevPage: page > 1,
	}
}

func preview(r storage.BrowseRow) string {
	switch r.Link.Type {
	case storage.LinkTypeText:
		if r.Text != nil {
			return clip(*r.Text, textPreviewLen)
		}
	case storage.LinkTypeCode:
		if r.Code != nil {
			lang := defaultLanguage
			if r.CodeLanguage != nil {
				lang = *r.CodeLanguage
			}
			return lang + ": " + clip(*r.Code, codePreviewLen)
		}
	case storage.LinkTypeFile:
		if r.FileName != nil {
			return *r.FileName
		}
	case storage.LinkTypeLinks:
		return fmt.Sprintf("%d links", r.LinkCount)
	}
	return ""
}

// clip cuts s to n characters and marks the cut with an ellipsis.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return truncateRunes(s, n) + "..."
}
