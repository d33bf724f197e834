package storage

import (
	"time"

	"github.com/google/uuid"
)

type LinkType string

const (
	LinkTypeText  LinkType = "TEXT"
	LinkTypeCode  LinkType = "CODE"
	LinkTypeFile  LinkType = "FILE"
	LinkTypeLinks LinkType = "LINKS"
)

func (t LinkType) Valid() bool {
	switch t {
	case LinkTypeText, LinkTypeCode, LinkTypeFile, LinkTypeLinks:
		return true
	}
	return false
}

type Visibility string

const (
	VisibilityPublic   Visibility = "PUBLIC"
	VisibilityUnlisted Visibility = "UNLISTED"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityUnlisted
}

type OneLink struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Slug       string     `json:"slug" db:"slug"`
	Title      *string    `json:"title" db:"title"`
	Type       LinkType   `json:"type" db:"type"`
	Visibility Visibility `json:"visibility" db:"visibility"`
	ExpiresAt  *time.Time `json:"expiresAt" db:"expires_at"`
	ViewCount  int64      `json:"viewCount" db:"view_count"`
	OwnerID    uuid.UUID  `json:"ownerId" db:"owner_id"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}

// IsExpired reports whether the link stopped being served at or before now.
// A nil ExpiresAt never expires.
func (l *OneLink) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

type TextContent struct {
	Content string `json:"content" db:"content"`
}

type CodeContent struct {
	Content  string `json:"content" db:"content"`
	Language string `json:"language" db:"language"`
}

type FileContent struct {
	FileName   string `json:"fileName" db:"file_name"`
	FileSize   int64  `json:"fileSize" db:"file_size"`
	MimeType   string `json:"mimeType" db:"mime_type"`
	StorageKey string `json:"-" db:"storage_key"`
}

type BioLink struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Title string    `json:"title" db:"title"`
	URL   string    `json:"url" db:"url"`
	Icon  *string   `json:"icon,omitempty" db:"icon"`
	Order int       `json:"order" db:"sort_order"`
}

// Content is the typed payload of a OneLink. Exactly one member is set.
type Content struct {
	Text  *TextContent `json:"text,omitempty"`
	Code  *CodeContent `json:"code,omitempty"`
	File  *FileContent `json:"file,omitempty"`
	Links []BioLink    `json:"links,omitempty"`
}

// Kind returns the link type matching the populated member. ok is false unless
// exactly one member is set.
func (c Content) Kind() (kind LinkType, ok bool) {
	n := 0
	if c.Text != nil {
		kind, n = LinkTypeText, n+1
	}
	if c.Code != nil {
		kind, n = LinkTypeCode, n+1
	}
	if c.File != nil {
		kind, n = LinkTypeFile, n+1
	}
	if len(c.Links) > 0 {
		kind, n = LinkTypeLinks, n+1
	}
	return kind, n == 1
}

type User struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Email    *string   `json:"email,omitempty" db:"email"`
	Name     *string   `json:"name" db:"name"`
	Image    *string   `json:"image" db:"image"`
	Username *string   `json:"username" db:"username"`
}

// ExpiredLink is the minimum needed to sweep an expired link.
type ExpiredLink struct {
	ID         uuid.UUID
	StorageKey *string
}

type BrowseSort string

const (
	SortRecent  BrowseSort = "recent"
	SortPopular BrowseSort = "popular"
)

type BrowseFilter struct {
	// Type is empty for all types.
	Type   LinkType
	Sort   BrowseSort
	Limit  int
	Offset int
	Now    time.Time
}

// BrowseRow is one public link with what is needed to render its preview.
type BrowseRow struct {
	Link         OneLink
	Text         *string
	Code         *string
	CodeLanguage *string
	FileName     *string
	FileSize     *int64
	LinkCount    int
	Author       Author
}

type Author struct {
	Name     *string `json:"name"`
	Image    *string `json:"image"`
	Username *string `json:"username"`
}

// TableSecurity is the row-level-security state of one table.
type TableSecurity struct {
	Table       string `json:"table"`
	RLSEnabled  bool   `json:"rls_enabled"`
	PolicyCount int    `json:"policy_count"`
}
