package service

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"onelink/pkg/storage"
)

const (
	maxTitleLen     = 100
	maxContentLen   = 50000
	maxLinks        = 20
	maxLinkTitleLen = 50
	defaultLanguage = "plaintext"

	// MaxFileSize is the largest accepted upload, 20 MiB.
	MaxFileSize int64 = 20 << 20
)

type BioLinkInput struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Icon  *string `json:"icon,omitempty"`
}

// LinkRequest is the body of a create or edit. On edit, omitted fields keep
// their current value.
type LinkRequest struct {
	Type       storage.LinkType   `json:"type"`
	Title      *string            `json:"title,omitempty"`
	Visibility storage.Visibility `json:"visibility,omitempty"`
	ExpiresIn  ExpiryToken        `json:"expiresIn,omitempty"`
	Content    *string            `json:"content,omitempty"`
	Language   *string            `json:"language,omitempty"`
	Links      []BioLinkInput     `json:"links,omitempty"`
}

// validateCreate builds the link and its content from a create request.
func validateCreate(req LinkRequest, now time.Time) (*storage.OneLink, storage.Content, error) {
	v := &ValidationError{}
	link := &storage.OneLink{
		Type:       req.Type,
		Title:      checkTitle(v, req.Title),
		Visibility: storage.VisibilityUnlisted,
	}

	if req.Visibility != "" {
		if !req.Visibility.Valid() {
			v.add("visibility", "must be PUBLIC or UNLISTED")
		}
		link.Visibility = req.Visibility
	}

	expiresIn := req.ExpiresIn
	if expiresIn == "" {
		expiresIn = ExpiryNever
	}
	if !expiresIn.validForCreate() {
		v.add("expiresIn", "must be one of never, 1h, 24h, 7d")
	}
	link.ExpiresAt = expiresIn.ExpiresAt(now)

	var content storage.Content
	switch req.Type {
	case storage.LinkTypeText:
		content.Text = checkText(v, req.Content)
	case storage.LinkTypeCode:
		content.Code = checkCode(v, req.Content, req.Language)
	case storage.LinkTypeLinks:
		content.Links = checkLinks(v, req.Links)
	case storage.LinkTypeFile:
		v.add("type", "file links are created through the upload flow")
	default:
		v.add("type", "must be one of TEXT, CODE, LINKS")
	}

	if err := v.errOrNil(); err != nil {
		return nil, storage.Content{}, err
	}
	return link, content, nil
}

// applyEdit validates req against the current link and content and applies it in place.
func applyEdit(link *storage.OneLink, content *storage.Content, req LinkRequest, now time.Time) error {
	v := &ValidationError{}

	if req.Type != "" && req.Type != link.Type {
		return fieldError("type", "the type of a link cannot change")
	}

	if req.Title != nil {
		link.Title = checkTitle(v, req.Title)
	}

	if req.Visibility != "" {
		if !req.Visibility.Valid() {
			v.add("visibility", "must be PUBLIC or UNLISTED")
		}
		link.Visibility = req.Visibility
	}

	switch {
	case req.ExpiresIn == "" || req.ExpiresIn == ExpiryKeep:
	case req.ExpiresIn.validForEdit():
		link.ExpiresAt = req.ExpiresIn.ExpiresAt(now)
	default:
		v.add("expiresIn", "must be one of keep, never, 1h, 24h, 7d")
	}

	switch link.Type {
	case storage.LinkTypeText:
		if req.Content != nil {
			content.Text = checkText(v, req.Content)
		}
	case storage.LinkTypeCode:
		if req.Content != nil || req.Language != nil {
			code := req.Content
			if code == nil && content.Code != nil {
				code = &content.Code.Content
			}
			lang := req.Language
			if lang == nil && content.Code != nil {
				lang = &content.Code.Language
			}
			content.Code = checkCode(v, code, lang)
		}
	case storage.LinkTypeLinks:
		if req.Links != nil {
			content.Links = checkLinks(v, req.Links)
		}
	case storage.LinkTypeFile:
		if req.Content != nil || req.Language != nil || req.Links != nil {
			v.add("content", "the file of a link cannot change")
		}
	}

	return v.errOrNil()
}

func checkTitle(v *ValidationError, title *string) *string {
	if title == nil || *title == "" {
		return nil
	}
	if utf8.RuneCountInString(*title) > maxTitleLen {
		v.add("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	}
	t := *title
	return &t
}

func checkContent(v *ValidationError, content *string) string {
	switch {
	case content == nil || *content == "":
		v.add("content", "is required")
		return ""
	case utf8.RuneCountInString(*content) > maxContentLen:
		v.add("content", fmt.Sprintf("must be at most %d characters", maxContentLen))
	}
	return *content
}

func checkText(v *ValidationError, content *string) *storage.TextContent {
	return &storage.TextContent{Content: checkContent(v, content)}
}

func checkCode(v *ValidationError, content, language *string) *storage.CodeContent {
	code := &storage.CodeContent{Content: checkContent(v, content), Language: defaultLanguage}
	if language != nil && strings.TrimSpace(*language) != "" {
		code.Language = strings.TrimSpace(*language)
	}
	return code
}

func checkLinks(v *ValidationError, inputs []BioLinkInput) []storage.BioLink {
	if len(inputs) == 0 {
		v.add("links", "at least one link is required")
		return nil
	}
	if len(inputs) > maxLinks {
		v.add("links", fmt.Sprintf("at most %d links are allowed", maxLinks))
	}

	links := make([]storage.BioLink, 0, len(inputs))
	for i, in := range inputs {
		n := utf8.RuneCountInString(in.Title)
		if n == 0 || n > maxLinkTitleLen {
			v.add(fmt.Sprintf("links[%d].title", i), fmt.Sprintf("must be 1 to %d characters", maxLinkTitleLen))
		}
		if err := checkURL(in.URL); err != nil {
			v.add(fmt.Sprintf("links[%d].url", i), err.Error())
		}
		links = append(links, storage.BioLink{Title: in.Title, URL: in.URL, Icon: in.Icon, Order: i})
	}
	return links
}

func checkURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return errors.New("must be a valid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("only http and https urls are allowed")
	}
	if u.Host == "" {
		return errors.New("must be an absolute url")
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
