package service

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	slugLength = 8
	alphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var reservedUsernames = map[string]bool{
	"api":       true,
	"login":     true,
	"dashboard": true,
	"new":       true,
	"settings":  true,
	"s":         true,
	"u":         true,
	"browse":    true,
}

var (
	usernameRegex   = regexp.MustCompile(`^[a-z0-9_-]{3,30}$`)
	unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]+`)
)

// GenerateSlug returns an 8 character random alphanumeric slug.
func GenerateSlug() (string, error) {
	return randomString(slugLength)
}

func randomString(n int) (string, error) {
	// 248 is the largest multiple of len(alphabet) below 256
	const limit = 256 - 256%len(alphabet)

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) < limit {
				out = append(out, alphabet[int(b)%len(alphabet)])
				if len(out) == n {
					break
				}
			}
		}
	}
	return string(out), nil
}

// NormalizeUsername lowercases and trims a requested username.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateUsername expects a normalized name.
func ValidateUsername(name string) error {
	if reservedUsernames[name] {
		return fieldError("username", "this username is reserved")
	}
	if !usernameRegex.MatchString(name) {
		return fieldError("username", "must be 3 to 30 characters of a-z, 0-9, _ or -")
	}
	return nil
}

// IsReservedUsername reports whether name collides with a top level route.
func IsReservedUsername(name string) bool {
	return reservedUsernames[strings.ToLower(name)]
}

// sanitizeFileName reduces a client supplied name to a safe base name.
func sanitizeFileName(name string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	name = unsafeFileChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	if len(name) > 100 {
		ext := filepath.Ext(name)
		if len(ext) > 20 {
			ext = ""
		}
		name = name[:100-len(ext)] + ext
	}
	return name
}
