package service

import "time"

// ExpiryToken is the relative expiry chosen by the owner.
type ExpiryToken string

const (
	ExpiryNever ExpiryToken = "never"
	Expiry1h    ExpiryToken = "1h"
	Expiry24h   ExpiryToken = "24h"
	Expiry7d    ExpiryToken = "7d"
	// ExpiryKeep leaves the current expiry untouched on edit.
	ExpiryKeep ExpiryToken = "keep"
)

var expiryDurations = map[ExpiryToken]time.Duration{
	Expiry1h:  time.Hour,
	Expiry24h: 24 * time.Hour,
	Expiry7d:  7 * 24 * time.Hour,
}

func (t ExpiryToken) validForCreate() bool {
	_, ok := expiryDurations[t]
	return ok || t == ExpiryNever
}

func (t ExpiryToken) validForEdit() bool {
	return t.validForCreate() || t == ExpiryKeep
}

// ExpiresAt resolves the token against now. ExpiryNever yields nil.
func (t ExpiryToken) ExpiresAt(now time.Time) *time.Time {
	d, ok := expiryDurations[t]
	if !ok {
		return nil
	}
	at := now.Add(d)
	return &at
}
