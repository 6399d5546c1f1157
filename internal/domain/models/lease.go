package models

import "time"

// Lease is a set of signed upstream URLs with its validity window.
//
// RenewAt <= ExpiresAt <= HardExpiry. The lease is renewed proactively from
// RenewAt, considered valid until ExpiresAt and never used past HardExpiry.
type Lease struct {
	URLs       map[string]string
	LicenseID  string
	IssuedAt   time.Time
	RenewAt    time.Time
	ExpiresAt  time.Time
	HardExpiry time.Time
}

// NeedsRenewal reports whether a renewal should be attempted before use.
func (l *Lease) NeedsRenewal(now time.Time) bool {
	return l == nil || !now.Before(l.RenewAt)
}

// Valid reports whether the lease is inside its effective window.
func (l *Lease) Valid(now time.Time) bool {
	return l != nil && now.Before(l.ExpiresAt)
}

// Usable reports whether the signed URLs may still be presented upstream.
func (l *Lease) Usable(now time.Time) bool {
	return l != nil && now.Before(l.HardExpiry)
}

// URL returns the signed URL for a key.
func (l *Lease) URL(key string) (string, bool) {
	if l == nil {
		return "", false
	}
	u, ok := l.URLs[key]
	return u, ok && u != ""
}
