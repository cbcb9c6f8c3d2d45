// Package identity derives the stable fingerprints that let the same event
// scraped from different sources collapse to one registry entry.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

const separator = "|"

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases s and reduces every run of punctuation or whitespace
// to a single space.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// UID hashes the normalized, non-empty parts into a 32 character hex digest.
func UID(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		n := Normalize(p)
		if n == "" {
			continue
		}
		kept = append(kept, n)
	}
	sum := md5.Sum([]byte(strings.Join(kept, separator)))
	return hex.EncodeToString(sum[:])
}

// EventUID is the fingerprint of an event: title, wall-clock start and the
// url (or the location when there is no url).
func EventUID(title string, start time.Time, urlOrLocation string) string {
	var when string
	if !start.IsZero() {
		when = start.Format("2006-01-02T15:04")
	}
	return UID(title, when, urlOrLocation)
}
