package agenda

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DerivedID is the identity of a projected event: a stable hash of kind,
// subject and date, prefixed with the origin so the id alone tells callers
// the event cannot be mutated.
func DerivedID(origin Origin, kind Kind, subjectID string, d Date) string {
	sum := sha256.Sum256([]byte(string(kind) + "|" + subjectID + "|" + d.String()))
	return string(origin) + ":" + hex.EncodeToString(sum[:8])
}

// OriginOfID recovers the origin encoded in a derived id. Any other id is
// treated as user-created.
func OriginOfID(id string) Origin {
	prefix, _, ok := strings.Cut(id, ":")
	if ok && Origin(prefix).IsDerived() {
		return Origin(prefix)
	}
	return OriginUser
}

const occurrenceSep = "@"

// OccurrenceID names one expanded occurrence of a recurring series.
func OccurrenceID(seriesID string, d Date) string {
	return seriesID + occurrenceSep + d.String()
}

// SplitOccurrenceID returns the series id and occurrence date of an
// occurrence id. ok is false for plain ids.
func SplitOccurrenceID(id string) (seriesID string, d Date, ok bool) {
	i := strings.LastIndex(id, occurrenceSep)
	if i <= 0 {
		return id, Date{}, false
	}
	parsed, err := ParseDate(id[i+1:])
	if err != nil {
		return id, Date{}, false
	}
	return id[:i], parsed, true
}
