package feed

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
)

// EntryKey returns the dedup key of an entry: the hex SHA-1 of its
// case-folded, trimmed GUID and URL. Entries with equal keys are the same
// entry no matter which feed they came from.
func EntryKey(guid, url string) string {
	normalized := cases.Fold().String(strings.TrimSpace(guid + url))
	sum := sha1.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
