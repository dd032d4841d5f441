package audience

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashValue returns the lowercase hex SHA-256 of the trimmed, lowercased
// value. An empty value hashes to the empty string.
func HashValue(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(v))))
	return hex.EncodeToString(sum[:])
}

// Encode hashes the matching fields of rec. CountryISO is not part of the
// digest schema.
func Encode(rec CanonicalRecord) DigestRecord {
	return DigestRecord{
		FN:    HashValue(rec.FirstName),
		LN:    HashValue(rec.LastName),
		PHONE: HashValue(rec.Phone),
	}
}

// EncodeAll hashes records in order.
func EncodeAll(records []CanonicalRecord) []DigestRecord {
	out := make([]DigestRecord, len(records))
	for i, rec := range records {
		out[i] = Encode(rec)
	}
	return out
}
