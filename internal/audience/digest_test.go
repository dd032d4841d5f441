package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sha256ABC = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func TestHashValue(t *testing.T) {
	assert.Equal(t, sha256ABC, HashValue("abc"))
	assert.Equal(t, sha256ABC, HashValue("  ABC "), "trimmed and lowercased before hashing")
	assert.Equal(t, "", HashValue(""))
	assert.Len(t, HashValue("+15551234567"), 64)
}

func TestEncode(t *testing.T) {
	rec := CanonicalRecord{Phone: "+15551234567", FirstName: "abc", LastName: "", CountryISO: "US"}

	got := Encode(rec)

	assert.Equal(t, sha256ABC, got.FN)
	assert.Equal(t, "", got.LN)
	assert.Equal(t, HashValue("+15551234567"), got.PHONE)
	assert.False(t, got.Complete())
	assert.Equal(t, []string{got.FN, got.LN, got.PHONE}, got.Values())
	assert.Equal(t, Encode(rec), got, "encoding is deterministic")
}

func TestDigestSchemaOrder(t *testing.T) {
	assert.Equal(t, []string{"FN", "LN", "PHONE"}, DigestSchema)
}
