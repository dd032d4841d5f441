package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeLastValueFirstPosition(t *testing.T) {
	in := []CanonicalRecord{
		{Phone: "+15551234567", FirstName: "old"},
		{Phone: "+442079460958", FirstName: "uk"},
		{Phone: "+15551234567", FirstName: "new"},
		{Phone: "", FirstName: "nophone1"},
		{Phone: "", FirstName: "nophone2"},
	}

	got := Dedupe(in)

	assert.Equal(t, []CanonicalRecord{
		{Phone: "+15551234567", FirstName: "new"},
		{Phone: "+442079460958", FirstName: "uk"},
		{Phone: "", FirstName: "nophone2"},
	}, got)
}

func TestDedupeDifferentPrefixesStayDistinct(t *testing.T) {
	in := []CanonicalRecord{
		{Phone: "+15551234567", CountryISO: "US"},
		{Phone: "+525551234567", CountryISO: "MX"},
		{Phone: "5551234567"},
	}
	assert.Len(t, Dedupe(in), 3)
}

func TestDedupeKeyCount(t *testing.T) {
	var in []CanonicalRecord
	keys := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		p := []string{"+1", "+44", "+49", ""}[i%4] + "555000" + string(rune('0'+i%7))
		keys[p] = struct{}{}
		in = append(in, CanonicalRecord{Phone: p})
	}

	out := Dedupe(in)
	assert.Len(t, out, len(keys))

	seen := map[string]bool{}
	for _, r := range out {
		assert.False(t, seen[r.Phone], "duplicate key %q", r.Phone)
		seen[r.Phone] = true
	}
}

func TestDedupeEmpty(t *testing.T) {
	assert.Empty(t, Dedupe(nil))
}
