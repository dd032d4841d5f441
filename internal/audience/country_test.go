package audience

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name  string
		input string
		iso   string
		dial  string
		match MatchKind
	}{
		{"short name", "United States", "US", "+1", MatchExact},
		{"official name", "united states of america", "US", "+1", MatchExact},
		{"common name", "Iran", "IR", "+98", MatchExact},
		{"accented name", "Côte d'Ivoire", "CI", "+225", MatchExact},
		{"accent folded query", "cote d'ivoire", "CI", "+225", MatchExact},
		{"surrounding space", "  Germany ", "DE", "+49", MatchExact},
		{"alpha-2", "de", "DE", "+49", MatchCode},
		{"alpha-3", "USA", "US", "+1", MatchCode},
		{"partial in official name", "Britain", "GB", "+44", MatchPartial},
		{"partial tie keeps table order", "Korea", "KR", "+82", MatchPartial},
		{"partial beats subdivision fragments", "UK", "UA", "+380", MatchPartial},
		{"common spelling", "Vietnam", "VN", "+84", MatchExact},
		{"state", "California", "US", "+1", MatchSubdivision},
		{"state lowercase", "texas", "US", "+1", MatchSubdivision},
		{"province", "Ontario", "CA", "+1", MatchSubdivision},
		{"constituent country", "Scotland", "GB", "+44", MatchSubdivision},
		{"constituent country england", "England", "GB", "+44", MatchSubdivision},
		{"alternate subdivision spelling", "Dubai", "AE", "+971", MatchSubdivision},
		{"subdivision code", "us-ca", "US", "+1", MatchSubdivision},
		{"part of two provinces", "Holland", "NL", "+31", MatchSubdivision},
		{"part of a province name", "Kosovo", "RS", "+381", MatchSubdivision},
		{"misspelling stays unresolved", "Germny", "", "", MatchNone},
		{"unknown", "Atlantis", "", "", MatchNone},
		{"empty", "", "", "", MatchNone},
		{"blank", "   ", "", "", MatchNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveCountry(tt.input)
			assert.Equal(t, tt.iso, got.ISO)
			assert.Equal(t, tt.dial, got.DialPrefix)
			assert.Equal(t, tt.match, got.Match)
			assert.Equal(t, tt.iso != "", got.Resolved())
		})
	}
}

func TestNearSpellingsNeverPickAnotherCountry(t *testing.T) {
	// Each of these is within two edits of a different country's name.
	for input, neighbour := range map[string]string{"Holland": "PL", "Dubai": "CU", "Chda": "TD"} {
		assert.NotEqual(t, neighbour, ResolveCountry(input).ISO, input)
	}
}

func TestSubdivisionScores(t *testing.T) {
	r := NewCountryResolverWithSubdivisions([]Country{
		{"AA", "AAA", "Alphaland", "", ""},
		{"BB", "BBB", "Betaland", "", ""},
	}, []Subdivision{
		{"AA-01", "Greenfield"},
		{"BB-01", "Greenfield North"},
		{"BB-02", "Greenfield South"},
		{"ZZ-01", "Nowhere"},
		{"bogus", "Greenfield"},
	})

	// exact name (49) plus the best substring hit (5) beats substrings alone
	got := r.Resolve("Greenfield")
	assert.Equal(t, "AA", got.ISO)
	assert.Equal(t, MatchSubdivision, got.Match)

	// substring hits count once per country
	assert.Equal(t, "BB", r.Resolve("north").ISO)
	assert.Equal(t, "AA", r.Resolve("field").ISO, "tie keeps table order")

	assert.False(t, r.Resolve("nowhere").Resolved(), "subdivision of an unknown country")

	// earlier position in a country name scores higher
	got = r.Resolve("land")
	assert.Equal(t, "BB", got.ISO)
	assert.Equal(t, MatchPartial, got.Match)
}

func TestPartialIgnoresCommonName(t *testing.T) {
	r := NewCountryResolver([]Country{
		{"AA", "AAA", "Alphaland", "", "Starland"},
		{"BB", "BBB", "Republic of Star", "", ""},
	})
	assert.Equal(t, "AA", r.Resolve("Starland").ISO, "common names still match exactly")
	assert.Equal(t, "BB", r.Resolve("star").ISO)
}

func TestClosest(t *testing.T) {
	r := DefaultCountryResolver()

	c, ok := r.Closest("Germny", 2)
	assert.True(t, ok)
	assert.Equal(t, "DE", c.Alpha2)

	c, ok = r.Closest("Frnace", 2)
	assert.True(t, ok)
	assert.Equal(t, "FR", c.Alpha2)

	_, ok = r.Closest("Atlantis", 2)
	assert.False(t, ok)
	_, ok = r.Closest("Chda", 2)
	assert.False(t, ok, "China, Cuba and Chad are all two edits away")
	_, ok = r.Closest("", 2)
	assert.False(t, ok)

	assert.False(t, ResolveCountry("Germny").Resolved(), "hints never resolve")
}

func TestSubdivisionTable(t *testing.T) {
	countries := map[string]bool{}
	for _, c := range isoCountries {
		countries[c.Alpha2] = true
	}
	seen := map[string]bool{}
	for _, sd := range isoSubdivisions {
		prefix, _, ok := strings.Cut(sd.Code, "-")
		require.True(t, ok, sd.Code)
		assert.True(t, countries[prefix], "unknown country in %s", sd.Code)
		assert.False(t, seen[sd.Code], "duplicate code %s", sd.Code)
		assert.NotEmpty(t, sd.Name, sd.Code)
		seen[sd.Code] = true
	}
	assert.Greater(t, len(isoSubdivisions), 5000)
}

func TestCustomResolverTable(t *testing.T) {
	r := NewCountryResolver([]Country{
		{"ZZ", "ZZZ", "Zedland", "", ""},
		{"US", "USA", "United States", "", ""},
	})

	got := r.Resolve("zedland")
	assert.Equal(t, "ZZ", got.ISO)
	assert.Equal(t, "", got.DialPrefix, "unknown region has no calling code")
	assert.True(t, got.Resolved())

	assert.Equal(t, "US", r.Resolve("united").ISO)
}

func TestDialPrefix(t *testing.T) {
	assert.Equal(t, "+1", DialPrefix("US"))
	assert.Equal(t, "+44", DialPrefix("gb"))
	assert.Equal(t, "+52", DialPrefix("MX"))
	assert.Equal(t, "", DialPrefix(""))
	assert.Equal(t, "", DialPrefix("ZZ"))
}

func TestCountryTableCodesUnique(t *testing.T) {
	a2 := map[string]bool{}
	a3 := map[string]bool{}
	for _, c := range isoCountries {
		assert.Len(t, c.Alpha2, 2, c.Name)
		assert.Len(t, c.Alpha3, 3, c.Name)
		assert.False(t, a2[c.Alpha2], "duplicate alpha-2 %s", c.Alpha2)
		assert.False(t, a3[c.Alpha3], "duplicate alpha-3 %s", c.Alpha3)
		a2[c.Alpha2] = true
		a3[c.Alpha3] = true
	}
	assert.Len(t, isoCountries, 249)
}
