package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var separateNames = ColumnMapping{FirstName: "First", LastName: "Last", Phone: "Mobile", Country: "Country"}

func TestTransformSeparateColumns(t *testing.T) {
	tr := NewTransformer(nil)
	rec := RawRecord{"First": "José", "Last": "O'Brien", "Mobile": "+1 (555) 123-4567", "Country": "United States"}

	got := tr.Transform(rec, separateNames)

	assert.Equal(t, CanonicalRecord{
		Phone:      "+15551234567",
		FirstName:  "jose",
		LastName:   "obrien",
		CountryISO: "US",
	}, got)
}

func TestTransformCombinedName(t *testing.T) {
	tr := NewTransformer(nil)
	m := ColumnMapping{FirstName: "Name", LastName: "Name", Phone: "Phone", Country: "Country"}
	require.True(t, m.CombinedName())

	got := tr.Transform(RawRecord{"Name": "Maria Garcia Lopez", "Phone": "5551234567", "Country": "Mexico"}, m)
	assert.Equal(t, "maria", got.FirstName)
	assert.Equal(t, "lopez", got.LastName)
	assert.Equal(t, "+525551234567", got.Phone)

	single := tr.Transform(RawRecord{"Name": "Cher", "Phone": "", "Country": ""}, m)
	assert.Equal(t, "cher", single.FirstName)
	assert.Equal(t, "cher", single.LastName)

	missing := tr.Transform(RawRecord{"Phone": "1"}, m)
	assert.Empty(t, missing.FirstName)
	assert.Empty(t, missing.LastName)
}

func TestTransformUnresolvedCountry(t *testing.T) {
	tr := NewTransformer(nil)
	got, report := tr.TransformWithReport(RawRecord{
		"First": "Ann", "Last": "Lee", "Mobile": "555-123-4567", "Country": "Atlantis",
	}, separateNames)

	assert.Equal(t, "5551234567", got.Phone)
	assert.Empty(t, got.CountryISO)
	assert.False(t, report.Country.Resolved())
	assert.Empty(t, report.Malformed)
}

func TestTransformMissingPhoneKeepsNoPrefix(t *testing.T) {
	tr := NewTransformer(nil)
	got, report := tr.TransformWithReport(RawRecord{
		"First": "Bob", "Last": "Ray", "Mobile": "", "Country": "United States",
	}, separateNames)

	assert.Equal(t, CanonicalRecord{FirstName: "bob", LastName: "ray", CountryISO: "US"}, got)
	assert.True(t, report.Country.Resolved())
	assert.Empty(t, Encode(got).PHONE)
}

func TestTransformEmptyAndMalformed(t *testing.T) {
	tr := NewTransformer(nil)

	got, report := tr.TransformWithReport(RawRecord{
		"First":  "\xff\xfe",
		"Mobile": "\xc3\x28",
	}, separateNames)

	assert.Equal(t, CanonicalRecord{}, got)
	assert.ElementsMatch(t, []Role{RoleFirstName, RolePhone}, report.Malformed)
	assert.Equal(t, MatchNone, report.Country.Match)
}

func TestTransformIsPure(t *testing.T) {
	tr := NewTransformer(nil)
	rec := RawRecord{"First": "Zoë", "Last": "Ünal", "Mobile": "0532 123 45 67", "Country": "Türkiye"}
	a := tr.Transform(rec, separateNames)
	b := tr.Transform(rec, separateNames)
	assert.Equal(t, a, b)
	assert.Equal(t, "+905321234567", a.Phone)
}

func TestColumnMappingCheck(t *testing.T) {
	header := []string{"First", "Last", "Mobile", "Country"}
	require.NoError(t, separateNames.Check(header))

	m := separateNames
	m.Phone = "Telephone"
	err := m.Check(header)
	require.ErrorIs(t, err, ErrMissingColumn)

	var mc *MissingColumnError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, RolePhone, mc.Role)
	assert.Equal(t, "Telephone", mc.Column)
	assert.Contains(t, err.Error(), `"Telephone"`)

	m = separateNames
	m.Country = ""
	require.ErrorAs(t, m.Check(header), &mc)
	assert.Equal(t, RoleCountry, mc.Role)
}

func TestTableRecord(t *testing.T) {
	tbl := &Table{
		Header: []string{"a", "b", "a", "c"},
		Rows:   [][]string{{"1", "2", "3"}},
	}
	rec := tbl.Record(0)
	assert.Equal(t, RawRecord{"a": "1", "b": "2"}, rec)
	_, ok := rec["c"]
	assert.False(t, ok, "short row leaves trailing columns absent")
}
