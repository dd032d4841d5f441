package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customerTable() *Table {
	return &Table{
		Header: []string{"First", "Last", "Mobile", "Country", "Brand"},
		Rows: [][]string{
			{"José", "O'Brien", "+1 (555) 123-4567", "United States", "acme"},
			{"Ann", "Lee", "020 7946 0958", "United Kingdom", "globex"},
			{"Joseph", "Brien", "555.123.4567", "USA", "acme"},
			{"Nobody", "Here", "555-000-1111", "Atlantis", "acme"},
			{"", "", "", "", "initech"},
		},
	}
}

func TestPipelineRun(t *testing.T) {
	p := NewPipeline(nil)

	res, err := p.Run(customerTable(), Options{Mapping: separateNames})
	require.NoError(t, err)

	require.Len(t, res.Records, 4)
	assert.Equal(t, CanonicalRecord{Phone: "+15551234567", FirstName: "joseph", LastName: "brien", CountryISO: "US"}, res.Records[0])
	assert.Equal(t, "+442079460958", res.Records[1].Phone)
	assert.Equal(t, "5550001111", res.Records[2].Phone)
	assert.Equal(t, CanonicalRecord{}, res.Records[3])

	require.Len(t, res.Digests, 4)
	assert.Equal(t, HashValue("joseph"), res.Digests[0].FN)
	assert.Equal(t, DigestRecord{}, res.Digests[3])

	assert.Equal(t, Stats{
		InputRows:           5,
		OutputRows:          4,
		DuplicateRows:       1,
		UnresolvedCountries: 2,
		UnresolvedByText:    map[string]int{"Atlantis": 1},
		MatchKinds:          map[string]int{"exact": 2, "code": 1, "none": 2},
	}, res.Stats)
}

func TestPipelinePhoneless(t *testing.T) {
	table := &Table{
		Header: []string{"First", "Last", "Mobile", "Country"},
		Rows: [][]string{
			{"Amy", "Ash", "", "United States"},
			{"Bob", "Birch", "none", "United States"},
			{"Cal", "Cole", "555-123-4567", "United States"},
		},
	}

	res, err := NewPipeline(nil).Run(table, Options{Mapping: separateNames})
	require.NoError(t, err)

	require.Len(t, res.Records, 2, "phoneless rows share the empty key")
	assert.Equal(t, CanonicalRecord{FirstName: "bob", LastName: "birch", CountryISO: "US"}, res.Records[0])
	assert.Equal(t, "", res.Digests[0].PHONE)
	assert.Equal(t, HashValue("+15551234567"), res.Digests[1].PHONE)
	assert.Equal(t, 1, res.Stats.DuplicateRows)
}

func TestPipelineDeterministic(t *testing.T) {
	p := NewPipeline(nil)
	a, err := p.Run(customerTable(), Options{Mapping: separateNames})
	require.NoError(t, err)
	b, err := p.Run(customerTable(), Options{Mapping: separateNames})
	require.NoError(t, err)
	assert.Equal(t, a.Digests, b.Digests)
}

func TestPipelineFilter(t *testing.T) {
	p := NewPipeline(nil)

	res, err := p.Run(customerTable(), Options{
		Mapping: separateNames,
		Filter:  Filter{Column: "Brand", Values: []string{" globex "}},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "ann", res.Records[0].FirstName)
	assert.Equal(t, 4, res.Stats.FilteredRows)

	res, err = p.Run(customerTable(), Options{
		Mapping: separateNames,
		Filter:  Filter{Column: "Brand"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Records, 4, "filter without values keeps every row")
}

func TestPipelineMissingColumn(t *testing.T) {
	p := NewPipeline(nil)

	m := separateNames
	m.Country = "Nation"
	_, err := p.Run(customerTable(), Options{Mapping: m})
	require.ErrorIs(t, err, ErrMissingColumn)

	_, err = p.Run(customerTable(), Options{Mapping: separateNames, Filter: Filter{Column: "Store", Values: []string{"x"}}})
	var mc *MissingColumnError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, RoleFilter, mc.Role)
}

func TestPipelineEmptyResult(t *testing.T) {
	p := NewPipeline(nil)

	res, err := p.Run(&Table{Header: customerTable().Header}, Options{Mapping: separateNames})
	require.ErrorIs(t, err, ErrEmptyResult)
	require.NotNil(t, res)
	assert.Zero(t, res.Stats.OutputRows)

	res, err = p.Run(customerTable(), Options{
		Mapping: separateNames,
		Filter:  Filter{Column: "Brand", Values: []string{"umbrella"}},
	})
	require.ErrorIs(t, err, ErrEmptyResult)
	assert.Equal(t, 5, res.Stats.FilteredRows)
}
