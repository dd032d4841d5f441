package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggestMapping(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   ColumnMapping
	}{
		{
			name:   "separate names",
			header: []string{"ID", "First Name", "Last_Name", "Mobile Number", "Country"},
			want:   ColumnMapping{FirstName: "First Name", LastName: "Last_Name", Phone: "Mobile Number", Country: "Country"},
		},
		{
			name:   "full name column",
			header: []string{"Full Name", "Tel", "Region"},
			want:   ColumnMapping{FirstName: "Full Name", LastName: "Full Name", Phone: "Tel"},
		},
		{
			name:   "keyword fallback",
			header: []string{"Name", "Customer Phone (primary)", "Billing Country"},
			want:   ColumnMapping{FirstName: "Name", LastName: "Name", Phone: "Customer Phone (primary)", Country: "Billing Country"},
		},
		{
			name:   "first alias wins",
			header: []string{"Phone", "Mobile", "First", "FNAME"},
			want:   ColumnMapping{FirstName: "First", Phone: "Phone"},
		},
		{
			name:   "nothing recognizable",
			header: []string{"a", "b"},
			want:   ColumnMapping{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestMapping(tt.header))
		})
	}
}
