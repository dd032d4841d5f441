package audience

// Role is one of the four identity roles a column can be bound to.
type Role string

const (
	RoleFirstName Role = "first_name"
	RoleLastName  Role = "last_name"
	RolePhone     Role = "phone"
	RoleCountry   Role = "country"
)

// Table is an input file held fully in memory: one header row plus data rows.
// Rows may be shorter or longer than the header.
type Table struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Record returns row i keyed by column name. Cells beyond the end of a short
// row are absent from the result. When a header name repeats, the first
// column with that name wins.
func (t *Table) Record(i int) RawRecord {
	row := t.Rows[i]
	rec := make(RawRecord, len(t.Header))
	for j, name := range t.Header {
		if j >= len(row) {
			break
		}
		if _, dup := rec[name]; dup {
			continue
		}
		rec[name] = row[j]
	}
	return rec
}

// HasColumn reports whether name appears in the header.
func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Header {
		if h == name {
			return true
		}
	}
	return false
}

// RawRecord maps column names to the text of one input row.
type RawRecord map[string]string

// ColumnMapping binds each identity role to a column name. FirstName and
// LastName may name the same column, which selects combined-name mode.
type ColumnMapping struct {
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	Phone     string `json:"phone" yaml:"phone"`
	Country   string `json:"country" yaml:"country"`
}

// CombinedName reports whether one column supplies both name fields.
func (m ColumnMapping) CombinedName() bool {
	return m.FirstName == m.LastName
}

// Column returns the column bound to role.
func (m ColumnMapping) Column(role Role) string {
	switch role {
	case RoleFirstName:
		return m.FirstName
	case RoleLastName:
		return m.LastName
	case RolePhone:
		return m.Phone
	case RoleCountry:
		return m.Country
	default:
		return ""
	}
}

var mappingRoles = []Role{RoleFirstName, RoleLastName, RolePhone, RoleCountry}

// Check verifies every role is bound to a column present in header. The
// first unbound or unknown role is reported as a *MissingColumnError.
func (m ColumnMapping) Check(header []string) error {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	for _, role := range mappingRoles {
		col := m.Column(role)
		if _, ok := present[col]; !ok || col == "" {
			return &MissingColumnError{Role: role, Column: col}
		}
	}
	return nil
}

// CanonicalRecord is one row after normalization. Fields are never absent,
// only empty.
type CanonicalRecord struct {
	Phone      string `json:"phone"`
	FirstName  string `json:"fn"`
	LastName   string `json:"ln"`
	CountryISO string `json:"country_iso"`
}

// DigestRecord holds the hex digests submitted for matching.
type DigestRecord struct {
	FN    string
	LN    string
	PHONE string
}

// DigestSchema is the fixed column order of every digest table.
var DigestSchema = []string{"FN", "LN", "PHONE"}

// Values returns the digests in DigestSchema order.
func (d DigestRecord) Values() []string {
	return []string{d.FN, d.LN, d.PHONE}
}

// Complete reports whether every digest field is non-empty.
func (d DigestRecord) Complete() bool {
	return d.FN != "" && d.LN != "" && d.PHONE != ""
}
