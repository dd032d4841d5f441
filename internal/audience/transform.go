package audience

import "unicode/utf8"

// Transformer turns raw rows into canonical records. The zero value is not
// usable; construct with NewTransformer.
type Transformer struct {
	resolver *CountryResolver
}

// NewTransformer returns a Transformer using resolver, or the default
// resolver when nil.
func NewTransformer(resolver *CountryResolver) *Transformer {
	if resolver == nil {
		resolver = DefaultCountryResolver()
	}
	return &Transformer{resolver: resolver}
}

// RowReport describes the anomalies absorbed while transforming one row.
type RowReport struct {
	Country   CountryResolution
	Malformed []Role
}

// Transform canonicalizes rec under m. It never fails: absent or malformed
// values become empty strings.
func (t *Transformer) Transform(rec RawRecord, m ColumnMapping) CanonicalRecord {
	out, _ := t.TransformWithReport(rec, m)
	return out
}

// TransformWithReport is Transform plus the per-row report used for
// aggregate statistics.
func (t *Transformer) TransformWithReport(rec RawRecord, m ColumnMapping) (CanonicalRecord, RowReport) {
	var report RowReport
	text := func(role Role) string {
		v, ok := rec[m.Column(role)]
		if !ok {
			return ""
		}
		if !utf8.ValidString(v) {
			report.Malformed = append(report.Malformed, role)
			return ""
		}
		return v
	}

	var first, last string
	if m.CombinedName() {
		first, last = SplitName(text(RoleFirstName))
	} else {
		first, last = text(RoleFirstName), text(RoleLastName)
	}

	report.Country = t.resolver.Resolve(text(RoleCountry))

	return CanonicalRecord{
		Phone:      NormalizePhone(text(RolePhone), report.Country.DialPrefix),
		FirstName:  NormalizeName(first),
		LastName:   NormalizeName(last),
		CountryISO: report.Country.ISO,
	}, report
}
