package audience

import "strings"

// headerAliases maps folded header names to the role they usually hold.
// Folding lowercases and drops spaces, underscores, hyphens and dots.
var headerAliases = map[string]Role{
	// First name
	"firstname": RoleFirstName,
	"fname":     RoleFirstName,
	"first":     RoleFirstName,
	"givenname": RoleFirstName,
	"forename":  RoleFirstName,
	"nombre":    RoleFirstName,

	// Last name
	"lastname":   RoleLastName,
	"lname":      RoleLastName,
	"last":       RoleLastName,
	"surname":    RoleLastName,
	"familyname": RoleLastName,
	"apellido":   RoleLastName,
	"apellidos":  RoleLastName,

	// Phone
	"phone":        RolePhone,
	"phonenumber":  RolePhone,
	"mobile":       RolePhone,
	"mobilenumber": RolePhone,
	"mobilephone":  RolePhone,
	"cell":         RolePhone,
	"cellphone":    RolePhone,
	"telephone":    RolePhone,
	"tel":          RolePhone,
	"telefono":     RolePhone,
	"celular":      RolePhone,
	"whatsapp":     RolePhone,
	"msisdn":       RolePhone,

	// Country
	"country":     RoleCountry,
	"countrycode": RoleCountry,
	"countryname": RoleCountry,
	"pais":        RoleCountry,
	"nation":      RoleCountry,
}

// fullNameHeaders hold a full name to be split into both name roles.
var fullNameHeaders = map[string]bool{
	"name":           true,
	"fullname":       true,
	"customername":   true,
	"contactname":    true,
	"nombrecompleto": true,
}

var headerFolder = strings.NewReplacer(" ", "", "_", "", "-", "", ".", "", "\"", "", "'", "")

func foldHeader(h string) string {
	return headerFolder.Replace(strings.ToLower(strings.TrimSpace(h)))
}

// SuggestMapping guesses a column for each role from header names. Roles
// with no plausible column stay empty. A lone full-name column fills both
// name roles so the name is split.
func SuggestMapping(header []string) ColumnMapping {
	var m ColumnMapping
	fullName := ""
	set := func(dst *string, col string) {
		if *dst == "" {
			*dst = col
		}
	}

	for _, h := range header {
		key := foldHeader(h)
		if fullNameHeaders[key] && fullName == "" {
			fullName = h
			continue
		}
		switch headerAliases[key] {
		case RoleFirstName:
			set(&m.FirstName, h)
		case RoleLastName:
			set(&m.LastName, h)
		case RolePhone:
			set(&m.Phone, h)
		case RoleCountry:
			set(&m.Country, h)
		}
	}

	// Fallback: scan for headers containing a role keyword if no exact match
	for _, h := range header {
		key := foldHeader(h)
		switch {
		case m.Phone == "" && (strings.Contains(key, "phone") || strings.Contains(key, "mobile")):
			m.Phone = h
		case m.Country == "" && strings.Contains(key, "country"):
			m.Country = h
		}
	}

	if fullName != "" && (m.FirstName == "" || m.LastName == "") {
		m.FirstName, m.LastName = fullName, fullName
	}
	return m
}
