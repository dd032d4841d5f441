package audience

import (
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Country is one ISO 3166-1 entry.
type Country struct {
	Alpha2       string
	Alpha3       string
	Name         string
	OfficialName string
	CommonName   string
}

// Subdivision is one ISO 3166-2 entry. Code is "<alpha-2>-<local>".
type Subdivision struct {
	Code string
	Name string
}

// MatchKind tells how a country text was resolved.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchCode
	MatchPartial
	MatchSubdivision
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchCode:
		return "code"
	case MatchPartial:
		return "partial"
	case MatchSubdivision:
		return "subdivision"
	default:
		return "none"
	}
}

// CountryResolution is the outcome of resolving free-text country input.
// The zero value is the unresolved result.
type CountryResolution struct {
	ISO        string
	DialPrefix string
	Match      MatchKind
}

// Resolved reports whether the text matched a country.
func (r CountryResolution) Resolved() bool { return r.ISO != "" }

// Points awarded by the fuzzy search. A country's points add up across
// steps and the highest total wins.
const (
	subdivisionExactScore   = 49
	partialBaseScore        = 30
	partialMinScore         = 5
	subdivisionPartialBase  = 5
	subdivisionPartialFloor = 1
)

type subdivisionEntry struct {
	country int
	code    string
	names   []string // ";"-separated spellings, folded
	full    string   // whole folded name, used for substring matches
}

// CountryResolver maps free text to ISO 3166-1 alpha-2 codes. It is
// immutable after construction and safe for concurrent use.
type CountryResolver struct {
	countries    []Country
	names        [][]string     // folded name and official name per country
	exact        map[string]int // folded name, official or common name -> index
	codes        map[string]int // lowercase alpha-2 / alpha-3 -> index
	dial         []string
	subdivisions []subdivisionEntry
	spellings    []spelling
}

type spelling struct {
	country int
	text    string
}

// NewCountryResolver indexes countries in the given order, with no
// subdivisions. Order breaks ties between equally scored matches.
func NewCountryResolver(countries []Country) *CountryResolver {
	return NewCountryResolverWithSubdivisions(countries, nil)
}

// NewCountryResolverWithSubdivisions also indexes subdivision names.
// Subdivisions whose code prefix is not in countries are ignored.
func NewCountryResolverWithSubdivisions(countries []Country, subdivisions []Subdivision) *CountryResolver {
	r := &CountryResolver{
		countries: countries,
		names:     make([][]string, len(countries)),
		exact:     make(map[string]int, len(countries)*2),
		codes:     make(map[string]int, len(countries)*2),
		dial:      make([]string, len(countries)),
	}
	for i, c := range countries {
		for _, n := range []string{c.Name, c.OfficialName, c.CommonName} {
			if n == "" {
				continue
			}
			key := foldCountryText(n)
			r.spellings = append(r.spellings, spelling{i, key})
			if _, taken := r.exact[key]; !taken {
				r.exact[key] = i
			}
		}
		for _, n := range []string{c.Name, c.OfficialName} {
			if n != "" {
				r.names[i] = append(r.names[i], foldCountryText(n))
			}
		}
		r.codes[strings.ToLower(c.Alpha2)] = i
		r.codes[strings.ToLower(c.Alpha3)] = i
		r.dial[i] = DialPrefix(c.Alpha2)
	}

	r.subdivisions = make([]subdivisionEntry, 0, len(subdivisions))
	for _, sd := range subdivisions {
		prefix, _, ok := strings.Cut(sd.Code, "-")
		if !ok {
			continue
		}
		i, ok := r.codes[strings.ToLower(prefix)]
		if !ok || len(prefix) != 2 {
			continue
		}
		full := foldCountryText(sd.Name)
		r.subdivisions = append(r.subdivisions, subdivisionEntry{
			country: i,
			code:    strings.ToLower(sd.Code),
			names:   strings.Split(full, ";"),
			full:    full,
		})
	}
	return r
}

var defaultResolver = sync.OnceValue(func() *CountryResolver {
	return NewCountryResolverWithSubdivisions(isoCountries, isoSubdivisions)
})

// DefaultCountryResolver returns the process-wide resolver over the
// built-in ISO 3166-1 and ISO 3166-2 tables.
func DefaultCountryResolver() *CountryResolver { return defaultResolver() }

// ResolveCountry resolves text with the default resolver.
func ResolveCountry(text string) CountryResolution {
	return DefaultCountryResolver().Resolve(text)
}

// Resolve tries an exact name match, then an alpha-2/alpha-3 code match,
// then a scored search over country and subdivision names. Failure of
// every step yields the zero CountryResolution.
func (r *CountryResolver) Resolve(text string) CountryResolution {
	q := foldCountryText(text)
	if q == "" {
		return CountryResolution{}
	}
	if i, ok := r.exact[q]; ok {
		return r.result(i, MatchExact)
	}
	if i, ok := r.codes[q]; ok {
		return r.result(i, MatchCode)
	}
	return r.search(q)
}

func (r *CountryResolver) result(i int, kind MatchKind) CountryResolution {
	return CountryResolution{ISO: r.countries[i].Alpha2, DialPrefix: r.dial[i], Match: kind}
}

// search scores every country against q:
//
//   - 49 for each subdivision whose code or one of its spellings equals q
//   - max(5, 30-2*pos) when the country's name or official name contains
//     q at rune offset pos; only the first matching name counts
//   - max(1, 5-pos) for the best subdivision name containing q
//
// The highest total wins and ties keep table order. The result is MatchPartial
// when a country name contributed, MatchSubdivision otherwise.
func (r *CountryResolver) search(q string) CountryResolution {
	scores := make(map[int]int)
	byName := make(map[int]bool)

	for _, sd := range r.subdivisions {
		if sd.code == q || slices.Contains(sd.names, q) {
			scores[sd.country] += subdivisionExactScore
		}
	}
	for i, names := range r.names {
		for _, n := range names {
			pos := runeIndex(n, q)
			if pos < 0 {
				continue
			}
			scores[i] += max(partialMinScore, partialBaseScore-2*pos)
			byName[i] = true
			break
		}
	}
	best := make(map[int]int)
	for _, sd := range r.subdivisions {
		if pos := runeIndex(sd.full, q); pos >= 0 {
			best[sd.country] = max(best[sd.country], subdivisionPartialBase-pos, subdivisionPartialFloor)
		}
	}
	for i, pts := range best {
		scores[i] += pts
	}

	if len(scores) == 0 {
		return CountryResolution{}
	}
	winners := make([]int, 0, len(scores))
	for i := range scores {
		winners = append(winners, i)
	}
	sort.Slice(winners, func(a, b int) bool {
		sa, sb := scores[winners[a]], scores[winners[b]]
		if sa != sb {
			return sa > sb
		}
		return winners[a] < winners[b]
	})
	if byName[winners[0]] {
		return r.result(winners[0], MatchPartial)
	}
	return r.result(winners[0], MatchSubdivision)
}

// Closest returns the country spelled nearest to text when exactly one
// country lies within maxDistance edits. It only produces hints for
// operators; Resolve never uses it.
func (r *CountryResolver) Closest(text string, maxDistance int) (Country, bool) {
	q := foldCountryText(text)
	if q == "" {
		return Country{}, false
	}
	best, bestDist, tied := -1, maxDistance+1, false
	for _, sp := range r.spellings {
		d := fuzzy.LevenshteinDistance(q, sp.text)
		switch {
		case d < bestDist:
			best, bestDist, tied = sp.country, d, false
		case d == bestDist && sp.country != best:
			tied = true
		}
	}
	if best < 0 || tied {
		return Country{}, false
	}
	return r.countries[best], true
}

// runeIndex is strings.Index counted in runes.
func runeIndex(s, sub string) int {
	i := strings.Index(s, sub)
	if i < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:i])
}

// DialPrefix returns "+N" for an ISO 3166-1 alpha-2 region, or "" when the
// region has no calling code.
func DialPrefix(iso string) string {
	if iso == "" {
		return ""
	}
	code := phonenumbers.GetCountryCodeForRegion(strings.ToUpper(iso))
	if code == 0 {
		return ""
	}
	return "+" + strconv.Itoa(code)
}

// foldCountryText trims, strips combining marks and lowercases.
func foldCountryText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripAccents, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
