package audience

// Dedupe collapses records sharing a Phone key. Each surviving key keeps
// the position of its first occurrence and the field values of its last.
// An empty Phone is a key like any other.
func Dedupe(records []CanonicalRecord) []CanonicalRecord {
	slot := make(map[string]int, len(records))
	out := make([]CanonicalRecord, 0, len(records))
	for _, rec := range records {
		if i, seen := slot[rec.Phone]; seen {
			out[i] = rec
			continue
		}
		slot[rec.Phone] = len(out)
		out = append(out, rec)
	}
	return out
}
