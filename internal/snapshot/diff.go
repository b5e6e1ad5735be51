package snapshot

// NewEntries returns the records of newList whose symbol does not appear
// in oldList, preserving newList's order. A nil or empty oldList means no
// priors, so every entry of newList is new; whether that first run should
// alert is the caller's policy, not the differ's.
func NewEntries(oldList, newList []Record) []Record {
	if len(newList) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(oldList))
	for _, r := range oldList {
		seen[r.Symbol] = struct{}{}
	}

	var fresh []Record
	for _, r := range newList {
		if _, ok := seen[r.Symbol]; !ok {
			fresh = append(fresh, r)
		}
	}
	return fresh
}
