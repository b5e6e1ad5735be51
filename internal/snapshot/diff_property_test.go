package snapshot

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: the differ returns exactly the new list's symbols that are
// absent from the old list, in the new list's order, and returns nothing
// when both lists are equal.
func TestProperty_NewEntries(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbolGen := gen.RegexMatch(`[A-Z]{1,4}`)
	listGen := gen.SliceOf(symbolGen)

	toRecords := func(symbols []string) []Record {
		out := make([]Record, len(symbols))
		for i, s := range symbols {
			out[i] = NewRecord(s)
		}
		return out
	}

	properties.Property("equal lists produce no entries", prop.ForAll(
		func(symbols []string) bool {
			list := toRecords(symbols)
			return len(NewEntries(list, list)) == 0
		},
		listGen,
	))

	properties.Property("empty old list returns all of new", prop.ForAll(
		func(symbols []string) bool {
			list := toRecords(symbols)
			got := NewEntries(nil, list)
			if len(got) != len(list) {
				return false
			}
			for i := range got {
				if got[i].Symbol != list[i].Symbol {
					return false
				}
			}
			return true
		},
		listGen,
	))

	properties.Property("result is an order-preserving subsequence of new", prop.ForAll(
		func(oldSymbols, newSymbols []string) bool {
			got := NewEntries(toRecords(oldSymbols), toRecords(newSymbols))

			// Every result symbol must be in new and not in old.
			oldSet := make(map[string]bool)
			for _, s := range oldSymbols {
				oldSet[s] = true
			}
			for _, r := range got {
				if oldSet[r.Symbol] {
					return false
				}
			}

			// Subsequence check against new.
			i := 0
			for _, s := range newSymbols {
				if i < len(got) && got[i].Symbol == s {
					i++
				}
			}
			return i == len(got)
		},
		listGen,
		listGen,
	))

	properties.TestingRun(t)
}
