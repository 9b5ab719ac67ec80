// Package allocation rescales a proposed allocation so that every category
// receives its configured share of the investment.
package allocation

import (
	"sort"

	"llm-rebalancer/internal/types"
)

// Normalize keeps the symbols of proposed that belong to a category and
// rescales them so each category sums to its target share:
//
//	w' = target[category] * w / sum(w over category)
//
// A category whose proposed weights sum to zero gets zero for every member.
// A symbol listed in several categories counts toward the first one in
// sorted category order. The result is empty when no symbol survives or every
// category sum is zero; callers treat that as "no rebalance this cycle".
func Normalize(proposed types.Allocation, members map[string][]string, targets map[string]float64) types.Allocation {
	owner := categoryOwners(members)

	sums := make(map[string]float64, len(members))
	for symbol, w := range proposed {
		cat, ok := owner[symbol]
		if !ok {
			continue
		}
		sums[cat] += positive(w)
	}

	out := types.Allocation{}
	total := 0.0
	for symbol, w := range proposed {
		cat, ok := owner[symbol]
		if !ok {
			continue
		}
		sum := sums[cat]
		if sum == 0 {
			out[symbol] = 0
			continue
		}
		nw := targets[cat] * (positive(w) / sum)
		out[symbol] = nw
		total += nw
	}

	if total == 0 {
		return types.Allocation{}
	}
	return out
}

// CategorySums returns the total weight per category of an allocation.
func CategorySums(a types.Allocation, members map[string][]string) map[string]float64 {
	owner := categoryOwners(members)
	out := make(map[string]float64, len(members))
	for cat := range members {
		out[cat] = 0
	}
	for symbol, w := range a {
		if cat, ok := owner[symbol]; ok {
			out[cat] += w
		}
	}
	return out
}

// Sum returns the total weight of an allocation.
func Sum(a types.Allocation) float64 {
	total := 0.0
	for _, w := range a {
		total += w
	}
	return total
}

func categoryOwners(members map[string][]string) map[string]string {
	cats := make([]string, 0, len(members))
	for c := range members {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	owner := map[string]string{}
	for _, c := range cats {
		for _, s := range members[c] {
			if _, taken := owner[s]; !taken {
				owner[s] = c
			}
		}
	}
	return owner
}

func positive(w float64) float64 {
	if w < 0 {
		return 0
	}
	return w
}
