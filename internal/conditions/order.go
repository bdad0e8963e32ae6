package conditions

import (
	"sort"

	"github.com/redditmod/modbot/internal/models"
)

// Complexity estimates how many extra requests checking the tree at idx costs
func Complexity(f *Forest, idx int) int {
	n := f.Node(idx)
	c := &n.Condition
	cost := 0

	// meme pages are fetched from a third-party site
	if c.Attribute == models.AttributeMemeName {
		cost++
	}
	if c.HasEligibility() {
		cost++
	}
	if c.IsShadowbanned != nil {
		cost++
	}
	// reply plus distinguish
	if c.Comment != "" {
		cost += 2
	}

	for _, child := range n.Children {
		cost += Complexity(f, child)
	}
	return cost
}

// Order returns idxs sorted cheapest first, keeping input order on ties
func Order(f *Forest, idxs []int) []int {
	costs := make(map[int]int, len(idxs))
	for _, i := range idxs {
		costs[i] = Complexity(f, i)
	}

	out := make([]int, len(idxs))
	copy(out, idxs)
	sort.SliceStable(out, func(a, b int) bool { return costs[out[a]] < costs[out[b]] })
	return out
}
