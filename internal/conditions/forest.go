package conditions

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/redditmod/modbot/internal/models"
	"github.com/sirupsen/logrus"
)

// Node is one condition in the forest arena
type Node struct {
	Condition models.Condition
	// RootAction is the action of the tree this node belongs to
	RootAction models.Action
	Children   []int

	pattern    *regexp.Regexp
	patternErr error
}

// Forest holds every reachable condition of a community, one tree per rule
type Forest struct {
	Nodes []Node
	Roots []int
}

// NewForest builds the arena from a flat condition list linked by parent ids.
// Conditions that cannot be reached from a root (orphans and cycles) are
// dropped. Unknown attributes fail the whole build.
func NewForest(conds []models.Condition) (*Forest, error) {
	sorted := make([]models.Condition, len(conds))
	copy(sorted, conds)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	children := make(map[int64][]int)
	var roots []int
	for i, c := range sorted {
		if _, err := models.ParseAttribute(string(c.Attribute)); err != nil {
			return nil, fmt.Errorf("condition %d: %w", c.ID, err)
		}
		if c.ParentID == nil {
			roots = append(roots, i)
			continue
		}
		children[*c.ParentID] = append(children[*c.ParentID], i)
	}

	f := &Forest{Nodes: make([]Node, 0, len(sorted))}
	visited := make(map[int]bool, len(sorted))

	var add func(src int, rootAction models.Action) int
	add = func(src int, rootAction models.Action) int {
		visited[src] = true
		c := sorted[src]
		idx := len(f.Nodes)
		f.Nodes = append(f.Nodes, Node{Condition: c, RootAction: rootAction})
		f.Nodes[idx].pattern, f.Nodes[idx].patternErr = compilePattern(c.Value)

		for _, child := range children[c.ID] {
			if visited[child] {
				continue
			}
			childIdx := add(child, rootAction)
			f.Nodes[idx].Children = append(f.Nodes[idx].Children, childIdx)
		}
		return idx
	}

	for _, r := range roots {
		f.Roots = append(f.Roots, add(r, sorted[r].Action))
	}

	if dropped := len(sorted) - len(f.Nodes); dropped > 0 {
		logrus.Warnf("Dropped %d conditions not reachable from a top-level rule", dropped)
	}

	return f, nil
}

// compilePattern anchors the value so it must match the whole string
func compilePattern(value string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`(?is)^(?:` + value + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", value, err)
	}
	return re, nil
}

// Node returns the node at idx
func (f *Forest) Node(idx int) *Node {
	return &f.Nodes[idx]
}

// UsesProbe reports whether the tree rooted at idx needs the reachability probe
func (f *Forest) UsesProbe(idx int) bool {
	n := f.Node(idx)
	if n.Condition.IsShadowbanned != nil {
		return true
	}
	for _, c := range n.Children {
		if f.UsesProbe(c) {
			return true
		}
	}
	return false
}

// RootsWhere returns the roots accepted by keep, in forest order
func (f *Forest) RootsWhere(keep func(idx int, n *Node) bool) []int {
	var out []int
	for _, r := range f.Roots {
		if keep(r, f.Node(r)) {
			out = append(out, r)
		}
	}
	return out
}
