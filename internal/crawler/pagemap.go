package crawler

// Node is one accessibility tree node
type Node struct {
	Role     string  `json:"role"`
	Name     string  `json:"name,omitempty"`
	Value    string  `json:"value,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Count returns the number of nodes in the subtree
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// Observation is the page state handed to the planner for one round
type Observation struct {
	AccessibilityTree *Node  `json:"accessibility_tree"`
	HTMLSnippet       string `json:"html_snippet"`
}
