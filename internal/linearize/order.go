package linearize

import "github.com/Napageneral/chatlog/internal/export"

type decodedNode struct {
	id   string
	node *export.Node
}

// orderNodes decodes the mapping, dropping nodes that are null or fail to decode, and
// sequences the rest according to order.
//
// Tree order: roots are nodes whose parent is absent or unknown, taken in mapping order;
// each root's subtree is emitted depth-first following the children lists. Nodes never
// reached that way (cycles, children lists that omit them) follow in mapping order.
// Without any links this degenerates to mapping order.
//
// When current names a node, the branch from its root down to it is the export's active
// path: that root is walked first and, at every fork, the child on the path comes before
// its siblings.
func orderNodes(m export.Mapping, order Order, current string) []decodedNode {
	nodes := make([]decodedNode, 0, len(m))
	byID := make(map[string]int, len(m))
	linked := false
	for _, e := range m {
		n, err := e.Decode()
		if err != nil || n == nil {
			continue
		}
		byID[e.NodeID] = len(nodes)
		nodes = append(nodes, decodedNode{id: e.NodeID, node: n})
		if n.HasLinks() {
			linked = true
		}
	}
	if order == OrderMapping || !linked {
		return nodes
	}

	out := make([]decodedNode, 0, len(nodes))
	visited := make([]bool, len(nodes))
	active := activePath(nodes, byID, current)

	walk := func(i int) {
		// Explicit stack keeps deep conversations off the goroutine stack.
		stack := []int{i}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			out = append(out, nodes[cur])
			next := -1
			children := nodes[cur].node.Children
			for c := len(children) - 1; c >= 0; c-- {
				j, ok := byID[children[c]]
				if !ok || visited[j] {
					continue
				}
				if active[j] && next < 0 {
					next = j
					continue
				}
				stack = append(stack, j)
			}
			// Pushed last, popped first.
			if next >= 0 {
				stack = append(stack, next)
			}
		}
	}

	for i, n := range nodes {
		if active[i] && isRoot(n.node, byID) {
			walk(i)
		}
	}
	for i, n := range nodes {
		if isRoot(n.node, byID) {
			walk(i)
		}
	}
	for i := range nodes {
		if !visited[i] {
			walk(i)
		}
	}
	return out
}

func isRoot(n *export.Node, byID map[string]int) bool {
	if n.Parent == nil || *n.Parent == "" {
		return true
	}
	_, known := byID[*n.Parent]
	return !known
}

// activePath marks current and its ancestors. Unknown or empty current marks nothing.
func activePath(nodes []decodedNode, byID map[string]int, current string) []bool {
	active := make([]bool, len(nodes))
	i, ok := byID[current]
	for ok && !active[i] {
		active[i] = true
		p := nodes[i].node.Parent
		if p == nil {
			break
		}
		i, ok = byID[*p]
	}
	return active
}
