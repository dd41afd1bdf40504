package flow

// Reachable returns the indices of every node reachable from the given node
// by following outgoing edges, including the node itself, in BFS order.
func Reachable(f *Flow, from int) []int {
	visited := make([]bool, len(f.nodes))
	queue := []int{from}
	visited[from] = true
	var out []int
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		for _, ei := range f.nodes[cur].out {
			next := f.edges[ei].to
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return out
}

// Connected reports whether a path of at least one edge leads from one node
// to another. Connected(f, n, n) reports whether n lies on a cycle.
func Connected(f *Flow, from, to int) bool {
	for _, ei := range f.nodes[from].out {
		next := f.edges[ei].to
		if next == to {
			return true
		}
		for _, r := range Reachable(f, next) {
			if r == to {
				return true
			}
		}
	}
	return false
}

// Cyclic reports whether the flow contains a cycle.
func Cyclic(f *Flow) bool {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(f.nodes))
	var visit func(int) bool
	visit = func(n int) bool {
		color[n] = grey
		for _, ei := range f.nodes[n].out {
			next := f.edges[ei].to
			switch color[next] {
			case grey:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}
	for i := range f.nodes {
		if color[i] == white && visit(i) {
			return true
		}
	}
	return false
}
