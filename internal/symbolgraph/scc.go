package symbolgraph

// stronglyConnected runs Tarjan's algorithm over the symbol adjacency map and
// returns the strongly connected components. The traversal is iterative to
// survive deep dependency chains, and nodes are visited in the caller's order
// so component membership is deterministic.
func stronglyConnected(names []string, adjacency map[string][]string) [][]string {
	const unvisited = -1

	index := 0
	indices := make(map[string]int, len(names))
	lowlink := make(map[string]int, len(names))
	onStack := make(map[string]bool, len(names))
	var stack []string
	var components [][]string

	for _, name := range names {
		indices[name] = unvisited
	}

	type frame struct {
		node string
		next int
	}

	for _, root := range names {
		if indices[root] != unvisited {
			continue
		}

		frames := []frame{{node: root}}
		for len(frames) > 0 {
			top := &frames[len(frames)-1]
			node := top.node

			if top.next == 0 {
				indices[node] = index
				lowlink[node] = index
				index++
				stack = append(stack, node)
				onStack[node] = true
			}

			advanced := false
			neighbors := adjacency[node]
			for top.next < len(neighbors) {
				neighbor := neighbors[top.next]
				top.next++
				if indices[neighbor] == unvisited {
					frames = append(frames, frame{node: neighbor})
					advanced = true
					break
				}
				if onStack[neighbor] && indices[neighbor] < lowlink[node] {
					lowlink[node] = indices[neighbor]
				}
			}
			if advanced {
				continue
			}

			if lowlink[node] == indices[node] {
				var component []string
				for {
					popped := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[popped] = false
					component = append(component, popped)
					if popped == node {
						break
					}
				}
				components = append(components, component)
			}

			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if lowlink[node] < lowlink[parent] {
					lowlink[parent] = lowlink[node]
				}
			}
		}
	}

	return components
}
