package graph

// moduleMeta is the subset of a module's declaration the priority solver
// needs: its declared inputs and outputs.
type moduleMeta struct {
	inputs  []string
	outputs []string
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

// solvePriority computes priority(M) = 1 + sum of priority(N) for every N
// whose declared outputs intersect M's declared inputs, for every module
// name in meta. Recursion depth is bounded at maxPriorityDepth; exceeding
// it means the outputs/inputs declarations form a cycle.
func solvePriority(meta map[string]moduleMeta) (map[string]int, error) {
	memo := make(map[string]int, len(meta))
	for name := range meta {
		if _, err := priorityOf(name, meta, memo, 0); err != nil {
			return nil, err
		}
	}
	return memo, nil
}

func priorityOf(name string, meta map[string]moduleMeta, memo map[string]int, depth int) (int, error) {
	if depth > maxPriorityDepth {
		return 0, ErrCyclicGraph
	}
	if p, ok := memo[name]; ok {
		return p, nil
	}

	self := meta[name]
	sum := 0
	for other, otherMeta := range meta {
		if other == name {
			continue
		}
		if intersects(otherMeta.outputs, self.inputs) {
			p, err := priorityOf(other, meta, memo, depth+1)
			if err != nil {
				return 0, err
			}
			sum += p
		}
	}
	p := 1 + sum
	memo[name] = p
	return p, nil
}
