package graph

import "errors"

// ErrCyclicGraph is returned by the priority solver when a module's
// producer/consumer chain recurses past the depth bound, which in
// practice only happens when outputs/inputs declarations form a cycle.
var ErrCyclicGraph = errors.New("graph: cyclic module dependency")

const maxPriorityDepth = 300
