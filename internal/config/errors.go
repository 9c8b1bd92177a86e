package config

import "errors"

// ErrEmptyGraph is the sentinel a caller can errors.Is-match against when
// a top-level pipeline key has no declaration to load modules from.
var ErrEmptyGraph = errors.New("config: empty graph declaration")
