// Package bus implements Iris's process-wide publish/subscribe registry:
// a map of named Keys to Signals, each Signal holding the subscribers and
// publishers currently enrolled for that Key.
package bus

import (
	"fmt"
	"strings"
)

// Key is a textual channel identifier. Keys are assembled by concatenating
// zero or more fragments, in order; two Keys are equal iff their
// concatenated string forms are equal. Key is a plain string type so the
// zero value and map/struct keying work without any extra machinery.
type Key string

// NewKey concatenates the string form of every fragment, in order, into a
// single Key. Fragments are typically string or numeric literals, e.g.
//
//	bus.NewKey(moduleName, "::", paramName)
func NewKey(fragments ...any) Key {
	if len(fragments) == 1 {
		if s, ok := fragments[0].(string); ok {
			return Key(s)
		}
	}
	var b strings.Builder
	for _, f := range fragments {
		switch v := f.(type) {
		case string:
			b.WriteString(v)
		case Key:
			b.WriteString(string(v))
		default:
			fmt.Fprint(&b, v)
		}
	}
	return Key(b.String())
}
