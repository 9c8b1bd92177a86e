package bus

import (
	"fmt"
	"hash/fnv"
)

// TypeTag is an opaque per-type identifier derived from a value's static
// type at enrollment time. Two TypeTags compare equal only if they were
// derived from the same type. Collisions are tolerated semantically (a
// subscriber may receive a payload it can't interpret) — the derivation
// just needs to make that rare in practice, hence the 64-bit hash plus the
// displayed type name kept alongside it for diagnostics.
type TypeTag struct {
	hash uint64
	name string
}

// Universal is the reserved tag that matches any publisher tag on the
// subscriber side. It is never a legal publisher tag.
var Universal = TypeTag{hash: 0, name: "UNIVERSAL"}

// String returns the displayed type name the tag was derived from.
func (t TypeTag) String() string { return t.name }

// Matches reports whether a subscriber holding tag t should receive a
// value published under tag pub: either t is Universal, or the two tags
// were derived from the same type.
func (t TypeTag) Matches(pub TypeTag) bool {
	return t == Universal || t == pub
}

// TypeTagOf derives the TypeTag for T. Call sites typically fix T via a
// type parameter, e.g. TypeTagOf[int]() or TypeTagOf[MyParams]().
func TypeTagOf[T any]() TypeTag {
	var zero T
	name := fmt.Sprintf("%T", zero)
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return TypeTag{hash: h.Sum64(), name: name}
}
