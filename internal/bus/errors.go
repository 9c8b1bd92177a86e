package bus

import "errors"

// ErrHandleClosed is returned by Wait when the owning BusHandle is closed
// while a Required subscription's fire is still pending. Reset alone does
// not release a pending Wait.
var ErrHandleClosed = errors.New("bus: handle closed")
