// Package idgen provides the process-wide monotonic conversation id
// generator every message.Connection draws from. Ids are never reused
// within the lifetime of the process, satisfying the uniqueness invariant
// conversation routing depends on.
package idgen

import "sync/atomic"

var counter atomic.Uint64

// Next returns the next conversation id. Ids start at 1; 0 is never
// issued, so it is safe to use as a "no conversation" sentinel.
func Next() uint64 {
	return counter.Add(1)
}
