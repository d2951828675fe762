//go:build tardy_debug

package tardy

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID parses the calling goroutine's id out of a runtime.Stack
// trace. There is no supported stdlib accessor for this; it exists only to
// back the tardy_debug single-goroutine assertion below, never on the
// normal build path.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// assertOwner binds the calling goroutine as rt's owner on first use, then
// panics on any later call from a different goroutine. Spawn, SpawnDelay,
// Stop, and Run are single-goroutine APIs; Wake is the sole exception and
// never calls this.
func (rt *Runtime) assertOwner() {
	id := goroutineID()
	if rt.ownerGoroutine == 0 {
		rt.ownerGoroutine = id
		return
	}
	if id != rt.ownerGoroutine {
		panic(violation("Runtime", "called from goroutine %d, owned by goroutine %d", id, rt.ownerGoroutine))
	}
}
