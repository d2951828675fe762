//go:build !tardy_debug

package tardy

// assertOwner is a no-op outside the tardy_debug build: the single-
// goroutine check has a real runtime cost (parsing a stack trace), so it
// is opt-in rather than always-on.
func (rt *Runtime) assertOwner() {}
