// Package tardy implements a per-thread cooperative task executor paired
// with a pluggable operating-system asynchronous I/O backend.
//
// # Architecture
//
// A [Runtime] owns a [Scheduler] (task lifecycle, slot allocation) and an
// [AsyncIO] backend (kernel readiness/completion events). Tasks are plain
// callbacks, not stackful coroutines: a "suspension" is simply a call to one
// of the backend's Queue* operations, which registers a fresh waiting task
// and lets the current call return. The Linux reference backend lives in
// the sibling package tardy/epoll; io_uring and kqueue backends are meant
// to be added alongside it without touching this package.
//
// # Thread model
//
// A Runtime is built to run on a single goroutine. The one exception is
// [AsyncIO.Wake] (and therefore [Runtime.Wake]), which is safe to call from
// any goroutine to interrupt a blocked Reap.
//
// # Usage
//
//	backend, err := epoll.New(1024)
//	if err != nil {
//		log.Fatal(err)
//	}
//	rt, err := tardy.NewRuntime(backend)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rt.Close()
//
//	rt.Spawn(func(rt *tardy.Runtime, t *tardy.TaskMetadata, res tardy.Result) error {
//		fmt.Println("hello from task", t.Index)
//		rt.Stop()
//		return nil
//	})
//
//	if err := rt.Run(); err != nil {
//		log.Fatal(err)
//	}
package tardy
