// Package loop provides the single-threaded event loop that owns all
// rendering state.
//
// Goroutines that read from the worker process or receive host RPC calls
// never touch sessions, registries or processors directly. They Post a
// closure and the loop runs it. Everything reachable from a posted closure
// may therefore be used without locks.
//
//	l := loop.New(loop.WithLogger(logger))
//	go l.Run(ctx)
//	l.Post(func() { app.Refresh(buf) })
package loop
