// Package reconcile runs background reconciling refreshes for a console screen.
//
// A Reconciler sits between the mutation coordinator, which asks for a refresh
// after each successful create, update or delete, and the query synchronizer,
// which performs the fetch. It handles:
//
//   - Coalescing bursts of refresh requests inside a debounce window
//   - Optional periodic auto-refresh with jitter
//   - Graceful shutdown
//
// # Usage Example
//
//	r := reconcile.New("menus", synchronizer,
//	    reconcile.WithDebounce(250*time.Millisecond),
//	    reconcile.WithInterval(time.Minute),
//	)
//	go func() { _ = r.Start(ctx) }()
//	defer r.Stop()
//
//	r.Schedule("menuCreated")
package reconcile
