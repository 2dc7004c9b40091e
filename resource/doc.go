// Package resource provides typed handle tables.
//
// A Table maps small integer handles to host values so that callers which
// can only pass integers (guest modules, the thread facility) can refer to
// Go objects:
//
//	files := resource.NewTable[*os.File]("file")
//
//	h, err := files.Insert(f)
//	f, ok := files.Get(h)
//
//	// Remove hands ownership back to the caller.
//	f, ok = files.Remove(h)
//
//	// Drop destroys the value through its Dropper.
//	files.Drop(h)
//
// Handle 0 is never issued. Freed handles are reused.
//
// # Limits
//
// WithLimit caps the number of live handles; Insert then fails with
// errors.KindResourceExhausted. The thread facility uses this to model
// thread-table exhaustion.
//
// # Observers
//
// Observers receive EventCreated, EventRemoved and EventDropped:
//
//	files.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    logger.Debug("handle", zap.String("table", e.Table), zap.Stringer("event", e.Type))
//	}))
//
// Close drops every remaining value, which is how a host releases whatever a
// guest left open.
package resource
