// Package engine runs HTTP transfers concurrently on behalf of a
// dispatcher. The dispatcher owns scheduling, retries and callbacks;
// the engine only executes single attempts and reports which ones have
// finished.
//
// Register a transfer with Add, block with Wait, then collect finished
// transfers with Perform and deregister them with Remove:
//
//	loop, _ := engine.New(engine.WithMaxTransfers(50))
//	defer loop.Close()
//
//	_ = loop.Add(ctx, t)
//	for loop.Len() > 0 {
//		loop.Wait(time.Second)
//		for _, done := range loop.Perform() {
//			_ = loop.Remove(done)
//		}
//	}
package engine
