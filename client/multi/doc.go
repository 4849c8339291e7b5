// Package multi dispatches many HTTP transfers concurrently.
//
// Handles are queued with [Dispatcher.Enqueue] and run by
// [Dispatcher.Start], which keeps at most the configured number of
// transfers active, promotes queued handles in FIFO order as slots
// free up, retries failed attempts according to each handle's
// [transfer.RetryPolicy] and fires every handle's callbacks exactly
// once. Start blocks until the queue drains and runs all callbacks on
// its own goroutine, so callbacks may safely enqueue more work.
//
// Dispatcher-wide callbacks and a default retry policy can be supplied
// with [WithDefaults]; they apply only to handles that do not set their
// own. Settings can also be read from the environment with [LoadConfig].
package multi
