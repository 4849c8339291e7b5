// Package promise wraps a [multi.Dispatcher] run in a small promise.
//
// A Promise is Pending until [Promise.Wait] or [Promise.Settle] runs
// the dispatcher, then Fulfilled when the run drained normally or
// Rejected when the engine aborted it. Individual transfer failures do
// not reject the promise; they reach the handler registered with
// [Promise.Then].
package promise
