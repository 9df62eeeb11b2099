// Package async provides a minimal promise-style Future used to hand results
// of background work back to callers.
//
// A Future is created together with its Resolve function; the producer calls
// Resolve exactly once (extra calls are ignored) and any number of consumers
// can Await the result. This shape fits work that is completed by a different
// goroutine than the one that started it, such as provisioning actions that
// are coalesced and executed by a per-subscription worker.
package async
