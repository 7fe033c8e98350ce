// Package lock provides the single concurrency primitive shared by the
// pool-backed allocators (PageAllocator, TLSF, the top allocator's routing
// shell). Thread-local allocators such as the stack allocator never use it.
package lock

import "sync"

// CriticalSection serializes access to one allocator's mutable state. It is
// the Go stand-in for the engine's recursive OS critical section: Go's
// sync.Mutex is not reentrant, so callers must not call Do reentrantly from
// the same goroutine (see DESIGN.md, "Recursive critical section").
type CriticalSection struct {
	mu sync.Mutex
}

// Do runs fn with the section held and releases it on every exit path,
// including a panic unwinding through fn.
func (cs *CriticalSection) Do(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	fn()
}

// Lock acquires the section directly, for call sites that need to hold it
// across more than one method call (e.g. find-then-mutate sequences).
func (cs *CriticalSection) Lock() { cs.mu.Lock() }

// Unlock releases the section.
func (cs *CriticalSection) Unlock() { cs.mu.Unlock() }
