// Package delegate implements an in-process multicast callback dispatcher:
// a typed, ordered list of listener callbacks that can be invoked
// synchronously or with two asynchronous fan-out disciplines, while staying
// safe to mutate from inside a running callback.
//
// A Delegate is created with a func type fixing its argument shape for the
// instance's lifetime:
//
//	onChange := delegate.New[func(old, new string)]()
//
//	onChange.AddListener(func(old, new string) { ... })
//	onChange.AddListener(func(old string) { ... }) // leading subset is fine
//
//	err := onChange.Invoke("a", "b")
//
// Listeners added or removed while a dispatch is in progress are buffered
// and applied after it completes, so a listener may freely mutate its own
// delegate. At most one dispatch is ever active on an instance: invoking a
// delegate from one of its own listeners, or from another goroutine while a
// dispatch is running, fails with ErrRecursiveCall.
//
// Three invocation strategies share the same entry/exit protocol:
//
//   - Invoke calls every listener in registration order on the calling
//     goroutine and returns the combined listener errors.
//   - InvokeSeq calls listeners in order and stops at the first error, so
//     listener side effects are totally ordered.
//   - InvokeAll runs every listener in its own goroutine, launched in
//     registration order, and returns the first observed failure after all
//     listeners have settled. Failures do not cancel the other listeners.
package delegate
