package delegate

import "reflect"

// listenerEntry holds a registered callback together with its bound
// receiver. Identity is the pair (callback code pointer, receiver): the
// same func registered against two receivers is two distinct entries, and
// the same pair registered twice fires once per occurrence.
type listenerEntry struct {
	fn   reflect.Value
	ptr  uintptr
	recv any
}

// call invokes the callback with the leading subset of in matching its
// declared parameter count and returns its error result, if any.
func (e listenerEntry) call(in []reflect.Value) error {
	out := e.fn.Call(in[:e.fn.Type().NumIn()])
	if len(out) == 0 || out[0].IsNil() {
		return nil
	}
	return out[0].Interface().(error)
}

// matches reports whether the entry has the given identity.
func (e listenerEntry) matches(ptr uintptr, recv any) bool {
	if e.ptr != ptr {
		return false
	}
	return receiverEqual(e.recv, recv)
}

// receiverEqual compares receivers by interface identity. A receiver of a
// non-comparable type never equals anything, rather than panicking.
func receiverEqual(a, b any) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta != nil && !ta.Comparable() {
		return false
	}
	return a == b
}

// registry is the ordered listener sequence owned by exactly one delegate.
// Insertion order defines invocation order. All access goes through the
// owning delegate's lock.
type registry struct {
	entries []listenerEntry
}

// add appends an entry. Entries are not deduplicated.
func (r *registry) add(e listenerEntry) {
	r.entries = append(r.entries, e)
}

// remove deletes the first entry matching the identity and reports whether
// one was found. An unmatched removal is a no-op.
func (r *registry) remove(ptr uintptr, recv any) bool {
	for i, e := range r.entries {
		if e.matches(ptr, recv) {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns a copy of the current entries for iteration.
func (r *registry) snapshot() []listenerEntry {
	if len(r.entries) == 0 {
		return nil
	}
	cp := make([]listenerEntry, len(r.entries))
	copy(cp, r.entries)
	return cp
}

func (r *registry) clear() {
	r.entries = nil
}

func (r *registry) len() int {
	return len(r.entries)
}
