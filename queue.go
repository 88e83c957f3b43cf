package delegate

// commandKind tags a deferred registry mutation.
type commandKind int

const (
	cmdAdd commandKind = iota + 1
	cmdRemove
	cmdClear
)

// command is one buffered add/remove/clear request issued while a dispatch
// was active. Commands carry the fully resolved entry so the drain does not
// re-validate anything.
type command struct {
	kind  commandKind
	entry listenerEntry
}

// commandQueue buffers registry mutations requested during an active
// dispatch. The queue is drained exactly once, in FIFO order, when the
// dispatch completes, and is empty immediately afterwards.
type commandQueue struct {
	items []command
}

func (q *commandQueue) push(c command) {
	q.items = append(q.items, c)
}

// drain applies every buffered command to the registry in FIFO order and
// empties the queue. Removing an entry that is no longer present, including
// one added then removed within the same queue, is a silent no-op.
func (q *commandQueue) drain(r *registry) {
	for _, c := range q.items {
		switch c.kind {
		case cmdAdd:
			r.add(c.entry)
		case cmdRemove:
			r.remove(c.entry.ptr, c.entry.recv)
		case cmdClear:
			r.clear()
		}
	}
	q.items = nil
}

func (q *commandQueue) len() int {
	return len(q.items)
}
