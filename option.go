package delegate

// Option configures a Delegate at construction.
type Option func(*Delegate)

// WithPanicHandler sets the function called with the recovered value when a
// listener panics inside an InvokeAll worker goroutine. The invocation
// still fails with ErrListenerPanic. The default handler logs the panic.
//
// Panics from Invoke and InvokeSeq listeners run on the calling goroutine
// and propagate to the caller unchanged; the handler is not involved.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(d *Delegate) {
		d.onPanic = fn
	}
}
