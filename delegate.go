package delegate

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/yaoapp/kun/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Sentinel errors.
var (
	ErrAddedSelfAsCallback = errors.New("delegate: added self as callback")
	ErrRecursiveCall       = errors.New("delegate: recursive call")
	ErrListenerPanic       = errors.New("delegate: listener panicked")
)

// DefaultReceiver is bound to listeners registered without an explicit
// receiver. It is a process-wide identity object: a listener added without
// a receiver can be removed by passing DefaultReceiver explicitly.
var DefaultReceiver any = &defaultReceiver{}

type defaultReceiver struct{}

// dispatchState tracks whether a dispatch is active on an instance.
type dispatchState int

const (
	stateIdle dispatchState = iota
	stateDispatching
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// Delegate is an ordered list of listener callbacks sharing one fixed
// argument signature. The zero value is not usable; construct with New.
//
// A Delegate is safe for concurrent use, but at most one dispatch is active
// at any time: a second invocation, from a listener or from another
// goroutine, fails with ErrRecursiveCall.
type Delegate struct {
	sig     reflect.Type
	onPanic func(recovered any)

	// mu guards the (state, registry, command queue) triple. The
	// check-and-set of the dispatch state and every registry mutation
	// happen inside it.
	mu      sync.Mutex
	state   dispatchState
	reg     registry
	pending commandQueue
}

// New creates an empty delegate whose listeners are invoked with the
// argument list declared by the func type F.
//
// F must be a non-variadic func type with no results; New panics otherwise.
func New[F any](opts ...Option) *Delegate {
	sig := reflect.TypeOf((*F)(nil)).Elem()
	if sig.Kind() != reflect.Func {
		panic(fmt.Sprintf("delegate: signature %s is not a func type", sig))
	}
	if sig.IsVariadic() {
		panic(fmt.Sprintf("delegate: variadic signature %s is not supported", sig))
	}
	if sig.NumOut() != 0 {
		panic(fmt.Sprintf("delegate: signature %s must not declare results", sig))
	}
	d := &Delegate{sig: sig}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddListener registers fn as a listener bound to recv. When recv is
// omitted, the listener is bound to DefaultReceiver. Entries are not
// deduplicated: registering the same (fn, recv) pair twice makes it fire
// twice per dispatch.
//
// fn must be a non-variadic func whose parameters are a leading subset of
// the delegate's signature and whose results are empty or a single error;
// violations panic. Passing the delegate itself fails with
// ErrAddedSelfAsCallback before anything is queued or registered.
//
// While a dispatch is active the registration is buffered and applied
// after it completes.
func (d *Delegate) AddListener(fn any, recv ...any) error {
	if self, ok := fn.(*Delegate); ok && self == d {
		return ErrAddedSelfAsCallback
	}
	e := d.newEntry(fn, recv)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == stateDispatching {
		d.pending.push(command{kind: cmdAdd, entry: e})
		return nil
	}
	d.reg.add(e)
	return nil
}

// RemoveListener removes the first listener whose (fn, recv) identity
// matches; receivers compare by identity, not structure. Removing a pair
// that was never registered is a silent no-op. While a dispatch is active
// the removal is buffered and applied after it completes.
func (d *Delegate) RemoveListener(fn any, recv ...any) {
	if _, ok := fn.(*Delegate); ok {
		return // a delegate can never be registered, nothing to remove
	}
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		panic(fmt.Sprintf("delegate: callback must be a func, got %T", fn))
	}
	e := listenerEntry{fn: fv, ptr: fv.Pointer(), recv: resolveReceiver(recv)}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == stateDispatching {
		d.pending.push(command{kind: cmdRemove, entry: e})
		return
	}
	d.reg.remove(e.ptr, e.recv)
}

// Clear removes every registered listener. While a dispatch is active the
// clear is buffered and applied, in order with other pending mutations,
// after it completes.
func (d *Delegate) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == stateDispatching {
		d.pending.push(command{kind: cmdClear})
		return
	}
	d.reg.clear()
}

// Len returns the number of registered listeners. Buffered registrations
// from an active dispatch are not counted until the dispatch completes.
func (d *Delegate) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reg.len()
}

// Invoke calls every listener in registration order on the calling
// goroutine. All listeners run; their errors are combined and returned.
// Work a listener starts in its own goroutine is not awaited.
//
// Fails with ErrRecursiveCall, with zero listeners run, when a dispatch is
// already active.
func (d *Delegate) Invoke(args ...any) error {
	in := d.buildArgs(args)
	entries, err := d.acquire()
	if err != nil {
		return err
	}
	defer d.finish()

	var errs error
	for _, e := range entries {
		errs = multierr.Append(errs, e.call(in))
	}
	return errs
}

// InvokeSeq calls listeners in registration order, waiting for each to
// settle before starting the next, and stops at the first error. Completion
// order equals start order, so listener side effects are totally ordered.
//
// Fails with ErrRecursiveCall, with zero listeners run, when a dispatch is
// already active.
func (d *Delegate) InvokeSeq(args ...any) error {
	in := d.buildArgs(args)
	entries, err := d.acquire()
	if err != nil {
		return err
	}
	defer d.finish()

	for _, e := range entries {
		if err := e.call(in); err != nil {
			return err
		}
	}
	return nil
}

// InvokeAll runs every listener in its own goroutine, launched in
// registration order, and waits for all of them to settle. The first
// observed failure becomes the call's error; it does not cancel the other
// listeners. Completion order reflects each listener's own latency, not
// registration order.
//
// A panicking listener is recovered in its goroutine, reported through the
// configured panic handler, and surfaces as ErrListenerPanic.
//
// Fails with ErrRecursiveCall, with zero listeners run, when a dispatch is
// already active.
func (d *Delegate) InvokeAll(args ...any) error {
	in := d.buildArgs(args)
	entries, err := d.acquire()
	if err != nil {
		return err
	}
	defer d.finish()

	var g errgroup.Group
	for _, e := range entries {
		e := e
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					d.recoverPanic(r)
					err = ErrListenerPanic
				}
			}()
			return e.call(in)
		})
	}
	return g.Wait()
}

// acquire transitions the delegate to the dispatching state and returns a
// snapshot of the current entries.
func (d *Delegate) acquire() ([]listenerEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == stateDispatching {
		return nil, ErrRecursiveCall
	}
	d.state = stateDispatching
	return d.reg.snapshot(), nil
}

// finish returns the delegate to idle and drains the command queue. It runs
// on every exit path of an invocation, including a listener panic, so a
// failed dispatch never leaves the instance blocked.
func (d *Delegate) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = stateIdle
	d.pending.drain(&d.reg)
}

// buildArgs validates the argument list against the signature and converts
// it for reflective calls. Arity or type mismatches panic.
func (d *Delegate) buildArgs(args []any) []reflect.Value {
	if len(args) != d.sig.NumIn() {
		panic(fmt.Sprintf("delegate: signature %s takes %d arguments, got %d", d.sig, d.sig.NumIn(), len(args)))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := d.sig.In(i)
		if a == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		av := reflect.ValueOf(a)
		if !av.Type().AssignableTo(pt) {
			panic(fmt.Sprintf("delegate: argument %d is %T, signature %s declares %s", i, a, d.sig, pt))
		}
		if av.Type() != pt {
			av = av.Convert(pt)
		}
		in[i] = av
	}
	return in
}

// newEntry validates fn against the signature and resolves the receiver.
func (d *Delegate) newEntry(fn any, recv []any) listenerEntry {
	if fn == nil {
		panic("delegate: nil callback")
	}
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		panic(fmt.Sprintf("delegate: callback must be a func, got %T", fn))
	}
	d.checkSignature(fv.Type())
	return listenerEntry{fn: fv, ptr: fv.Pointer(), recv: resolveReceiver(recv)}
}

// checkSignature panics unless ft's parameters are a leading subset of the
// delegate's signature and its results are empty or a single error.
func (d *Delegate) checkSignature(ft reflect.Type) {
	if ft.IsVariadic() {
		panic(fmt.Sprintf("delegate: variadic listener %s is not supported", ft))
	}
	if ft.NumIn() > d.sig.NumIn() {
		panic(fmt.Sprintf("delegate: listener %s declares %d parameters, signature %s has %d", ft, ft.NumIn(), d.sig, d.sig.NumIn()))
	}
	for i := 0; i < ft.NumIn(); i++ {
		if ft.In(i) != d.sig.In(i) {
			panic(fmt.Sprintf("delegate: listener %s parameter %d is %s, signature %s declares %s", ft, i, ft.In(i), d.sig, d.sig.In(i)))
		}
	}
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) != errType {
			panic(fmt.Sprintf("delegate: listener %s result must be error, got %s", ft, ft.Out(0)))
		}
	default:
		panic(fmt.Sprintf("delegate: listener %s declares %d results, want at most one error", ft, ft.NumOut()))
	}
}

func (d *Delegate) recoverPanic(r any) {
	if d.onPanic != nil {
		d.onPanic(r)
		return
	}
	log.Error("delegate listener panic: signature=%s err=%v", d.sig, r)
}

func resolveReceiver(recv []any) any {
	if len(recv) > 0 && recv[0] != nil {
		return recv[0]
	}
	return DefaultReceiver
}
