package delegate

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryFor(fn any, recv any) listenerEntry {
	fv := reflect.ValueOf(fn)
	return listenerEntry{fn: fv, ptr: fv.Pointer(), recv: recv}
}

func TestRegistry_RemoveFirstMatch(t *testing.T) {
	var r registry

	n := 0
	fn := func() { n++ }
	recv := &struct{ id int }{1}
	r.add(entryFor(fn, recv))
	r.add(entryFor(fn, recv))
	require.Equal(t, 2, r.len())

	removed := r.remove(reflect.ValueOf(fn).Pointer(), recv)
	assert.True(t, removed)
	assert.Equal(t, 1, r.len())

	removed = r.remove(reflect.ValueOf(fn).Pointer(), recv)
	assert.True(t, removed)
	assert.Equal(t, 0, r.len())

	assert.False(t, r.remove(reflect.ValueOf(fn).Pointer(), recv))
}

func TestRegistry_IdentityIncludesReceiver(t *testing.T) {
	var r registry

	c1, c2 := &counterRecv{}, &counterRecv{}
	// Method values of the same method share a code pointer; the receiver
	// is what tells the entries apart.
	r.add(entryFor(c1.bump, c1))
	r.add(entryFor(c2.bump, c2))

	require.True(t, r.remove(reflect.ValueOf(c2.bump).Pointer(), c1))
	require.Equal(t, 1, r.len())
	assert.Same(t, c2, r.entries[0].recv)
}

type counterRecv struct {
	n int
}

func (c *counterRecv) bump() {
	c.n++
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	var r registry

	fn := func() {}
	r.add(entryFor(fn, DefaultReceiver))
	snap := r.snapshot()

	r.clear()
	assert.Equal(t, 0, r.len())
	assert.Len(t, snap, 1)

	assert.Nil(t, r.snapshot())
}

func TestReceiverEqual_NonComparable(t *testing.T) {
	m := map[string]int{}

	assert.NotPanics(t, func() {
		assert.False(t, receiverEqual(m, m))
	})
	assert.False(t, receiverEqual(m, map[string]int{}))
	assert.False(t, receiverEqual(DefaultReceiver, m))
	assert.True(t, receiverEqual(DefaultReceiver, DefaultReceiver))
}

func TestEntry_CallLeadingSubset(t *testing.T) {
	var got []int
	e := entryFor(func(a int) { got = append(got, a) }, DefaultReceiver)

	in := []reflect.Value{reflect.ValueOf(100), reflect.ValueOf(200)}
	require.NoError(t, e.call(in))
	assert.Equal(t, []int{100}, got)
}
