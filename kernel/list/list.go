// Package list is a doubly linked list whose elements live inside the
// structures they link, so membership never allocates.
//
// A list has two sentinels: a head before the first element and a tail after
// the last. The head's prev and the tail's next are nil; interior elements
// always have both links set. An empty list looks like this:
//
//	+------+     +------+
//	| head |<--->| tail |
//	+------+     +------+
//
// An owner embeds an Elem and stores itself in Elem.Value:
//
//	type job struct {
//		elem list.Elem[*job]
//		prio int
//	}
//
//	j := &job{prio: 3}
//	j.elem.Value = j
//	queue.PushBack(&j.elem)
//
// Lists are not synchronized; kernel callers disable interrupts around them.
package list

import "ember/kernel/debug"

// Elem is a list element. The zero value is not on any list.
type Elem[T any] struct {
	prev, next *Elem[T]

	// Value is the structure that embeds this element.
	Value T
}

// List is an intrusive doubly linked list. The zero value is an empty list.
//
// A List must not be copied after first use: its sentinels are linked by address.
type List[T any] struct {
	_    [0]func() // prevent accidental copying.
	head Elem[T]
	tail Elem[T]
}

// LessFunc reports whether a strictly precedes b given auxiliary data aux.
type LessFunc[T any] func(a, b *Elem[T], aux any) bool

func (e *Elem[T]) isHead() bool     { return e != nil && e.prev == nil && e.next != nil }
func (e *Elem[T]) isInterior() bool { return e != nil && e.prev != nil && e.next != nil }
func (e *Elem[T]) isTail() bool     { return e != nil && e.prev != nil && e.next == nil }

// Init (re)initializes l as an empty list. Elements still linked to l are
// abandoned, not unlinked.
func (l *List[T]) Init() *List[T] {
	l.head.prev = nil
	l.head.next = &l.tail
	l.tail.prev = &l.head
	l.tail.next = nil
	return l
}

func (l *List[T]) lazyInit() {
	if l.head.next == nil {
		l.Init()
	}
}

// Begin returns the first element, or End if l is empty.
func (l *List[T]) Begin() *Elem[T] {
	l.lazyInit()
	return l.head.next
}

// End returns the tail sentinel.
func (l *List[T]) End() *Elem[T] {
	l.lazyInit()
	return &l.tail
}

// RBegin returns the last element, for reverse iteration, or REnd if l is empty.
func (l *List[T]) RBegin() *Elem[T] {
	l.lazyInit()
	return l.tail.prev
}

// REnd returns the head sentinel.
func (l *List[T]) REnd() *Elem[T] {
	l.lazyInit()
	return &l.head
}

// Head returns the head sentinel. It supports this iteration style:
//
//	for e := l.Head(); ; {
//		if e = e.Next(); e == l.End() {
//			break
//		}
//		...
//	}
func (l *List[T]) Head() *Elem[T] { return l.REnd() }

// Tail returns the tail sentinel.
func (l *List[T]) Tail() *Elem[T] { return l.End() }

// Next returns the element after e. If e is the last element the tail is
// returned. e must be the head or an interior element.
func (e *Elem[T]) Next() *Elem[T] {
	debug.Assert(e.isHead() || e.isInterior(), "e.isHead() || e.isInterior()")
	return e.next
}

// Prev returns the element before e. If e is the first element the head is
// returned. e must be an interior element or the tail.
func (e *Elem[T]) Prev() *Elem[T] {
	debug.Assert(e.isInterior() || e.isTail(), "e.isInterior() || e.isTail()")
	return e.prev
}

// Linked reports whether e is currently an interior element of some list.
func (e *Elem[T]) Linked() bool { return e.isInterior() }

// Insert links elem just before before, which may be an interior element or
// a tail (the latter is PushBack).
func Insert[T any](before, elem *Elem[T]) {
	debug.Assert(before.isInterior() || before.isTail(), "before.isInterior() || before.isTail()")
	debug.Assert(elem != nil, "elem != nil")

	elem.prev = before.prev
	elem.next = before
	before.prev.next = elem
	before.prev = elem
}

// Splice removes elements first through last (exclusive) from their list and
// inserts them just before before, which may be an interior element or a
// tail. The range is relinked as a whole; nodes in between are not visited.
func Splice[T any](before, first, last *Elem[T]) {
	debug.Assert(before.isInterior() || before.isTail(), "before.isInterior() || before.isTail()")
	if first == last {
		return
	}
	last = last.Prev()

	debug.Assert(first.isInterior(), "first.isInterior()")
	debug.Assert(last.isInterior(), "last.isInterior()")

	// Cut first...last out of its list.
	first.prev.next = last.next
	last.next.prev = first.prev

	// Paste it in before before.
	first.prev = before.prev
	last.next = before
	before.prev.next = first
	before.prev = last
}

// PushFront inserts e at the beginning of l.
func (l *List[T]) PushFront(e *Elem[T]) { Insert(l.Begin(), e) }

// PushBack inserts e at the end of l.
func (l *List[T]) PushBack(e *Elem[T]) { Insert(l.End(), e) }

// Remove unlinks e from its list and returns the element that followed it.
// e must be on a list; after removal it is on none.
//
// Removing while iterating works when the loop advances with Remove's result:
//
//	for e := l.Begin(); e != l.End(); e = list.Remove(e) {
//		...
//	}
func Remove[T any](e *Elem[T]) *Elem[T] {
	debug.Assert(e.isInterior(), "e.isInterior()")
	next := e.next
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
	return next
}

// PopFront removes and returns the first element. l must not be empty.
func (l *List[T]) PopFront() *Elem[T] {
	front := l.Front()
	Remove(front)
	return front
}

// PopBack removes and returns the last element. l must not be empty.
func (l *List[T]) PopBack() *Elem[T] {
	back := l.Back()
	Remove(back)
	return back
}

// Front returns the first element. l must not be empty.
func (l *List[T]) Front() *Elem[T] {
	debug.Assert(!l.Empty(), "!l.Empty()")
	return l.head.next
}

// Back returns the last element. l must not be empty.
func (l *List[T]) Back() *Elem[T] {
	debug.Assert(!l.Empty(), "!l.Empty()")
	return l.tail.prev
}

// Len returns the number of elements in l in O(n) time.
func (l *List[T]) Len() int {
	n := 0
	for e := l.Begin(); e != l.End(); e = e.Next() {
		n++
	}
	return n
}

// Empty reports whether l has no elements.
func (l *List[T]) Empty() bool {
	return l.Begin() == l.End()
}

// Reverse reverses the order of l.
func (l *List[T]) Reverse() {
	if l.Empty() {
		return
	}
	for e := l.Begin(); e != l.End(); e = e.prev {
		e.prev, e.next = e.next, e.prev
	}
	l.head.next, l.tail.prev = l.tail.prev, l.head.next
	l.head.next.prev, l.tail.prev.next = l.tail.prev.next, l.head.next.prev
}

// isSorted reports whether elements a through b (exclusive) are in order.
func isSorted[T any](a, b *Elem[T], less LessFunc[T], aux any) bool {
	if a != b {
		for a = a.Next(); a != b; a = a.Next() {
			if less(a, a.Prev(), aux) {
				return false
			}
		}
	}
	return true
}

// findEndOfRun returns the exclusive end of the nondecreasing run that starts
// at a and ends no later than b. a through b must be non-empty.
func findEndOfRun[T any](a, b *Elem[T], less LessFunc[T], aux any) *Elem[T] {
	debug.Assert(a != b, "a != b")
	for {
		a = a.Next()
		if a == b || less(a, a.Prev(), aux) {
			return a
		}
	}
}

// inplaceMerge merges a0 through a1b0 (exclusive) with a1b0 through b1
// (exclusive); both runs must be non-empty and sorted.
func inplaceMerge[T any](a0, a1b0, b1 *Elem[T], less LessFunc[T], aux any) {
	for a0 != a1b0 && a1b0 != b1 {
		if !less(a1b0, a0, aux) {
			a0 = a0.Next()
		} else {
			a1b0 = a1b0.Next()
			Splice(a0, a1b0.Prev(), a1b0)
		}
	}
}

// Sort orders l by less with a natural iterative merge sort: O(n lg n) time,
// O(1) space. Equal elements keep their relative order.
func (l *List[T]) Sort(less LessFunc[T], aux any) {
	debug.Assert(less != nil, "less != nil")

	// Merge adjacent runs until one is left.
	for {
		runs := 0
		var b1 *Elem[T]
		for a0 := l.Begin(); a0 != l.End(); a0 = b1 {
			runs++

			a1b0 := findEndOfRun(a0, l.End(), less, aux)
			if a1b0 == l.End() {
				break
			}
			b1 = findEndOfRun(a1b0, l.End(), less, aux)
			inplaceMerge(a0, a1b0, b1, less, aux)
		}
		if runs <= 1 {
			break
		}
	}

	debug.Assert(isSorted(l.Begin(), l.End(), less, aux), "isSorted(l.Begin(), l.End(), less, aux)")
}

// InsertOrdered inserts e into l, which must be sorted by less, after every
// element that does not follow it. Equal elements therefore stay FIFO.
func (l *List[T]) InsertOrdered(e *Elem[T], less LessFunc[T], aux any) {
	debug.Assert(e != nil, "e != nil")
	debug.Assert(less != nil, "less != nil")

	pos := l.Begin()
	for ; pos != l.End(); pos = pos.Next() {
		if less(e, pos, aux) {
			break
		}
	}
	Insert(pos, e)
}

// Unique removes every element equal to its predecessor under less, keeping
// the first of each run. Removed elements are appended to duplicates when it
// is not nil.
func (l *List[T]) Unique(duplicates *List[T], less LessFunc[T], aux any) {
	debug.Assert(less != nil, "less != nil")
	if l.Empty() {
		return
	}

	e := l.Begin()
	for next := e.Next(); next != l.End(); next = e.Next() {
		if !less(e, next, aux) && !less(next, e, aux) {
			Remove(next)
			if duplicates != nil {
				duplicates.PushBack(next)
			}
		} else {
			e = next
		}
	}
}

// Max returns the greatest element of l under less, the earliest one when
// several are equal, or End when l is empty.
func (l *List[T]) Max(less LessFunc[T], aux any) *Elem[T] {
	best := l.Begin()
	if best != l.End() {
		for e := best.Next(); e != l.End(); e = e.Next() {
			if less(best, e, aux) {
				best = e
			}
		}
	}
	return best
}

// Min returns the least element of l under less, the earliest one when
// several are equal, or End when l is empty.
func (l *List[T]) Min(less LessFunc[T], aux any) *Elem[T] {
	best := l.Begin()
	if best != l.End() {
		for e := best.Next(); e != l.End(); e = e.Next() {
			if less(e, best, aux) {
				best = e
			}
		}
	}
	return best
}
