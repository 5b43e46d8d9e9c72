// Package ilist provides intrusive singly linked lists. Elements embed an
// Entry and are linked in place; the list never allocates or frees them.
package ilist

// Linker is the interface that objects must implement if they want to be
// added to and/or removed from SingleList objects.
type Linker interface {
	Next() Element
	SetNext(Element)
}

// Element the item that is used at the API level.
type Element interface {
	Linker
}

// Entry is a default implementation of Linker. Users can add anonymous fields
// of this type to their structs to make them automatically implement the
// methods needed by SingleList.
type Entry struct {
	next Element
}

// Next returns the entry that follows e in the list.
func (e *Entry) Next() Element {
	return e.next
}

// SetNext assigns 'elem' as the entry that follows e in the list.
func (e *Entry) SetNext(elem Element) {
	e.next = elem
}

// SingleList 单向侵入式链表，记录头、尾和节点数
//
// The zero value is an empty list ready to use. An element may be on at most
// one list at a time.
type SingleList struct {
	head  Element
	tail  Element
	count int
}

// Reset resets list l to the empty state.
func (l *SingleList) Reset() {
	l.head = nil
	l.tail = nil
	l.count = 0
}

// Empty returns true iff the list is empty.
func (l *SingleList) Empty() bool {
	return l.head == nil
}

// Len returns the number of elements in the list.
func (l *SingleList) Len() int {
	return l.count
}

// Front returns the first element of list l or nil.
func (l *SingleList) Front() Element {
	return l.head
}

// Back returns the last element of list l or nil.
func (l *SingleList) Back() Element {
	return l.tail
}

// PushFront inserts the element e at the front of list l.
func (l *SingleList) PushFront(e Element) {
	e.SetNext(l.head)
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
	l.count++
}

// PushBack inserts the element e at the back of list l.
func (l *SingleList) PushBack(e Element) {
	e.SetNext(nil)
	if l.tail == nil {
		l.head = e
	} else {
		l.tail.SetNext(e)
	}
	l.tail = e
	l.count++
}

// InsertAfter inserts e after prev. A nil prev inserts at the front.
func (l *SingleList) InsertAfter(prev, e Element) {
	if prev == nil {
		l.PushFront(e)
		return
	}
	e.SetNext(prev.Next())
	prev.SetNext(e)
	if l.tail == prev {
		l.tail = e
	}
	l.count++
}

// PopFront removes and returns the first element, or nil if l is empty.
func (l *SingleList) PopFront() Element {
	e := l.head
	if e == nil {
		return nil
	}
	l.head = e.Next()
	if l.head == nil {
		l.tail = nil
	}
	e.SetNext(nil)
	l.count--
	return e
}

// RemoveNext removes and returns the element following prev. A nil prev
// removes the head.
func (l *SingleList) RemoveNext(prev Element) Element {
	if prev == nil {
		return l.PopFront()
	}
	e := prev.Next()
	if e == nil {
		return nil
	}
	prev.SetNext(e.Next())
	if l.tail == e {
		l.tail = prev
	}
	e.SetNext(nil)
	l.count--
	return e
}

// Remove unlinks e from l by walking from the head. It returns e, or nil if
// e is not on the list.
func (l *SingleList) Remove(e Element) Element {
	var prev Element
	for it := l.head; it != nil; it = it.Next() {
		if it == e {
			return l.RemoveNext(prev)
		}
		prev = it
	}
	return nil
}

// PushBackList moves all elements of src to the back of l, in order, leaving
// src empty. Elements are transferred one at a time.
func (l *SingleList) PushBackList(src *SingleList) {
	for e := src.PopFront(); e != nil; e = src.PopFront() {
		l.PushBack(e)
	}
}

// Find reports whether e is on the list.
func (l *SingleList) Find(e Element) bool {
	for it := l.head; it != nil; it = it.Next() {
		if it == e {
			return true
		}
	}
	return false
}

// RemoveAll unlinks every element and returns how many were removed.
func (l *SingleList) RemoveAll() int {
	n := 0
	for l.PopFront() != nil {
		n++
	}
	return n
}
