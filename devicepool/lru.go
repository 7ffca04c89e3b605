// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package devicepool

// lruNode is a node in a doubly-linked recency list.
type lruNode struct {
	holder *Holder
	prev   *lruNode
	next   *lruNode
}

// lruList orders holders by recency. The head is the most recently used,
// the tail the least recently used. The list is not thread-safe; the pool
// guards it with its mutex.
type lruList struct {
	head *lruNode
	tail *lruNode
	len  int
}

// Len returns the number of nodes in the list.
func (l *lruList) Len() int {
	return l.len
}

// PushFront adds h at the front (most recently used) and returns its node.
func (l *lruList) PushFront(h *Holder) *lruNode {
	node := &lruNode{holder: h}
	if l.head == nil {
		l.head = node
		l.tail = node
	} else {
		node.next = l.head
		l.head.prev = node
		l.head = node
	}
	l.len++
	return node
}

// MoveToFront moves an existing node to the front.
func (l *lruList) MoveToFront(node *lruNode) {
	if node == nil || node == l.head {
		return
	}

	l.unlink(node)

	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	l.len++
}

// Remove removes a node from the list.
func (l *lruList) Remove(node *lruNode) {
	if node == nil {
		return
	}
	l.unlink(node)
}

// RemoveOldest removes and returns the least recently used holder.
// Returns nil if the list is empty.
func (l *lruList) RemoveOldest() *Holder {
	if l.tail == nil {
		return nil
	}
	node := l.tail
	l.unlink(node)
	return node.holder
}

// Find returns the most recently used node matching fn, or nil.
func (l *lruList) Find(fn func(*Holder) bool) *lruNode {
	for n := l.head; n != nil; n = n.next {
		if fn(n.holder) {
			return n
		}
	}
	return nil
}

// Holders returns the holders from most to least recently used.
func (l *lruList) Holders() []*Holder {
	out := make([]*Holder, 0, l.len)
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.holder)
	}
	return out
}

// Clear removes all nodes from the list.
func (l *lruList) Clear() {
	l.head = nil
	l.tail = nil
	l.len = 0
}

// unlink removes a node from the list and clears its pointers.
func (l *lruList) unlink(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}

	node.prev = nil
	node.next = nil
	l.len--
}
