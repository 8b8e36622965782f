// Package llrb implements a left-leaning red-black tree used as the ordered
// registry map of the document root: elements keyed by their creation ticket,
// found and enumerated in ticket order.
package llrb

const (
	red   = true
	black = false
)

type node[K, V any] struct {
	key   K
	value V
	left  *node[K, V]
	right *node[K, V]
	color bool
}

// Tree is an ordered map from K to V.
type Tree[K, V any] struct {
	root    *node[K, V]
	compare func(a, b K) int
	size    int
}

// New creates an empty tree ordered by the comparator.
func New[K, V any](compare func(a, b K) int) *Tree[K, V] {
	return &Tree[K, V]{compare: compare}
}

// Len returns the number of entries.
func (t *Tree[K, V]) Len() int {
	return t.size
}

// Get returns the value stored under key.
func (t *Tree[K, V]) Get(key K) (V, bool) {
	n := t.root
	for n != nil {
		switch c := t.compare(key, n.key); {
		case c < 0:
			n = n.left
		case c > 0:
			n = n.right
		default:
			return n.value, true
		}
	}
	var zero V
	return zero, false
}

// Put inserts or replaces the value under key.
func (t *Tree[K, V]) Put(key K, value V) {
	t.root = t.put(t.root, key, value)
	t.root.color = black
}

func (t *Tree[K, V]) put(n *node[K, V], key K, value V) *node[K, V] {
	if n == nil {
		t.size++
		return &node[K, V]{key: key, value: value, color: red}
	}
	switch c := t.compare(key, n.key); {
	case c < 0:
		n.left = t.put(n.left, key, value)
	case c > 0:
		n.right = t.put(n.right, key, value)
	default:
		n.value = value
	}
	return fixUp(n)
}

// Remove deletes the entry under key, reporting whether it existed.
func (t *Tree[K, V]) Remove(key K) bool {
	if _, ok := t.Get(key); !ok {
		return false
	}
	t.root = t.remove(t.root, key)
	if t.root != nil {
		t.root.color = black
	}
	t.size--
	return true
}

func (t *Tree[K, V]) remove(n *node[K, V], key K) *node[K, V] {
	if t.compare(key, n.key) < 0 {
		if !isRed(n.left) && !isRed(n.left.left) {
			n = moveRedLeft(n)
		}
		n.left = t.remove(n.left, key)
	} else {
		if isRed(n.left) {
			n = rotateRight(n)
		}
		if t.compare(key, n.key) == 0 && n.right == nil {
			return nil
		}
		if !isRed(n.right) && !isRed(n.right.left) {
			n = moveRedRight(n)
		}
		if t.compare(key, n.key) == 0 {
			min := n.right
			for min.left != nil {
				min = min.left
			}
			n.key = min.key
			n.value = min.value
			n.right = removeMin(n.right)
		} else {
			n.right = t.remove(n.right, key)
		}
	}
	return fixUp(n)
}

func removeMin[K, V any](n *node[K, V]) *node[K, V] {
	if n.left == nil {
		return nil
	}
	if !isRed(n.left) && !isRed(n.left.left) {
		n = moveRedLeft(n)
	}
	n.left = removeMin(n.left)
	return fixUp(n)
}

// Ascend visits entries in ascending key order until fn returns false.
func (t *Tree[K, V]) Ascend(fn func(key K, value V) bool) {
	ascend(t.root, fn)
}

func ascend[K, V any](n *node[K, V], fn func(key K, value V) bool) bool {
	if n == nil {
		return true
	}
	if !ascend(n.left, fn) {
		return false
	}
	if !fn(n.key, n.value) {
		return false
	}
	return ascend(n.right, fn)
}

// Floor returns the greatest entry whose key is <= key.
func (t *Tree[K, V]) Floor(key K) (K, V, bool) {
	var foundKey K
	var foundValue V
	found := false
	n := t.root
	for n != nil {
		switch c := t.compare(key, n.key); {
		case c < 0:
			n = n.left
		case c > 0:
			foundKey, foundValue, found = n.key, n.value, true
			n = n.right
		default:
			return n.key, n.value, true
		}
	}
	return foundKey, foundValue, found
}

func isRed[K, V any](n *node[K, V]) bool {
	return n != nil && n.color == red
}

func rotateLeft[K, V any](n *node[K, V]) *node[K, V] {
	r := n.right
	n.right = r.left
	r.left = n
	r.color = n.color
	n.color = red
	return r
}

func rotateRight[K, V any](n *node[K, V]) *node[K, V] {
	l := n.left
	n.left = l.right
	l.right = n
	l.color = n.color
	n.color = red
	return l
}

func flipColors[K, V any](n *node[K, V]) {
	n.color = !n.color
	n.left.color = !n.left.color
	n.right.color = !n.right.color
}

func moveRedLeft[K, V any](n *node[K, V]) *node[K, V] {
	flipColors(n)
	if isRed(n.right.left) {
		n.right = rotateRight(n.right)
		n = rotateLeft(n)
		flipColors(n)
	}
	return n
}

func moveRedRight[K, V any](n *node[K, V]) *node[K, V] {
	flipColors(n)
	if isRed(n.left.left) {
		n = rotateRight(n)
		flipColors(n)
	}
	return n
}

func fixUp[K, V any](n *node[K, V]) *node[K, V] {
	if isRed(n.right) && !isRed(n.left) {
		n = rotateLeft(n)
	}
	if isRed(n.left) && isRed(n.left.left) {
		n = rotateRight(n)
	}
	if isRed(n.left) && isRed(n.right) {
		flipColors(n)
	}
	return n
}
