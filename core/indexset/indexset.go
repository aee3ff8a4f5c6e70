package indexset

// Set is a dense, swap-compacted set of uint64 identifiers. Insert, Remove
// and Contains are O(1); stored values occupy the contiguous index range
// [0, Len()). Removal moves the last element into the vacated slot, so
// iteration order is insertion-stable only until the first removal.
//
// Membership is tracked with an explicit reverse index map; index zero is an
// ordinary stored index and needs no special casing.
type Set struct {
	values []uint64
	index  map[uint64]int
}

// New returns an empty set.
func New() *Set {
	return &Set{index: make(map[uint64]int)}
}

// Len returns the number of stored values.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Contains reports whether v is currently stored.
func (s *Set) Contains(v uint64) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[v]
	return ok
}

// Insert appends v at the tail. It returns false without mutating the set
// when v is already present.
func (s *Set) Insert(v uint64) bool {
	if s.Contains(v) {
		return false
	}
	s.index[v] = len(s.values)
	s.values = append(s.values, v)
	return true
}

// Remove deletes v by overwriting its slot with the current last element and
// truncating the tail. It returns false without mutating the set when v is
// absent.
func (s *Set) Remove(v uint64) bool {
	idx, ok := s.index[v]
	if !ok {
		return false
	}
	last := len(s.values) - 1
	if idx != last {
		moved := s.values[last]
		s.values[idx] = moved
		s.index[moved] = idx
	}
	s.values[last] = 0
	s.values = s.values[:last]
	delete(s.index, v)
	return true
}

// At returns the value stored at index i. The second return is false when i
// is out of range.
func (s *Set) At(i int) (uint64, bool) {
	if s == nil || i < 0 || i >= len(s.values) {
		return 0, false
	}
	return s.values[i], true
}

// Values returns a copy of the stored values in dense slot order.
func (s *Set) Values() []uint64 {
	if s == nil {
		return nil
	}
	out := make([]uint64, len(s.values))
	copy(out, s.values)
	return out
}
