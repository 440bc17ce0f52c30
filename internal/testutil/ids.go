package testutil

// IDAllocator is a test implementation of txn.IDAllocator that never fails
// unless FailNext is set.
type IDAllocator struct {
	nextID   uint64
	FailNext error
}

// NewIDAllocator creates a new test ID allocator starting at startID
func NewIDAllocator(startID uint64) *IDAllocator {
	return &IDAllocator{nextID: startID}
}

// Next returns the next ID and increments the counter
func (m *IDAllocator) Next() (uint64, error) {
	if m.FailNext != nil {
		return 0, m.FailNext
	}
	id := m.nextID
	m.nextID++
	return id, nil
}

// Peek returns the next ID without incrementing
func (m *IDAllocator) Peek() uint64 {
	return m.nextID
}

// SetNext sets the next ID to be returned. Regressions are ignored.
func (m *IDAllocator) SetNext(next uint64) error {
	if next < 1 || next < m.nextID {
		return nil
	}
	m.nextID = next
	return nil
}

// Observe raises the next ID past seen
func (m *IDAllocator) Observe(seen uint64) error {
	return m.SetNext(seen + 1)
}
