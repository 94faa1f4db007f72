package registry

// Allocator hands out user and board ids from two independent monotonic
// counters. Ids are never reused. An Allocator belongs to exactly one
// Registry and is only touched while that registry's lock is held.
type Allocator struct {
	nextUser  int
	nextBoard int
}

// NewAllocator creates an allocator whose user and board counters both
// start at 0.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// NewAllocatorFrom creates an allocator that continues from the given ids.
// Negative starting values are clamped to 0 so the lobby id stays reserved.
func NewAllocatorFrom(nextUser, nextBoard int) *Allocator {
	if nextUser < 0 {
		nextUser = 0
	}
	if nextBoard < 0 {
		nextBoard = 0
	}
	return &Allocator{nextUser: nextUser, nextBoard: nextBoard}
}

// NextUserID returns a fresh user id.
func (a *Allocator) NextUserID() int {
	id := a.nextUser
	a.nextUser++
	return id
}

// NextBoardID returns a fresh board id.
func (a *Allocator) NextBoardID() int {
	id := a.nextBoard
	a.nextBoard++
	return id
}
