package store

import "fmt"

// Arena is a caller-owned scratch allocator. Every batched call that
// produces output writes into an Arena supplied by the caller instead of
// allocating its own memory; borrowed slices returned to the caller stay
// valid until the next call that reuses the same Arena (see Reset).
//
// Go callers don't get raw pointers back, only slices, which already carry
// their own bounds, so Arena exposes typed slice allocators instead of a
// single byte tape plus offset math the way a C ABI would need to.
type Arena struct {
	limit int // 0 means unbounded

	bytes []byte
	keys  []Key
	lens  []Length
}

// NewArena creates a scratch allocator. limit, if non-zero, bounds the
// number of value bytes the arena will hold before AllocBytes starts
// returning ErrOutOfMemory instead of growing further.
func NewArena(limit int) *Arena {
	return &Arena{limit: limit}
}

// Reset prepares the arena for a new call. When discard is true (the
// default — it is false only when the caller passed the
// dont_discard_memory option) previously returned slices are invalidated
// and their backing storage is reused from offset zero. When discard is
// false, new allocations are appended after whatever is already there, so
// slices borrowed on a previous call remain valid.
func (a *Arena) Reset(discard bool) {
	if !discard {
		return
	}
	a.bytes = a.bytes[:0]
	a.keys = a.keys[:0]
	a.lens = a.lens[:0]
}

// AllocBytes appends n zeroed bytes to the arena's value tape and returns
// the resulting slice, which aliases the arena's backing array.
func (a *Arena) AllocBytes(n int) ([]byte, error) {
	if a.limit > 0 && len(a.bytes)+n > a.limit {
		return nil, NewError(ErrorOutOfMemory, fmt.Sprintf("arena limit %d exceeded by %d bytes", a.limit, len(a.bytes)+n-a.limit))
	}
	start := len(a.bytes)
	a.bytes = append(a.bytes, make([]byte, n)...)
	return a.bytes[start : start+n], nil
}

// AppendBytes copies b onto the arena's value tape and returns the aliased
// slice. Consecutive AppendBytes calls produce adjacent memory, which is
// what makes a batch of reads "continuous" (see ContentsArg.IsContinuous).
func (a *Arena) AppendBytes(b []byte) ([]byte, error) {
	dst, err := a.AllocBytes(len(b))
	if err != nil {
		return nil, err
	}
	copy(dst, b)
	return dst, nil
}

// Tape returns the arena's full value-byte backing array. Engines build a
// ReadResult by pairing this with per-row (offset, length) pairs rather
// than returning one slice per row, so a batched read yields one
// contiguous buffer plus index arrays instead of a slice-of-slices.
func (a *Arena) Tape() []byte { return a.bytes }

// AppendValue copies b onto the value tape and returns its offset within
// Tape(), the form ReadResult.Offsets needs.
func (a *Arena) AppendValue(b []byte) (offset uint32, err error) {
	start := len(a.bytes)
	if _, err := a.AppendBytes(b); err != nil {
		return 0, err
	}
	return uint32(start), nil
}

// AllocLengths returns a fresh slice of n lengths, aliasing the arena.
func (a *Arena) AllocLengths(n int) []Length {
	start := len(a.lens)
	a.lens = append(a.lens, make([]Length, n)...)
	return a.lens[start : start+n]
}

// AllocKeys returns a fresh slice of n keys, aliasing the arena.
func (a *Arena) AllocKeys(n int) []Key {
	start := len(a.keys)
	a.keys = append(a.keys, make([]Key, n)...)
	return a.keys[start : start+n]
}
