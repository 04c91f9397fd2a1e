// Package xmlstream splits an XML document into record fragments without
// building a tree of the whole input.
package xmlstream

import "sync"

// maxPooledFragment caps the buffer size we keep around. Very large records
// are left to the GC so one outlier does not pin memory for the whole run.
const maxPooledFragment = 1 << 20

// Fragment is a pooled, byte-exact copy of one record element.
//
// Ownership contract:
//   - Exactly one goroutine owns a Fragment at a time.
//   - A Fragment may be passed downstream via channels (ownership transfer).
//   - The final consumer calls Free() once it no longer needs Bytes.
//
// On ctx-cancellation paths use Drop() instead: a drain that still runs while
// the producer unwinds must not hand the buffer back for reuse.
type Fragment struct {
	Bytes []byte
	Index int // 1-based record number in document order
}

var fragmentPool sync.Pool

// GetFragment returns a pooled Fragment whose Bytes has length n.
func GetFragment(n int) *Fragment {
	if v := fragmentPool.Get(); v != nil {
		f := v.(*Fragment)
		if cap(f.Bytes) < n {
			f.Bytes = make([]byte, n)
		}
		f.Bytes = f.Bytes[:n]
		f.Index = 0
		return f
	}
	return &Fragment{Bytes: make([]byte, n)}
}

// NewFragment copies b into a pooled Fragment.
func NewFragment(index int, b []byte) *Fragment {
	f := GetFragment(len(b))
	copy(f.Bytes, b)
	f.Index = index
	return f
}

// Free returns the Fragment to the pool.
// Call this ONLY when no other goroutine can observe f or f.Bytes.
func (f *Fragment) Free() {
	if cap(f.Bytes) > maxPooledFragment {
		f.Drop()
		return
	}
	fragmentPool.Put(f)
}

// Drop discards the Fragment WITHOUT returning it to the pool.
func (f *Fragment) Drop() {
	f.Bytes = nil
	f.Index = 0
}
