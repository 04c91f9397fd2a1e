package xmlstream

import "io"

// captureReader remembers every byte the decoder pulls through it so record
// spans can be copied out verbatim once the decoder reports their offsets.
// After rewind, Read replays captured bytes before reading further input.
//
// buf[0] sits at absolute input offset base; pos is the offset of the next
// byte Read returns.
type captureReader struct {
	r    io.Reader
	buf  []byte
	base int64
	pos  int64
}

func (c *captureReader) Read(p []byte) (int, error) {
	if off := c.pos - c.base; off < int64(len(c.buf)) {
		n := copy(p, c.buf[off:])
		c.pos += int64(n)
		return n, nil
	}
	n, err := c.r.Read(p)
	if n > 0 {
		c.buf = append(c.buf, p[:n]...)
		c.pos += int64(n)
	}
	return n, err
}

// span returns the captured bytes in [start, end). The slice aliases the
// internal buffer and is only valid until the next discard or Read.
func (c *captureReader) span(start, end int64) []byte {
	return c.buf[start-c.base : end-c.base]
}

// from returns everything captured from absolute offset off onwards.
func (c *captureReader) from(off int64) []byte {
	return c.buf[off-c.base:]
}

// end is the absolute offset just past the captured bytes.
func (c *captureReader) end() int64 {
	return c.base + int64(len(c.buf))
}

// fill captures more input without moving the read position.
func (c *captureReader) fill() (int, error) {
	var chunk [32 << 10]byte
	n, err := c.r.Read(chunk[:])
	c.buf = append(c.buf, chunk[:n]...)
	return n, err
}

// rewind makes the next Read start at absolute offset to, which must still
// be captured.
func (c *captureReader) rewind(to int64) {
	c.pos = to
}

// discard forgets everything before absolute offset upto.
func (c *captureReader) discard(upto int64) {
	drop := upto - c.base
	if drop <= 0 {
		return
	}
	if drop >= int64(len(c.buf)) {
		c.base += int64(len(c.buf))
		c.buf = c.buf[:0]
		return
	}
	// Compact only once the dead prefix is worth a copy.
	if drop < 64<<10 && drop < int64(len(c.buf))/2 {
		return
	}
	n := copy(c.buf, c.buf[drop:])
	c.buf = c.buf[:n]
	c.base = upto
}
