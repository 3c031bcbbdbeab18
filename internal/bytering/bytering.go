// Package bytering implements the byte adapter the FLV demuxer core reads
// from: an append-only ring of pushed buffers supporting non-destructive
// peeking, draining, and flushing, so the core never needs to know how the
// host chose to chunk its input.
package bytering

import "fmt"

// chunk is one buffer pushed by the host that has not yet been fully
// consumed. off is the number of leading bytes already flushed/taken from
// it.
type chunk struct {
	data []byte
	off  int
}

func (c chunk) len() int { return len(c.data) - c.off }

// Ring is a FIFO queue of byte chunks presented as one logical stream.
// It is not safe for concurrent use; the demuxer core is single-threaded.
type Ring struct {
	chunks    []chunk
	available int
}

// New returns an empty Ring.
func New() *Ring {
	return &Ring{}
}

// Available reports how many bytes are currently buffered.
func (r *Ring) Available() int {
	return r.available
}

// Push appends buf to the ring. buf is retained, not copied; callers must
// not mutate it afterward.
func (r *Ring) Push(buf []byte) {
	if len(buf) == 0 {
		return
	}
	r.chunks = append(r.chunks, chunk{data: buf})
	r.available += len(buf)
}

// PeekInto copies the next len(dst) buffered bytes into dst without
// consuming them. It returns an error if fewer bytes are available.
func (r *Ring) PeekInto(dst []byte) error {
	if len(dst) > r.available {
		return fmt.Errorf("bytering: peek of %d bytes exceeds %d available", len(dst), r.available)
	}
	n := 0
	for _, c := range r.chunks {
		if n == len(dst) {
			break
		}
		avail := c.len()
		want := len(dst) - n
		if want > avail {
			want = avail
		}
		copy(dst[n:n+want], c.data[c.off:c.off+want])
		n += want
	}
	return nil
}

// Take drains exactly n bytes from the front of the ring and returns them
// as an owned slice. The returned slice aliases the underlying pushed
// buffer only when n bytes lie entirely within a single chunk; otherwise a
// fresh buffer is allocated to present the data contiguously.
func (r *Ring) Take(n int) ([]byte, error) {
	if n < 0 || n > r.available {
		return nil, fmt.Errorf("bytering: take of %d bytes exceeds %d available", n, r.available)
	}
	if n == 0 {
		return nil, nil
	}

	if len(r.chunks) > 0 && r.chunks[0].len() >= n {
		c := &r.chunks[0]
		out := c.data[c.off : c.off+n]
		c.off += n
		r.available -= n
		r.dropConsumedFront()
		return out, nil
	}

	out := make([]byte, n)
	if err := r.PeekInto(out); err != nil {
		return nil, err
	}
	if err := r.Flush(n); err != nil {
		return nil, err
	}
	return out, nil
}

// Flush discards the next n bytes without returning them.
func (r *Ring) Flush(n int) error {
	if n < 0 || n > r.available {
		return fmt.Errorf("bytering: flush of %d bytes exceeds %d available", n, r.available)
	}
	remaining := n
	for remaining > 0 && len(r.chunks) > 0 {
		c := &r.chunks[0]
		avail := c.len()
		if avail > remaining {
			c.off += remaining
			remaining = 0
		} else {
			remaining -= avail
			r.chunks = r.chunks[1:]
		}
	}
	r.available -= n
	return nil
}

// Clear discards all buffered data.
func (r *Ring) Clear() {
	r.chunks = nil
	r.available = 0
}

// dropConsumedFront removes fully-consumed chunks from the front of the
// queue so it does not grow unboundedly across a long-running demux.
func (r *Ring) dropConsumedFront() {
	for len(r.chunks) > 0 && r.chunks[0].len() == 0 {
		r.chunks = r.chunks[1:]
	}
}
