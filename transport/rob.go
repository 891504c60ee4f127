package transport

import "sort"

// reorderBuffer (ROB) is the sparse offset-indexed byte container of
// spec.md §4.4: out-of-order bytes accumulate here until the data below
// the first gap can be delivered in order. Insertion is idempotent over
// overlapping ranges (spec.md invariant 3). Grounded on the crypto/stream
// reassembly buffers ngtcp2_conn.c builds over ngtcp2_rob / ngtcp2_strm.
type reorderBuffer struct {
	chunks   []robChunk // sorted, disjoint, non-adjacent, ascending by offset
	consumed uint64     // bytes already popped from the front
	cap      uint64     // 0 = unbounded; otherwise spec.md §4.4 reorder window
}

type robChunk struct {
	offset uint64
	data   []byte
}

func (s *reorderBuffer) init(capacity uint64) {
	s.cap = capacity
}

// push inserts data at offset, coalescing with any overlapping or adjacent
// existing chunks. Returns CRYPTO_BUFFER_EXCEEDED if capped and the data
// falls beyond the configured reorder window.
func (s *reorderBuffer) push(offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	end := offset + uint64(len(data))
	if end <= s.consumed {
		return nil // entirely already delivered
	}
	if offset < s.consumed {
		data = data[s.consumed-offset:]
		offset = s.consumed
	}
	if s.cap > 0 && offset > s.consumed+s.cap {
		return newError(CryptoBufferExceeded, "reorder window exceeded")
	}
	// Find insertion point.
	i := sort.Search(len(s.chunks), func(i int) bool {
		return s.chunks[i].offset+uint64(len(s.chunks[i].data)) >= offset
	})
	newChunk := robChunk{offset: offset, data: append([]byte(nil), data...)}
	// Merge with all chunks that overlap or touch [offset,end).
	j := i
	for j < len(s.chunks) && s.chunks[j].offset <= end {
		newChunk = mergeChunks(newChunk, s.chunks[j])
		j++
	}
	s.chunks = append(s.chunks[:i], append([]robChunk{newChunk}, s.chunks[j:]...)...)
	return nil
}

func mergeChunks(a, b robChunk) robChunk {
	lo := a.offset
	if b.offset < lo {
		lo = b.offset
	}
	aEnd := a.offset + uint64(len(a.data))
	bEnd := b.offset + uint64(len(b.data))
	hi := aEnd
	if bEnd > hi {
		hi = bEnd
	}
	out := make([]byte, hi-lo)
	copy(out[a.offset-lo:], a.data)
	copy(out[b.offset-lo:], b.data) // b wins on overlap; push passes the already-buffered chunk as b, so earlier bytes are kept
	return robChunk{offset: lo, data: out}
}

// firstGapOffset returns the smallest offset not yet covered by a
// contiguous run starting at s.consumed.
func (s *reorderBuffer) firstGapOffset() uint64 {
	if len(s.chunks) == 0 {
		return s.consumed
	}
	if s.chunks[0].offset > s.consumed {
		return s.consumed
	}
	return s.chunks[0].offset + uint64(len(s.chunks[0].data))
}

// dataAt returns the contiguous bytes available starting at offset, which
// must equal s.consumed (the only offset pop is ever called with).
func (s *reorderBuffer) dataAt(offset uint64) []byte {
	if len(s.chunks) == 0 || s.chunks[0].offset != offset {
		return nil
	}
	return s.chunks[0].data
}

// pop consumes up to n bytes of the contiguous prefix starting at
// s.consumed, returning what was delivered.
func (s *reorderBuffer) pop(n int) []byte {
	if len(s.chunks) == 0 || s.chunks[0].offset != s.consumed {
		return nil
	}
	chunk := s.chunks[0]
	if n >= len(chunk.data) {
		s.chunks = s.chunks[1:]
		s.consumed += uint64(len(chunk.data))
		return chunk.data
	}
	out := chunk.data[:n]
	s.chunks[0] = robChunk{offset: s.consumed + uint64(n), data: chunk.data[n:]}
	s.consumed += uint64(n)
	return out
}

// popAll drains the full contiguous prefix currently available.
func (s *reorderBuffer) popAll() []byte {
	if len(s.chunks) == 0 || s.chunks[0].offset != s.consumed {
		return nil
	}
	return s.pop(len(s.chunks[0].data))
}
