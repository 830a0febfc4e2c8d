package att

// pduWriter assembles a single outbound ATT PDU, enforcing the
// channel MTU with clean early termination: callers write fixed
// header bytes directly, then group each variable-length record in a
// Chunk/Commit pair so an over-MTU record can be rolled back without
// corrupting previously committed records.
//
// This mirrors the teacher's l2capWriter (l2cap_writer_test.go);
// the implementation here is written fresh since only its test
// survived retrieval, but the Chunk/Commit contract is unchanged.
type pduWriter struct {
	buf        []byte
	mtu        int
	chunking   bool
	chunkStart int
}

func newPDUWriter(mtu uint16) *pduWriter {
	return &pduWriter{mtu: int(mtu)}
}

// WriteByteFit appends a single byte.
func (w *pduWriter) WriteByteFit(b byte) {
	w.buf = append(w.buf, b)
}

// WriteUint16Fit appends n as two little-endian bytes.
func (w *pduWriter) WriteUint16Fit(n uint16) {
	w.buf = append(w.buf, byte(n), byte(n>>8))
}

// WriteUUIDFit appends u's wire bytes (already little-endian), in
// whatever length (2 or 16) it happens to carry.
func (w *pduWriter) WriteUUIDFit(u UUID) {
	w.buf = append(w.buf, u.b...)
}

// WriteFit appends b verbatim.
func (w *pduWriter) WriteFit(b []byte) {
	w.buf = append(w.buf, b...)
}

// Chunk begins a new speculative record. It panics if a chunk is
// already open.
func (w *pduWriter) Chunk() {
	if w.chunking {
		panic("pduWriter: Chunk called with a chunk already open")
	}
	w.chunking = true
	w.chunkStart = len(w.buf)
}

// Commit closes the open chunk. If the PDU written so far (including
// this chunk) exceeds the MTU, the chunk is rolled back and Commit
// returns false; the caller should stop appending further records.
// It panics if no chunk is open.
func (w *pduWriter) Commit() bool {
	if !w.chunking {
		panic("pduWriter: Commit called without an open chunk")
	}
	w.chunking = false
	if len(w.buf) > w.mtu {
		w.buf = w.buf[:w.chunkStart]
		return false
	}
	return true
}

// ChunkSeek drops the first offset bytes of the currently open chunk,
// used to apply a Read Blob offset to a value already written in
// full. It returns false if offset exceeds the chunk's current
// length (the caller should respond with "invalid offset").
func (w *pduWriter) ChunkSeek(offset uint16) bool {
	if !w.chunking {
		panic("pduWriter: ChunkSeek called without an open chunk")
	}
	chunkLen := len(w.buf) - w.chunkStart
	if int(offset) > chunkLen {
		return false
	}
	copy(w.buf[w.chunkStart:], w.buf[w.chunkStart+int(offset):])
	w.buf = w.buf[:len(w.buf)-int(offset)]
	return true
}

// CommitFit closes the open chunk, truncating its contents to fit the
// MTU rather than rolling the whole chunk back. It is used by
// single-record responses (Read, Read Blob) where "return as much as
// fits" is correct, unlike the multi-record handlers where an
// over-MTU record must be dropped in its entirety.
func (w *pduWriter) CommitFit() {
	if !w.chunking {
		panic("pduWriter: CommitFit called without an open chunk")
	}
	w.chunking = false
	if len(w.buf) > w.mtu {
		w.buf = w.buf[:w.mtu]
	}
}

// Writeable returns how many bytes of data could still be appended
// without exceeding the MTU, reserving extra trailing bytes for
// whatever the caller writes after data.
func (w *pduWriter) Writeable(extra int, data []byte) int {
	avail := w.mtu - len(w.buf) - extra
	if avail < 0 {
		return 0
	}
	if avail > len(data) {
		return len(data)
	}
	return avail
}

// Len reports the number of bytes committed (or pending in an open
// chunk) so far.
func (w *pduWriter) Len() int { return len(w.buf) }

// Bytes returns the PDU assembled so far.
func (w *pduWriter) Bytes() []byte { return w.buf }
