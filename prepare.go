package att

import "sort"

// prepEntry is one queued Prepare Write Request: a handle, the byte
// offset within that handle's eventual value, and the payload to
// splice in at that offset. Grounded on mynewt's ble_att_prep_entry
// (original_source/net/nimble/host/src/ble_att_svr.c).
type prepEntry struct {
	handle uint16
	offset uint16
	data   []byte
}

// prepareQueue is a connection's ordered queue of pending prepared
// writes, validated and applied as a unit on Execute Write. Entries
// are kept sorted by (handle, offset) as they arrive, mirroring
// mynewt's svr_prep_list: ble_att_svr_prep_write_ok walks the list in
// this order to check contiguity before any Execute Write is allowed
// to commit.
type prepareQueue struct {
	entries  []prepEntry
	totalLen int
	// capacity bounds the combined length of all queued prepare
	// entries; zero means maxPrepareQueueLen. Set from
	// WithPrepareQueueCapacity at connection setup.
	capacity int
}

// maxPrepareQueueLen is the default bound on the combined length of
// all queued prepare entries, used when no WithPrepareQueueCapacity
// override is configured; beyond it, further Prepare Write Requests
// are rejected with ecodePrepQueueFull (SPEC_FULL.md §4.3 invariant 6).
const maxPrepareQueueLen = maxAttrValueLen * 4

// push inserts a new prepare entry in (handle, offset) order. It
// returns ecodePrepQueueFull if the queue has no room left.
func (q *prepareQueue) push(handle, offset uint16, data []byte) byte {
	cap := q.capacity
	if cap <= 0 {
		cap = maxPrepareQueueLen
	}
	if q.totalLen+len(data) > cap {
		return ecodePrepQueueFull
	}
	e := prepEntry{handle: handle, offset: offset, data: append([]byte(nil), data...)}
	i := sort.Search(len(q.entries), func(i int) bool {
		if q.entries[i].handle != handle {
			return q.entries[i].handle > handle
		}
		return q.entries[i].offset > offset
	})
	q.entries = append(q.entries, prepEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
	q.totalLen += len(data)
	return ecodeSuccess
}

// clear discards all queued entries, used on Execute Write (cancel),
// disconnect, or once a commit has been applied.
func (q *prepareQueue) clear() {
	q.entries = nil
	q.totalLen = 0
}

// runFor returns the contiguous run of entries queued for handle, in
// ascending offset order.
func (q *prepareQueue) runFor(handle uint16) []prepEntry {
	start := -1
	end := -1
	for i, e := range q.entries {
		if e.handle == handle {
			if start < 0 {
				start = i
			}
			end = i + 1
		} else if start >= 0 {
			break
		}
	}
	if start < 0 {
		return nil
	}
	return q.entries[start:end]
}

// validate checks that every queued run is offset-contiguous and
// does not exceed maxAttrValueLen once assembled, per
// ble_att_svr_prep_write_ok: the first entry for a handle must start
// at offset 0, and every subsequent entry's offset must equal the
// end of the previous one (no gaps, no overlaps, no reordering holes).
// It returns (failingHandle, ecode) with ecode == ecodeSuccess if the
// whole queue is consistent.
func (q *prepareQueue) validate() (uint16, byte) {
	var cur uint16
	var curLen int
	for i, e := range q.entries {
		sameRun := i > 0 && q.entries[i-1].handle == e.handle
		if !sameRun {
			cur = e.handle
			curLen = 0
			if e.offset != 0 {
				return cur, ecodeInvalidOffset
			}
		} else if int(e.offset) != curLen {
			return cur, ecodeInvalidOffset
		}
		curLen += len(e.data)
		if curLen > maxAttrValueLen {
			return cur, ecodeInvalAttrValueLen
		}
	}
	return 0, ecodeSuccess
}

// assembleRun concatenates a handle's queued run into the final value to
// be written.
func assembleRun(run []prepEntry) []byte {
	var out []byte
	for _, e := range run {
		out = append(out, e.data...)
	}
	return out
}

// handles returns the distinct handles with queued entries, in the
// order they first appear.
func (q *prepareQueue) handles() []uint16 {
	var hh []uint16
	var last uint16
	have := false
	for _, e := range q.entries {
		if !have || e.handle != last {
			hh = append(hh, e.handle)
			last = e.handle
			have = true
		}
	}
	return hh
}
