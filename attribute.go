package att

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// AttrFlags are the permission bits carried by an Attribute.
// Bits are independent; Read and Write may both be set.
type AttrFlags uint8

const (
	// FlagRead permits the attribute to be read.
	FlagRead AttrFlags = 1 << iota
	// FlagWrite permits the attribute to be written.
	FlagWrite
	// FlagEncryptionRequired requires an encrypted link for access.
	FlagEncryptionRequired
	// FlagAuthenticationRequired requires an authenticated link for access.
	FlagAuthenticationRequired
	// FlagAuthorizationRequired requires application-level authorization for access.
	FlagAuthorizationRequired
)

// ErrResourcesExhausted is returned by Register when the table has no
// room for another attribute (see NewTable's capacity argument).
var ErrResourcesExhausted = errors.New("attribute table: resources exhausted")

// Attribute is one entry of the attribute table: a typed, handled,
// permissioned slot backed by an access callback. Attributes are
// never mutated or removed after registration.
type Attribute struct {
	UUID   UUID
	Handle uint16
	Flags  AttrFlags
	cb     AccessCallback
	cbArg  interface{}
}

// Table is the server's append-only, insertion-ordered sequence of
// Attributes, indexed by handle. Because Register always issues the
// previous handle plus one, the table is always a single contiguous
// run of handles starting at 1 — the same invariant the teacher's
// handleRange (handle.go) relied on to do O(1)-indexed lookups over
// an O(n) scan-sized table.
type Table struct {
	aa       []Attribute
	next     uint16 // next handle to issue; 0 means "none issued yet"
	capacity int     // 0 means unbounded
	log      *logrus.Entry
}

// NewTable constructs an empty attribute table. capacity, if nonzero,
// bounds the number of attributes that may be registered; beyond it,
// Register returns ErrResourcesExhausted instead of growing forever,
// standing in for the fixed-capacity block allocator this core
// assumes is available (see spec §5).
func NewTable(capacity int, log *logrus.Entry) *Table {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Table{capacity: capacity, log: log}
}

// Register appends a new Attribute with a freshly allocated handle
// (the previous handle + 1; 1 if the table is empty) and returns it.
func (t *Table) Register(uuid UUID, flags AttrFlags, cb AccessCallback, arg interface{}) (uint16, error) {
	if t.capacity > 0 && len(t.aa) >= t.capacity {
		return 0, ErrResourcesExhausted
	}

	h := t.next + 1
	if h == 0 {
		// Wrapped past 0xFFFF: the handle space is exhausted. This is
		// an invariant violation, not a recoverable condition — the
		// caller configured more attributes than a 16-bit handle
		// space can ever name.
		t.log.Fatal("attribute table: handle space exhausted")
	}
	if h == 0xFFFF {
		// Reserved for Read By Group Type's open-ended "table end" marker.
		t.log.Fatal("attribute table: handle 0xFFFF is reserved")
	}

	t.aa = append(t.aa, Attribute{UUID: uuid, Handle: h, Flags: flags, cb: cb, cbArg: arg})
	t.next = h
	return h, nil
}

// RegisterUUID16 is Register with uuid first expanded from its 16-bit
// short form to the Bluetooth base UUID's 128-bit form... except the
// wire and internal forms both use the compact 2-byte UUID when
// possible, so this simply forwards to Register with UUID16(uuid).
// It exists so callers never have to spell out UUID16 themselves.
func (t *Table) RegisterUUID16(uuid uint16, flags AttrFlags, cb AccessCallback, arg interface{}) (uint16, error) {
	return t.Register(UUID16(uuid), flags, cb, arg)
}

// Len reports how many attributes are registered.
func (t *Table) Len() int { return len(t.aa) }

// FindByHandle returns the attribute with the given handle.
func (t *Table) FindByHandle(handle uint16) (Attribute, bool) {
	i := t.idx(handle)
	if i < 0 {
		return Attribute{}, false
	}
	return t.aa[i], true
}

// idx returns the slice index for handle n, or a negative sentinel if
// n falls outside the registered range.
func (t *Table) idx(n uint16) int {
	if len(t.aa) == 0 {
		return -1
	}
	base := t.aa[0].Handle
	if n < base {
		return -1
	}
	if int(n) >= int(base)+len(t.aa) {
		return -1
	}
	return int(n) - int(base)
}

// Subrange returns the attributes with handle in [start, end]; it may
// return an empty (non-nil) slice. Subrange never panics for an
// out-of-range start or end.
func (t *Table) Subrange(start, end uint16) []Attribute {
	if len(t.aa) == 0 || start > end {
		return []Attribute{}
	}
	base := t.aa[0].Handle

	startIdx := int(start) - int(base)
	if startIdx < 0 {
		startIdx = 0
	}
	if startIdx > len(t.aa) {
		return []Attribute{}
	}

	endIdx := int(end) - int(base) + 1 // end is inclusive
	if endIdx < 0 {
		return []Attribute{}
	}
	if endIdx > len(t.aa) {
		endIdx = len(t.aa)
	}
	if startIdx >= endIdx {
		return []Attribute{}
	}
	return t.aa[startIdx:endIdx]
}

// FindByUUID is an iterator-style scan: given a cursor (the handle of
// the previous match, or 0 for "start from the beginning"), it
// returns the next attribute whose UUID equals uuid, or !ok if there
// is none. No iterator state survives across calls; the caller
// advances the cursor itself (Design Note §9).
func (t *Table) FindByUUID(cursor uint16, uuid UUID) (Attribute, bool) {
	startIdx := 0
	if cursor != 0 {
		if i := t.idx(cursor); i >= 0 {
			startIdx = i + 1
		}
	}
	for i := startIdx; i < len(t.aa); i++ {
		if uuidEqual(t.aa[i].UUID, uuid) {
			return t.aa[i], true
		}
	}
	return Attribute{}, false
}
