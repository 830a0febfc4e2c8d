package att

// AccessOp names which of the two capabilities an AccessCallback is
// being invoked for. The set is closed: there is no third operation,
// and no callback is ever asked to do both at once.
type AccessOp int

const (
	// AccessRead is a read of an attribute's current value.
	AccessRead AccessOp = iota + 1
	// AccessWrite is a write of a new value to an attribute.
	AccessWrite
)

func (op AccessOp) String() string {
	switch op {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	default:
		return "unknown"
	}
}

// AccessContext is passed to an AccessCallback for every invocation.
// The host lock is released for the duration of the callback (see
// SPEC_FULL.md §5); the callback must not retain Data past return.
type AccessContext struct {
	Op     AccessOp
	Conn   Conn
	Handle uint16
	Offset int    // byte offset into the attribute's value; always 0 for Write
	Data   []byte // payload to write; nil for Read
	Arg    interface{}
}

// AccessCallback is the single entry point through which every
// attribute's value is read or written. It generalizes the teacher's
// split ReadHandler/WriteHandler (characteristic.go) into the closed
// {read, write} capability set the access surface actually needs,
// since nothing here distinguishes static descriptors from
// application-backed characteristics the way Service/Characteristic
// did.
//
// On AccessRead, value is the current attribute value starting at
// ctx.Offset (the callback applies the offset itself; the server uses
// the returned bytes as they are) and status is an ATT error code
// (ecodeSuccess on success). On AccessWrite, value is ignored; status
// reports whether the write was accepted.
type AccessCallback func(ctx *AccessContext) (value []byte, status byte)

// AccessCallbackFunc is the canonical way to build an AccessCallback
// out of an ordinary function literal; it exists purely so call sites
// read as "att.AccessCallback(fn)" never needs an explicit conversion.
type AccessCallbackFunc = AccessCallback

// StaticValue returns an AccessCallback that serves a fixed,
// read-only byte slice, honoring Offset for Read Blob. It is the
// common case: most attributes (service/characteristic declarations,
// fixed descriptors) never need application logic at all.
func StaticValue(b []byte) AccessCallback {
	return func(ctx *AccessContext) ([]byte, byte) {
		switch ctx.Op {
		case AccessRead:
			if ctx.Offset > len(b) {
				return nil, ecodeInvalidOffset
			}
			return b[ctx.Offset:], ecodeSuccess
		default:
			return nil, ecodeWriteNotPerm
		}
	}
}

// checkPermission validates an operation against an attribute's
// permission flags before the access callback is ever invoked. It
// does not evaluate encryption/authentication/authorization state
// (no link-layer security context exists at this layer — see
// SPEC_FULL.md Non-goals); it only checks that the operation is
// permitted on the attribute at all.
func checkPermission(a *Attribute, op AccessOp) byte {
	switch op {
	case AccessRead:
		if a.Flags&FlagRead == 0 {
			return ecodeReadNotPerm
		}
	case AccessWrite:
		if a.Flags&FlagWrite == 0 {
			return ecodeWriteNotPerm
		}
	}
	return ecodeSuccess
}

// invoke runs a's access callback for the given operation, enforcing
// permission flags first. An attribute registered without a callback
// answers every permitted operation with ecodeUnlikely.
func invoke(a *Attribute, conn Conn, op AccessOp, offset int, data []byte) ([]byte, byte) {
	if code := checkPermission(a, op); code != ecodeSuccess {
		return nil, code
	}
	if a.cb == nil {
		return nil, ecodeUnlikely
	}
	return a.cb(&AccessContext{
		Op:     op,
		Conn:   conn,
		Handle: a.Handle,
		Offset: offset,
		Data:   data,
		Arg:    a.cbArg,
	})
}
