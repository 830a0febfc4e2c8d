package att

// Conn identifies a single connected peer to the server. It is
// opaque: the server never interprets it beyond using it as a map
// key and handing it back to AccessCallbacks and the NotificationSink.
// This generalizes the teacher's *conn (conn.go), which tied a
// connection to a concrete BDAddr/RSSI pair that belongs to the
// link-layer transport this core does not own.
type Conn interface{}

// connState is the server's per-connection bookkeeping: the
// negotiated MTU and the in-flight prepare-write queue. One connState
// exists per Conn for the lifetime of the connection; it is discarded
// (along with any queued prepare-write entries) when the connection
// closes, mirroring conn.go's one-struct-per-link lifetime but
// shedding the address/RSSI fields that belonged to the transport.
type connState struct {
	mtu         uint16
	mtuExchanged bool
	prep        prepareQueue
}

func newConnState(prepCapacity int) *connState {
	cs := &connState{mtu: defaultMTU}
	cs.prep.capacity = prepCapacity
	return cs
}

// negotiateMTU applies an Exchange MTU Request's client value,
// freezing the channel MTU at min(local, peer) for the rest of the
// connection's lifetime (SPEC_FULL.md §4.2 / §9).
func (cs *connState) negotiateMTU(clientMTU, localMTU uint16) uint16 {
	if cs.mtuExchanged {
		return cs.mtu
	}
	m := clientMTU
	if localMTU < m {
		m = localMTU
	}
	if m < defaultMTU {
		m = defaultMTU
	}
	cs.mtu = m
	cs.mtuExchanged = true
	return cs.mtu
}
