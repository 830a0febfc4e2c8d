package att

import (
	"encoding/binary"
	"sync"

	"github.com/sirupsen/logrus"
)

// NotificationSink receives Handle Value Notifications and
// Indications sent to us by a peer. Indications are confirmed
// automatically by the dispatcher once sink.Notify returns; the sink
// itself never needs to touch the wire. Grounded on mynewt's
// ble_att_svr_rx_notify / ble_att_svr_rx_indicate
// (original_source/net/nimble/host/src/ble_att_svr.c), which route
// incoming notify/indicate PDUs through the same generic ATT server
// dispatch table as every request-response opcode.
type NotificationSink interface {
	Notify(conn Conn, handle uint16, data []byte, indication bool)
}

// Server dispatches incoming ATT PDUs against an attribute Table. It
// is the generalization of the teacher's *l2cap (l2cap.go): the
// transport-specific shim/eventloop/send machinery is stripped out
// (transport is left to the caller), but the central opcode switch,
// the MTU bookkeeping, and the Chunk/Commit response framing it drives
// are kept and extended to the opcodes l2cap.go never implemented
// (Read Multiple, Prepare/Execute Write, inbound Notify/Indicate).
type Server struct {
	mu    sync.Mutex
	table *Table
	conns map[Conn]*connState
	sink  NotificationSink
	log   *logrus.Entry

	localMTU     uint16
	prepQueueCap int
}

// Transport hands a dispatcher's response PDU back to the peer it came
// from. It is the caller-supplied counterpart to Conn: this module
// never opens a socket or frames a packet itself (SPEC_FULL.md §1),
// so an embedder that wants a push-style API rather than calling
// Dispatch directly can implement Transport and use DispatchVia.
type Transport interface {
	Send(conn Conn, pdu []byte) error
}

// NewServer constructs a Server over table. Use ServerOptions to
// configure the local MTU, logger, notification sink, and per-connection
// prepare-queue capacity.
func NewServer(table *Table, opts ...ServerOption) *Server {
	s := &Server{
		table:    table,
		conns:    make(map[Conn]*connState),
		log:      logrus.NewEntry(logrus.StandardLogger()),
		localMTU: defaultMTU,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect registers conn with the server, ready to dispatch requests.
// It is idempotent: connecting an already-connected Conn is a no-op.
func (s *Server) Connect(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn]; !ok {
		s.conns[conn] = newConnState(s.prepQueueCap)
	}
}

// DispatchVia processes one incoming PDU exactly as Dispatch does, then
// forwards any non-nil response through transport instead of returning
// it to the caller.
func (s *Server) DispatchVia(transport Transport, conn Conn, pdu []byte) error {
	resp := s.Dispatch(conn, pdu)
	if resp == nil {
		return nil
	}
	return transport.Send(conn, resp)
}

// Disconnect discards conn's negotiated MTU and any queued prepare
// writes. Dispatch on an unknown Conn after this behaves exactly as
// it did before the first Connect.
func (s *Server) Disconnect(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// state returns conn's connState, creating one with defaults if this
// is its first appearance (Dispatch may be called without an explicit
// prior Connect).
func (s *Server) state(conn Conn) *connState {
	cs, ok := s.conns[conn]
	if !ok {
		cs = newConnState(s.prepQueueCap)
		s.conns[conn] = cs
	}
	return cs
}

// Dispatch processes one incoming ATT PDU from conn and returns the
// PDU to send back, or nil if no response is required (Write Command,
// Signed Write Command, Handle Value Confirmation, and a successfully
// processed Handle Value Notification all have no response). Dispatch
// never panics on malformed input; malformed PDUs produce an Error
// Response or, where the opcode itself can't be trusted, are dropped.
//
// The host lock (s.mu) is held only around table/connection-state
// bookkeeping; AccessCallback and NotificationSink invocations happen
// with it released, so a slow or blocking callback never stalls
// dispatch on other connections.
func (s *Server) Dispatch(conn Conn, pdu []byte) []byte {
	if len(pdu) == 0 {
		return nil
	}
	reqOp := Opcode(pdu[0])
	body := pdu[1:]

	s.mu.Lock()
	cs := s.state(conn)
	s.mu.Unlock()

	switch reqOp {
	case opMTUReq:
		return s.handleMTU(cs, body)
	case opFindInfoReq:
		return s.handleFindInfo(cs, body)
	case opFindByTypeReq:
		return s.handleFindByTypeValue(conn, cs, body)
	case opReadByTypeReq:
		return s.handleReadByType(conn, cs, body)
	case opReadReq, opReadBlobReq:
		return s.handleRead(conn, cs, reqOp, body)
	case opReadMultiReq:
		return s.handleReadMulti(conn, cs, body)
	case opReadByGroupReq:
		return s.handleReadByGroup(conn, cs, body)
	case opWriteReq, opWriteCmd, opSignedWriteCmd:
		return s.handleWrite(conn, cs, reqOp, body)
	case opPrepWriteReq:
		return s.handlePrepareWrite(cs, body)
	case opExecWriteReq:
		return s.handleExecuteWrite(conn, cs, body)
	case opHandleNotify:
		s.handleNotify(conn, body, false)
		return nil
	case opHandleInd:
		return s.handleNotify(conn, body, true)
	case opHandleCnf:
		// A Confirmation has no response of its own; matching a
		// confirmation to an outstanding indication is the caller's
		// concern (this core never sends outbound indications).
		return nil
	default:
		return errResp(reqOp, 0, ecodeReqNotSupp)
	}
}

func (s *Server) handleMTU(cs *connState, b []byte) []byte {
	if len(b) != 2 {
		return errResp(opMTUReq, 0, ecodeInvalidPDU)
	}
	if cs.mtuExchanged {
		return errResp(opMTUReq, 0, ecodeReqNotSupp)
	}
	clientMTU := binary.LittleEndian.Uint16(b)
	mtu := cs.negotiateMTU(clientMTU, s.localMTU)
	return []byte{byte(opMTUResp), byte(mtu), byte(mtu >> 8)}
}

func (s *Server) handleFindInfo(cs *connState, b []byte) []byte {
	if len(b) != 4 {
		return errResp(opFindInfoReq, 0, ecodeInvalidPDU)
	}
	start, end := readHandleRange(b)
	if start == 0 || start > end {
		return errResp(opFindInfoReq, start, ecodeInvalidHandle)
	}

	w := newPDUWriter(cs.mtu)
	w.WriteByteFit(byte(opFindInfoResp))
	uuidLen := -1
	for _, a := range s.table.Subrange(start, end) {
		if uuidLen == -1 {
			uuidLen = a.UUID.Len()
			if uuidLen == 2 {
				w.WriteByteFit(0x01)
			} else {
				w.WriteByteFit(0x02)
			}
		}
		if a.UUID.Len() != uuidLen {
			break
		}
		w.Chunk()
		w.WriteUint16Fit(a.Handle)
		w.WriteUUIDFit(a.UUID)
		if ok := w.Commit(); !ok {
			break
		}
	}
	if uuidLen == -1 {
		return errResp(opFindInfoReq, start, ecodeAttrNotFound)
	}
	return w.Bytes()
}

// handleFindByTypeValue generalizes the teacher's handleFindByType
// (l2cap.go), which only ever matched the Primary Service group UUID,
// to any attribute type and any value. Grouping has nothing to do with
// service boundaries here: per the Core Spec's Find By Type Value
// Response and mynewt's ble_att_svr_fill_type_value (tracking
// first/prev across the scan), a run of handles that are both
// consecutive and individually matching collapses into one
// (handle, group end) pair; any non-matching attribute in between
// closes the run (SPEC_FULL.md §4.2, §8 scenario f).
func (s *Server) handleFindByTypeValue(conn Conn, cs *connState, b []byte) []byte {
	if len(b) < 6 {
		return errResp(opFindByTypeReq, 0, ecodeInvalidPDU)
	}
	start, end := readHandleRange(b)
	if start == 0 || start > end {
		return errResp(opFindByTypeReq, start, ecodeInvalidHandle)
	}
	attType := UUID{append([]byte(nil), b[4:6]...)}
	value := b[6:]

	w := newPDUWriter(cs.mtu)
	w.WriteByteFit(byte(opFindByTypeResp))

	var wrote bool
	var groupStart, groupEnd uint16
	emitGroup := func() bool {
		w.Chunk()
		w.WriteUint16Fit(groupStart)
		w.WriteUint16Fit(groupEnd)
		ok := w.Commit()
		if ok {
			wrote = true
		}
		groupStart = 0
		return ok
	}
	for _, a := range s.table.Subrange(start, end) {
		match := false
		if uuidEqual(a.UUID, attType) {
			av, status := invoke(&a, conn, AccessRead, 0, nil)
			match = status == ecodeSuccess && bytesEqual(av, value)
		}
		if match && groupStart != 0 && a.Handle == groupEnd+1 {
			groupEnd = a.Handle
			continue
		}
		if groupStart != 0 {
			if !emitGroup() {
				break
			}
		}
		if match {
			groupStart, groupEnd = a.Handle, a.Handle
		}
	}
	if groupStart != 0 {
		emitGroup()
	}
	if !wrote {
		return errResp(opFindByTypeReq, start, ecodeAttrNotFound)
	}
	return w.Bytes()
}

// groupEndFor returns the end handle of the grouping a belongs to:
// for a service declaration, the handle of the last attribute before
// the next service declaration, or the sentinel 0xFFFF if the table
// ends before another service declaration is found. Anything else
// reports its own handle. The 0xFFFF sentinel is grounded on mynewt's
// ble_att_svr_rx_read_group_type: when its scan reaches entry == NULL
// (original_source/net/nimble/host/src/ble_att_svr.c:1859-1862), it
// emits end_group_handle = 0xffff so the client knows there is
// nothing left to discover without a follow-up request.
func (s *Server) groupEndFor(a Attribute) uint16 {
	if !uuidEqual(a.UUID, uuidPrimaryService) && !uuidEqual(a.UUID, uuidSecondaryService) {
		return a.Handle
	}
	rest := s.table.Subrange(a.Handle+1, 0xFFFE)
	end := a.Handle
	for _, n := range rest {
		if uuidEqual(n.UUID, uuidPrimaryService) || uuidEqual(n.UUID, uuidSecondaryService) {
			return end
		}
		end = n.Handle
	}
	return 0xFFFF
}

func (s *Server) handleReadByType(conn Conn, cs *connState, b []byte) []byte {
	if len(b) != 6 && len(b) != 20 {
		return errResp(opReadByTypeReq, 0, ecodeInvalidPDU)
	}
	start, end := readHandleRange(b)
	if start == 0 || start > end {
		return errResp(opReadByTypeReq, start, ecodeInvalidHandle)
	}
	uuid := UUID{append([]byte(nil), b[4:]...)}

	w := newPDUWriter(cs.mtu)
	w.WriteByteFit(byte(opReadByTypeResp))
	recLen := -1
	for _, a := range s.table.Subrange(start, end) {
		if !uuidEqual(a.UUID, uuid) {
			continue
		}
		value, status := invoke(&a, conn, AccessRead, 0, nil)
		if status != ecodeSuccess {
			if recLen == -1 {
				return errResp(opReadByTypeReq, a.Handle, status)
			}
			break
		}
		if recLen == -1 {
			// Establish the record length from this, the first match.
			// Its value is truncated to whatever fits the MTU (the Core
			// Spec allows a short first record; Read Blob exists for the
			// rest), so it is always committed below -- never compared
			// against itself for a length mismatch.
			datalen := w.Writeable(3, value)
			if datalen == 0 {
				return errResp(opReadByTypeReq, a.Handle, ecodeInsuffResources)
			}
			recLen = datalen + 2
			w.WriteByteFit(byte(recLen))
			value = value[:datalen]
		} else if len(value) != recLen-2 {
			break
		}
		w.Chunk()
		w.WriteUint16Fit(a.Handle)
		w.WriteFit(value)
		if ok := w.Commit(); !ok {
			break
		}
	}
	if recLen == -1 {
		return errResp(opReadByTypeReq, start, ecodeAttrNotFound)
	}
	return w.Bytes()
}

func (s *Server) handleRead(conn Conn, cs *connState, reqOp Opcode, b []byte) []byte {
	if (reqOp == opReadReq && len(b) != 2) || (reqOp == opReadBlobReq && len(b) != 4) {
		return errResp(reqOp, 0, ecodeInvalidPDU)
	}
	handle := binary.LittleEndian.Uint16(b)
	var offset uint16
	if reqOp == opReadBlobReq {
		offset = binary.LittleEndian.Uint16(b[2:])
	}

	a, ok := s.table.FindByHandle(handle)
	if !ok {
		return errResp(reqOp, handle, ecodeInvalidHandle)
	}

	value, status := invoke(&a, conn, AccessRead, int(offset), nil)
	if status != ecodeSuccess {
		return errResp(reqOp, handle, status)
	}

	if reqOp == opReadBlobReq && int(offset)+len(value) <= int(cs.mtu)-3 {
		return errResp(reqOp, handle, ecodeAttrNotLong)
	}

	w := newPDUWriter(cs.mtu)
	w.WriteByteFit(byte(respFor[reqOp]))
	w.Chunk()
	w.WriteFit(value)
	w.CommitFit()
	return w.Bytes()
}

// handleReadMulti has no counterpart in l2cap.go; grounded on
// currantlabs-bt/att/server.go's request-shape conventions and the
// Core Spec's "return every handle's value concatenated, or the first
// error encountered" semantics.
func (s *Server) handleReadMulti(conn Conn, cs *connState, b []byte) []byte {
	if len(b) < 4 || len(b)%2 != 0 {
		return errResp(opReadMultiReq, 0, ecodeInvalidPDU)
	}

	w := newPDUWriter(cs.mtu)
	w.WriteByteFit(byte(opReadMultiResp))
	w.Chunk()
	for i := 0; i < len(b); i += 2 {
		handle := binary.LittleEndian.Uint16(b[i:])
		a, ok := s.table.FindByHandle(handle)
		if !ok {
			return errResp(opReadMultiReq, handle, ecodeInvalidHandle)
		}
		value, status := invoke(&a, conn, AccessRead, 0, nil)
		if status != ecodeSuccess {
			return errResp(opReadMultiReq, handle, status)
		}
		w.WriteFit(value)
	}
	w.CommitFit()
	return w.Bytes()
}

func (s *Server) handleReadByGroup(conn Conn, cs *connState, b []byte) []byte {
	if len(b) != 6 && len(b) != 20 {
		return errResp(opReadByGroupReq, 0, ecodeInvalidPDU)
	}
	start, end := readHandleRange(b)
	if start == 0 || start > end {
		return errResp(opReadByGroupReq, start, ecodeInvalidHandle)
	}
	uuid := UUID{append([]byte(nil), b[4:]...)}
	if !uuidEqual(uuid, uuidPrimaryService) && !uuidEqual(uuid, uuidSecondaryService) {
		return errResp(opReadByGroupReq, start, ecodeUnsuppGrpType)
	}

	w := newPDUWriter(cs.mtu)
	w.WriteByteFit(byte(opReadByGroupResp))
	recLen := -1
	for _, a := range s.table.Subrange(start, end) {
		if !uuidEqual(a.UUID, uuid) {
			continue
		}
		groupEnd := s.groupEndFor(a)
		value, status := invoke(&a, conn, AccessRead, 0, nil)
		if status != ecodeSuccess {
			if recLen != -1 {
				break
			}
			continue
		}
		if recLen == -1 {
			recLen = len(value) + 4
			w.WriteByteFit(byte(recLen))
		}
		if len(value)+4 != recLen {
			break
		}
		w.Chunk()
		w.WriteUint16Fit(a.Handle)
		w.WriteUint16Fit(groupEnd)
		w.WriteFit(value)
		if ok := w.Commit(); !ok {
			break
		}
	}
	if recLen == -1 {
		return errResp(opReadByGroupReq, start, ecodeAttrNotFound)
	}
	return w.Bytes()
}

func (s *Server) handleWrite(conn Conn, cs *connState, reqOp Opcode, b []byte) []byte {
	if len(b) < 2 {
		if reqOp == opWriteReq {
			return errResp(reqOp, 0, ecodeInvalidPDU)
		}
		return nil
	}
	handle := binary.LittleEndian.Uint16(b)
	data := b[2:]
	noResp := reqOp == opWriteCmd || reqOp == opSignedWriteCmd

	a, ok := s.table.FindByHandle(handle)
	if !ok {
		if noResp {
			return nil
		}
		return errResp(reqOp, handle, ecodeInvalidHandle)
	}

	_, status := invoke(&a, conn, AccessWrite, 0, data)
	if noResp {
		return nil
	}
	if status != ecodeSuccess {
		return errResp(reqOp, handle, status)
	}
	return []byte{byte(opWriteResp)}
}

func (s *Server) handlePrepareWrite(cs *connState, b []byte) []byte {
	if len(b) < 4 {
		return errResp(opPrepWriteReq, 0, ecodeInvalidPDU)
	}
	handle := binary.LittleEndian.Uint16(b)
	offset := binary.LittleEndian.Uint16(b[2:])
	data := b[4:]

	if _, ok := s.table.FindByHandle(handle); !ok {
		return errResp(opPrepWriteReq, handle, ecodeInvalidHandle)
	}

	s.mu.Lock()
	code := cs.prep.push(handle, offset, data)
	s.mu.Unlock()
	if code != ecodeSuccess {
		return errResp(opPrepWriteReq, handle, code)
	}

	w := newPDUWriter(cs.mtu)
	w.WriteByteFit(byte(opPrepWriteResp))
	w.Chunk()
	w.WriteUint16Fit(handle)
	w.WriteUint16Fit(offset)
	w.WriteFit(data)
	w.CommitFit()
	return w.Bytes()
}

// handleExecuteWrite validates the whole queue for contiguity before
// applying any of it (ble_att_svr_prep_write_ok), then invokes each
// handle's write callback exactly once with its assembled value.
func (s *Server) handleExecuteWrite(conn Conn, cs *connState, b []byte) []byte {
	if len(b) != 1 {
		return errResp(opExecWriteReq, 0, ecodeInvalidPDU)
	}
	flags := b[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	if flags == 0 {
		cs.prep.clear()
		return []byte{byte(opExecWriteResp)}
	}

	if handle, code := cs.prep.validate(); code != ecodeSuccess {
		cs.prep.clear()
		return errResp(opExecWriteReq, handle, code)
	}

	for _, handle := range cs.prep.handles() {
		a, ok := s.table.FindByHandle(handle)
		if !ok {
			cs.prep.clear()
			return errResp(opExecWriteReq, handle, ecodeInvalidHandle)
		}
		value := assembleRun(cs.prep.runFor(handle))
		s.mu.Unlock()
		_, status := invoke(&a, conn, AccessWrite, 0, value)
		s.mu.Lock()
		if status != ecodeSuccess {
			cs.prep.clear()
			return errResp(opExecWriteReq, handle, status)
		}
	}
	cs.prep.clear()
	return []byte{byte(opExecWriteResp)}
}

// handleNotify delivers an inbound Handle Value Notification or
// Indication to the configured NotificationSink. Indications are
// confirmed once the sink returns; a nil sink silently discards the
// value (there is nothing useful to send back for a Notification, and
// an Indication still must be confirmed so the peer's timer clears).
func (s *Server) handleNotify(conn Conn, b []byte, indication bool) []byte {
	if len(b) < 2 {
		return nil
	}
	handle := binary.LittleEndian.Uint16(b)
	data := b[2:]
	if handle == 0 {
		return nil
	}

	if s.sink != nil {
		s.sink.Notify(conn, handle, data, indication)
	}
	if indication {
		return []byte{byte(opHandleCnf)}
	}
	return nil
}

func readHandleRange(b []byte) (start, end uint16) {
	return binary.LittleEndian.Uint16(b), binary.LittleEndian.Uint16(b[2:])
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
