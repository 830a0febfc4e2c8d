package att

// This file exposes read-only introspection from which a caller can
// assemble an internal/diag snapshot; it has no effect on dispatch.

// All returns every registered attribute, in handle order.
func (t *Table) All() []Attribute {
	out := make([]Attribute, len(t.aa))
	copy(out, t.aa)
	return out
}

// PrepEntryView is a read-only view of one queued prepare-write entry.
type PrepEntryView struct {
	Handle uint16
	Offset uint16
	Length int
}

// Conns returns the set of currently tracked connections.
func (s *Server) Conns() []Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

// ConnMTU returns conn's negotiated MTU, or !ok if conn is unknown.
func (s *Server) ConnMTU(conn Conn) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.conns[conn]
	if !ok {
		return 0, false
	}
	return cs.mtu, true
}

// ConnPrepareQueue returns conn's queued prepare-write entries.
func (s *Server) ConnPrepareQueue(conn Conn) []PrepEntryView {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.conns[conn]
	if !ok {
		return nil
	}
	out := make([]PrepEntryView, len(cs.prep.entries))
	for i, e := range cs.prep.entries {
		out[i] = PrepEntryView{Handle: e.handle, Offset: e.offset, Length: len(e.data)}
	}
	return out
}
