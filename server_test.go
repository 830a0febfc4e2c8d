package att

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// notifyRecord is one inbound Handle Value Notification/Indication
// captured by testSink during TestServerDispatch.
type notifyRecord struct {
	conn       Conn
	handle     uint16
	data       []byte
	indication bool
}

type testSink struct {
	got []notifyRecord
}

func (s *testSink) Notify(conn Conn, handle uint16, data []byte, indication bool) {
	s.got = append(s.got, notifyRecord{conn, handle, append([]byte(nil), data...), indication})
}

// buildTestTable assembles a small, entirely 16-bit-UUID attribute
// table: two services, a read/write device-name characteristic, and
// a write-only characteristic, mirroring the shape (if not the exact
// layout) of the teacher's TestServing fixture (l2cap_test.go) but
// driven directly through Server.Dispatch rather than a shim process.
func buildTestTable(name *[]byte, lastWrite *[]byte) *Table {
	tb := NewTable(0, nil)

	tb.RegisterUUID16(0x2800, FlagRead, StaticValue([]byte{0x00, 0x18}), nil)                          // 1: Generic Access
	tb.RegisterUUID16(0x2803, FlagRead, StaticValue([]byte{0x02, 0x03, 0x00, 0x00, 0x2a}), nil)         // 2: char decl -> handle 3
	tb.RegisterUUID16(0x2a00, FlagRead|FlagWrite, func(ctx *AccessContext) ([]byte, byte) { // 3: device name
		switch ctx.Op {
		case AccessRead:
			if ctx.Offset > len(*name) {
				return nil, ecodeInvalidOffset
			}
			return (*name)[ctx.Offset:], ecodeSuccess
		case AccessWrite:
			*name = append([]byte(nil), ctx.Data...)
			return nil, ecodeSuccess
		}
		return nil, ecodeUnlikely
	}, nil)
	tb.RegisterUUID16(0x2800, FlagRead, StaticValue([]byte{0x01, 0x18}), nil)                  // 4: Generic Attribute
	tb.RegisterUUID16(0x2803, FlagRead, StaticValue([]byte{0x08, 0x06, 0x00, 0x01, 0x29}), nil) // 5: char decl -> handle 6
	tb.RegisterUUID16(0x2901, FlagWrite, func(ctx *AccessContext) ([]byte, byte) { // 6: aggregate format, write-only
		if ctx.Op != AccessWrite {
			return nil, ecodeReadNotPerm
		}
		*lastWrite = append([]byte(nil), ctx.Data...)
		return nil, ecodeSuccess
	}, nil)

	return tb
}

func h2b(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestServerDispatch(t *testing.T) {
	name := []byte("demo")
	var lastWrite []byte
	table := buildTestTable(&name, &lastWrite)
	sink := &testSink{}
	srv := NewServer(table, WithLocalMTU(100), WithNotificationSink(sink))

	type conn struct{ id int }
	c := &conn{id: 1}
	srv.Connect(c)

	step := func(label, send, want string) []byte {
		t.Helper()
		resp := srv.Dispatch(c, h2b(t, send))
		if want == "" {
			assert.Nil(t, resp, label)
			return nil
		}
		assert.Equal(t, want, hex.EncodeToString(resp), label)
		return resp
	}

	step("exchange mtu", "026400", "036400")
	step("exchange mtu again -- rejected", "026400", "0102000006")

	step("find information [1,6]", "0401000600",
		"050101000028020003280300002a040000280500032806000129")

	step("find by type value 0x2800=0018 [1,6] -- only handle 1 carries this exact value", "060100060000280018",
		"0701000100")

	step("read by type 0x2803 [1,6] -- two characteristic decls", "08010006000328",
		"09070200020300002a05000806000129")

	step("read by group type 0x2800 [1,6] -- second group runs off the table end", "10010006000028",
		"11060100030000180400ffff0118")

	step("read device name -- 'demo'", "0a0300", "0b"+hex.EncodeToString([]byte("demo")))

	step("write device name -- 'srv'", "12"+"0300"+hex.EncodeToString([]byte("srv")), "13")
	assert.Equal(t, "srv", string(name))

	step("read write-only attribute -- not permitted", "0a0600", "010a060002")
	step("read invalid handle -- invalid handle", "0a6300", "010a630001")

	step("read blob on short value -- attribute not long", "0c030000", "010c03000b")

	step("write command to write-only attribute -- no response", "52"+"0600"+hex.EncodeToString([]byte("X")), "")
	assert.Equal(t, "X", string(lastWrite))

	step("read multiple [1,4] -- concatenated values", "0e"+"0100"+"0400", "0f00180118")

	step("prepare write handle 3 offset 0 'ab'", "16"+"0300"+"0000"+hex.EncodeToString([]byte("ab")),
		"17"+"0300"+"0000"+hex.EncodeToString([]byte("ab")))
	step("prepare write handle 3 offset 2 'cd'", "16"+"0300"+"0200"+hex.EncodeToString([]byte("cd")),
		"17"+"0300"+"0200"+hex.EncodeToString([]byte("cd")))
	step("execute write -- commit", "1801", "19")
	assert.Equal(t, "abcd", string(name))

	step("read device name -- 'abcd'", "0a0300", "0b"+hex.EncodeToString([]byte("abcd")))

	step("prepare write handle 3 offset 0 'zz' then cancel", "16"+"0300"+"0000"+hex.EncodeToString([]byte("zz")),
		"17"+"0300"+"0000"+hex.EncodeToString([]byte("zz")))
	step("execute write -- cancel", "1800", "19")
	assert.Equal(t, "abcd", string(name), "cancel must not apply the queued write")

	step("prepare write handle 3 offset 0 'hi'", "16"+"0300"+"0000"+hex.EncodeToString([]byte("hi")),
		"17"+"0300"+"0000"+hex.EncodeToString([]byte("hi")))
	step("prepare write handle 3 offset 5 'x' -- gap", "16"+"0300"+"0500"+hex.EncodeToString([]byte("x")),
		"17"+"0300"+"0500"+hex.EncodeToString([]byte("x")))
	step("execute write -- gap rejected", "1801", "0118030007")
	assert.Equal(t, "abcd", string(name), "a rejected execute write must not apply any part of the queue")

	step("inbound notification", "1b"+"0a00"+hex.EncodeToString([]byte("hey")), "")
	step("inbound indication -- confirmed", "1d"+"0b00"+hex.EncodeToString([]byte("ind")), "1e")
	step("inbound notification with zero handle -- dropped", "1b0000", "")

	require.Len(t, sink.got, 2)
	assert.Equal(t, notifyRecord{c, uint16(10), []byte("hey"), false}, sink.got[0])
	assert.Equal(t, notifyRecord{c, uint16(11), []byte("ind"), true}, sink.got[1])

	srv.Disconnect(c)
}

func TestServerDispatchEmptyPDU(t *testing.T) {
	srv := NewServer(NewTable(0, nil))
	assert.Nil(t, srv.Dispatch(1, nil))
}

func TestServerDispatchUnsupportedOpcode(t *testing.T) {
	srv := NewServer(NewTable(0, nil))
	resp := srv.Dispatch(1, []byte{0xff, 0x00})
	assert.Equal(t, "01ff000006", hex.EncodeToString(resp))
}

// TestServerDispatchFindByTypeValueGrouping exercises the scenario
// server_test.go previously never covered: a gap between matching
// attributes must split the response into separate (handle, end)
// pairs, even though every matching attribute shares the same type
// (no service-boundary semantics are involved here at all).
func TestServerDispatchFindByTypeValueGrouping(t *testing.T) {
	tb := NewTable(0, nil)
	tb.RegisterUUID16(0x1234, FlagRead, StaticValue([]byte{0xaa}), nil) // 1: match
	tb.RegisterUUID16(0x1234, FlagRead, StaticValue([]byte{0xaa}), nil) // 2: match, adjacent to 1
	tb.RegisterUUID16(0x1234, FlagRead, StaticValue([]byte{0xbb}), nil) // 3: same type, wrong value -- breaks the run
	tb.RegisterUUID16(0x1234, FlagRead, StaticValue([]byte{0xaa}), nil) // 4: match, but the run restarts here

	srv := NewServer(tb)
	resp := srv.Dispatch(1, h2b(t, "06"+"0100"+"0400"+"3412"+"aa"))
	assert.Equal(t, "070100020004000400", hex.EncodeToString(resp))
}

// TestServerDispatchReadByTypeTruncatesFirstOverlongValue covers the
// case where even the first matching attribute's value doesn't fit
// the channel MTU: it must be truncated and still committed as a
// single record, never dropped in favor of an empty response.
func TestServerDispatchReadByTypeTruncatesFirstOverlongValue(t *testing.T) {
	full := make([]byte, 25)
	for i := range full {
		full[i] = byte(i)
	}
	tb := NewTable(0, nil)
	tb.RegisterUUID16(0xabcd, FlagRead, StaticValue(full), nil) // handle 1

	srv := NewServer(tb) // cs.mtu is 23 before any MTU exchange
	resp := srv.Dispatch(1, h2b(t, "08"+"0100"+"ffff"+"cdab"))
	require.NotEmpty(t, resp)
	require.Equal(t, byte(opReadByTypeResp), resp[0])

	recLen := int(resp[1])
	valueLen := recLen - 2
	require.Len(t, resp, 2+recLen)
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(resp[2:4]))
	assert.Equal(t, full[:valueLen], resp[4:4+valueLen])
	assert.Less(t, valueLen, len(full), "value must have been truncated to fit the MTU")
}
