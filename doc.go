// Package att implements the Bluetooth Attribute Protocol (ATT)
// server role: an in-memory attribute table, an access gateway that
// routes reads and writes to application callbacks, the two-phase
// Prepare Write / Execute Write queue, and a PDU dispatcher that
// handles every ATT request, command, notification, and indication
// opcode.
//
// STATUS
//
// This package implements the server side of the protocol only:
// building and answering requests against a local attribute table.
// It does not implement the client role (sending requests to a remote
// server), GATT profile semantics above the attribute layer, or any
// particular transport -- callers are expected to frame PDUs
// themselves (e.g. over L2CAP fixed channel 0x0004) and hand each one
// to Server.Dispatch.
//
// USAGE
//
// Build an attribute table, register attributes with access
// callbacks, and dispatch incoming PDUs against it:
//
//     table := att.NewTable(0, nil)
//     table.RegisterUUID16(0x2800, att.FlagRead, nil, nil) // Primary Service
//
//     count := 0
//     table.RegisterUUID16(0x2a00, att.FlagRead|att.FlagWrite,
//         func(ctx *att.AccessContext) ([]byte, byte) {
//             switch ctx.Op {
//             case att.AccessRead:
//                 count++
//                 return []byte(fmt.Sprintf("count: %d", count)), 0
//             case att.AccessWrite:
//                 log.Println("wrote:", string(ctx.Data))
//                 return nil, 0
//             }
//             return nil, 0
//         }, nil)
//
//     srv := att.NewServer(table, att.WithLocalMTU(185))
//
//     // for each PDU read off the transport:
//     resp := srv.Dispatch(conn, pdu)
//     if resp != nil {
//         transport.Write(resp)
//     }
//
// Attribute values handled entirely by the caller (no dynamic
// behavior, no offset bookkeeping) can use att.StaticValue instead of
// writing an AccessCallback by hand.
//
// See cmd/attserver-demo for a runnable example over a plain TCP
// socket.
package att
