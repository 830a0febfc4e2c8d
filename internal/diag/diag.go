// Package diag renders a snapshot of a running server for operators,
// using json-iterator/go rather than encoding/json for the
// marshaling hot path, matching the rest of the stack's preference
// for that library over the standard library equivalent.
package diag

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AttributeSnapshot is one row of a Table dump.
type AttributeSnapshot struct {
	Handle uint16 `json:"handle"`
	UUID   string `json:"uuid"`
	Flags  uint8  `json:"flags"`
}

// PrepareEntrySnapshot is one queued prepare-write entry belonging to
// a single connection, surfaced for debugging a stuck Execute Write.
type PrepareEntrySnapshot struct {
	Handle uint16 `json:"handle"`
	Offset uint16 `json:"offset"`
	Length int    `json:"length"`
}

// ConnectionSnapshot summarizes one connection's negotiated state.
type ConnectionSnapshot struct {
	ID      string                 `json:"id"`
	MTU     uint16                 `json:"mtu"`
	Prepare []PrepareEntrySnapshot `json:"prepare,omitempty"`
}

// Snapshot is the full dump handed to Dump: the attribute table plus
// every live connection's state. It has no dependency on package att
// so that att never needs to import diag (diag is a leaf consumer,
// wired up by cmd/attserver-demo).
type Snapshot struct {
	Attributes  []AttributeSnapshot  `json:"attributes"`
	Connections []ConnectionSnapshot `json:"connections"`
}

// Dump renders s as indented JSON.
func Dump(s Snapshot) (string, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
