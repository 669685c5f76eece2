// Package tracking implements the connection tracker and data stream
// subsystem: per-connection state machines that ingest out-of-order
// open/data/close events, buffer data events by sequence number,
// reassemble contiguous byte ranges, drive an incremental protocol
// parser, and decide when a tracker becomes eligible for destruction.
package tracking

import (
	"fmt"
	"net"
)

// Protocol identifies the application-layer wire format observed on a
// connection.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolHTTP
	ProtocolHTTP2
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "HTTP"
	case ProtocolHTTP2:
		return "HTTP2"
	default:
		return "Unknown"
	}
}

// Role identifies whether this endpoint of the connection initiates
// (Requestor) or answers (Responder) application-layer messages.
type Role int

const (
	RoleUnknown Role = iota
	RoleRequestor
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleRequestor:
		return "Requestor"
	case RoleResponder:
		return "Responder"
	default:
		return "Unknown"
	}
}

// TrafficClass is (protocol, role). protocol == Unknown iff role ==
// Unknown; once set to a non-Unknown value it is immutable for the life
// of a tracker (see ConnectionTracker.setTrafficClass).
type TrafficClass struct {
	Protocol Protocol
	Role     Role
}

func (t TrafficClass) isUnknown() bool {
	return t.Protocol == ProtocolUnknown && t.Role == RoleUnknown
}

// ConnectionID uniquely identifies a connection as observed by the kernel
// probe. generation increases monotonically each time (pid, fd) is
// reused after a close.
type ConnectionID struct {
	PID            uint32
	PIDStartTimeNs uint64
	FD             uint32
	Generation     uint32
}

func (c ConnectionID) String() string {
	return fmt.Sprintf("pid=%d start=%d fd=%d gen=%d", c.PID, c.PIDStartTimeNs, c.FD, c.Generation)
}

// EventDirection tags the syscall family a data event came from.
type EventDirection int

const (
	EventDirectionUnknown EventDirection = iota
	EventDirectionSend
	EventDirectionRecv
)

// ConnOpenInfo carries the fields delivered with an open event.
type ConnOpenInfo struct {
	ConnID       ConnectionID
	TimestampNs  uint64
	TrafficClass TrafficClass
	// SockAddr is the raw remote address as delivered by the probe; it is
	// parsed into RemoteAddr/RemotePort by ConnectionTracker.
	SockAddr net.Addr
}

// ConnCloseInfo carries the fields delivered with a close event.
type ConnCloseInfo struct {
	ConnID      ConnectionID
	TimestampNs uint64
	SendSeqNum  uint64
	RecvSeqNum  uint64
}

// OpenInfo is the tracker-owned, populated-at-most-once record of a
// connection's open event.
type OpenInfo struct {
	TimestampNs uint64
	RemoteAddr  string
	RemotePort  uint16
	set         bool
}

// CloseInfo is the tracker-owned, populated-at-most-once record of a
// connection's close event.
type CloseInfo struct {
	TimestampNs uint64
	SendSeqNum  uint64
	RecvSeqNum  uint64
	set         bool
}

// SocketDataEvent is one buffered read/recv/write/send payload.
type SocketDataEvent struct {
	ConnID       ConnectionID
	TrafficClass TrafficClass
	Direction    EventDirection
	TimestampNs  uint64
	SeqNum       uint64
	MsgBytes     []byte
}
