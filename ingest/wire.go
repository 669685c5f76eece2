// Package ingest decodes the kernel probe's fixed-layout ring-buffer
// records into tracking's event types and dispatches them to a
// *tracking.Registry. It mirrors the teacher's
// xdpcollector/xdp_collector_methods.go consume() loop shape — read a
// ringbuf.Record, decode its RawSample with encoding/binary, dispatch —
// but never loads or attaches a BPF program: that half of
// xdpcollector, loading and attaching the kernel probe itself, is not
// implemented here. The *ringbuf.Reader is always supplied by the
// caller.
package ingest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"sockettrace/tracking"
)

// recordKind tags which of the three event shapes a ring-buffer record
// carries, as the first byte of its raw sample.
type recordKind uint8

const (
	recordKindOpen  recordKind = 0
	recordKindClose recordKind = 1
	recordKindData  recordKind = 2
)

// eventType mirrors the probe's per-syscall event type tag, carried on
// data records only.
type eventType uint8

const (
	eventTypeWrite eventType = 0
	eventTypeSend  eventType = 1
	eventTypeRead  eventType = 2
	eventTypeRecv  eventType = 3
)

func (e eventType) direction() tracking.EventDirection {
	switch e {
	case eventTypeWrite, eventTypeSend:
		return tracking.EventDirectionSend
	case eventTypeRead, eventTypeRecv:
		return tracking.EventDirectionRecv
	default:
		return tracking.EventDirectionUnknown
	}
}

// connIDWire is the byte layout of conn_id_t, common to all three event
// shapes.
type connIDWire struct {
	PID            uint32
	PIDStartTimeNs uint64
	FD             uint32
	Generation     uint32
}

func (w connIDWire) toConnID() tracking.ConnectionID {
	return tracking.ConnectionID{
		PID:            w.PID,
		PIDStartTimeNs: w.PIDStartTimeNs,
		FD:             w.FD,
		Generation:     w.Generation,
	}
}

// trafficClassWire is the byte layout of traffic_class_t.
type trafficClassWire struct {
	Protocol uint8
	Role     uint8
	_        [6]byte // padding, keeps the struct 8-byte aligned
}

func (w trafficClassWire) toTrafficClass() tracking.TrafficClass {
	return tracking.TrafficClass{
		Protocol: tracking.Protocol(w.Protocol),
		Role:     tracking.Role(w.Role),
	}
}

// openHeaderWire is the fixed part of an open-event record: conn_id,
// timestamp_ns, traffic_class, and a sockaddr tagged by address family.
type openHeaderWire struct {
	ConnID       connIDWire
	TimestampNs  uint64
	TrafficClass trafficClassWire
	AddrFamily   uint16 // 4 = IPv4, 6 = IPv6
	Port         uint16
	Addr         [16]byte
}

// closeWire is the fixed layout of a close-event record.
type closeWire struct {
	ConnID      connIDWire
	TimestampNs uint64
	WrSeqNum    uint64
	RdSeqNum    uint64
}

// dataHeaderWire is the fixed part of a data-event record; msg_bytes
// (MsgSize bytes) follows immediately after in the raw sample.
type dataHeaderWire struct {
	ConnID       connIDWire
	TimestampNs  uint64
	TrafficClass trafficClassWire
	EventType    uint8
	_            [7]byte
	SeqNum       uint64
	MsgSize      uint32
}

// DecodeOpen parses a raw ring-buffer sample into a ConnOpenInfo. The
// caller must have already stripped and checked the leading kind byte.
func DecodeOpen(raw []byte) (tracking.ConnOpenInfo, error) {
	var hdr openHeaderWire
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &hdr); err != nil {
		return tracking.ConnOpenInfo{}, fmt.Errorf("ingest: decode open event: %w", err)
	}
	return tracking.ConnOpenInfo{
		ConnID:       hdr.ConnID.toConnID(),
		TimestampNs:  hdr.TimestampNs,
		TrafficClass: hdr.TrafficClass.toTrafficClass(),
		SockAddr:     decodeSockAddr(hdr.AddrFamily, hdr.Port, hdr.Addr),
	}, nil
}

// DecodeClose parses a raw ring-buffer sample into a ConnCloseInfo.
func DecodeClose(raw []byte) (tracking.ConnCloseInfo, error) {
	var w closeWire
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &w); err != nil {
		return tracking.ConnCloseInfo{}, fmt.Errorf("ingest: decode close event: %w", err)
	}
	return tracking.ConnCloseInfo{
		ConnID:      w.ConnID.toConnID(),
		TimestampNs: w.TimestampNs,
		SendSeqNum:  w.WrSeqNum,
		RecvSeqNum:  w.RdSeqNum,
	}, nil
}

// DecodeData parses a raw ring-buffer sample into a SocketDataEvent. The
// message payload is the tail of raw, sized by the header's MsgSize,
// truncated defensively to whatever bytes actually remain (the probe
// caps msg size on its side; a short raw buffer here is itself a sign
// of a malformed record, not a reason to panic).
func DecodeData(raw []byte) (tracking.SocketDataEvent, error) {
	r := bytes.NewReader(raw)
	var hdr dataHeaderWire
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return tracking.SocketDataEvent{}, fmt.Errorf("ingest: decode data event header: %w", err)
	}

	remaining := raw[len(raw)-r.Len():]
	msgSize := int(hdr.MsgSize)
	if msgSize > len(remaining) {
		msgSize = len(remaining)
	}
	msgBytes := make([]byte, msgSize)
	copy(msgBytes, remaining[:msgSize])

	return tracking.SocketDataEvent{
		ConnID:       hdr.ConnID.toConnID(),
		TrafficClass: hdr.TrafficClass.toTrafficClass(),
		Direction:    eventType(hdr.EventType).direction(),
		TimestampNs:  hdr.TimestampNs,
		SeqNum:       hdr.SeqNum,
		MsgBytes:     msgBytes,
	}, nil
}

func decodeSockAddr(family uint16, port uint16, addr [16]byte) *sockAddr {
	return &sockAddr{family: family, port: port, addr: addr}
}

// sockAddr is a minimal net.Addr backed by the raw wire bytes, letting
// tracking.ConnectionTracker reuse net.SplitHostPort-based parsing
// without ingest depending on tracking's internals.
type sockAddr struct {
	family uint16
	port   uint16
	addr   [16]byte
}

func (s *sockAddr) Network() string { return "tcp" }

func (s *sockAddr) String() string {
	if s.family == 6 {
		ip := net.IP(s.addr[:16])
		return fmt.Sprintf("[%s]:%d", ip, s.port)
	}
	ip := net.IP(s.addr[:4])
	return fmt.Sprintf("%s:%d", ip, s.port)
}
