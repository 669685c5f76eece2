package tracking

import (
	"fmt"
	"reflect"
	"sort"

	"sockettrace/tracklog"
)

// DataStream buffers one direction's data events keyed by sequence
// number, and owns the parser carry-over offset and the (at most one)
// typed message queue produced by ExtractMessages.
//
// The message queue is held as a tagged sum: msgType records the first
// T ever requested, and messages holds the underlying []T as an any.
// Switching T mid-life is a hard check, chosen over a generic
// DataStream[T] struct so ConnectionTracker can keep send/recv as two
// plain fields of the same type.
type DataStream struct {
	events      map[uint64]SocketDataEvent
	erasedCount uint64
	offset      int
	msgType     reflect.Type
	messages    any
}

// NewDataStream returns an empty stream.
func NewDataStream() *DataStream {
	return &DataStream{events: make(map[uint64]SocketDataEvent)}
}

// AddEvent inserts event at seqNum. Re-inserting an already-present
// seqNum is a logged anomaly; the first-seen event wins and the new one
// is dropped.
func (ds *DataStream) AddEvent(seqNum uint64, event SocketDataEvent) {
	if seqNum < ds.erasedCount {
		tracklog.Errorf("DataStream.AddEvent: seq_num %d already erased (erased_count=%d), dropping", seqNum, ds.erasedCount)
		return
	}
	if _, exists := ds.events[seqNum]; exists {
		tracklog.Errorf("DataStream.AddEvent: duplicate data event at seq_num %d, dropping", seqNum)
		return
	}
	ds.events[seqNum] = event
}

// Reset clears all buffered events, discards the parsed queue, and
// zeroes offset. Used on long inactivity when the connection is alive
// but the buffered bytes are stale (ConnectionTracker.HandleInactivity).
func (ds *DataStream) Reset() {
	ds.events = make(map[uint64]SocketDataEvent)
	ds.erasedCount = 0
	ds.offset = 0
	ds.msgType = nil
	ds.messages = nil
}

// sortedContiguousPrefix returns, in seq_num order, the events starting
// at the lowest stored seq_num up to (but not including) the first gap.
func (ds *DataStream) sortedContiguousPrefix() []uint64 {
	if len(ds.events) == 0 {
		return nil
	}
	keys := make([]uint64, 0, len(ds.events))
	for k := range ds.events {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	nextSeqNum := keys[0]
	prefix := make([]uint64, 0, len(keys))
	for _, k := range keys {
		if k != nextSeqNum {
			break
		}
		prefix = append(prefix, k)
		nextSeqNum++
	}
	return prefix
}

func typeTag[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// checkType enforces that a DataStream holds at most one message type
// for its lifetime. It initializes msgType/messages on first use and
// panics on a type switch, which should never happen outside of a
// caller bug.
func checkType[T any](ds *DataStream) *[]T {
	t := typeTag[T]()
	if ds.msgType == nil {
		ds.msgType = t
		ds.messages = []T{}
	} else if ds.msgType != t {
		panic(fmt.Sprintf("tracking: DataStream already holds message type %s, cannot switch to %s", ds.msgType, t))
	}
	typed := ds.messages.([]T)
	return &typed
}

// ExtractMessages runs parser over the longest contiguous prefix of
// buffered events starting at the lowest stored seq_num, appends newly
// parsed messages of type T to the stream's owned queue, and returns the
// queue (cumulative across calls).
func ExtractMessages[T any](ds *DataStream, dir MessageDirection, parser Parser[T]) []T {
	typedPtr := checkType[T](ds)
	typed := *typedPtr

	prefix := ds.sortedContiguousPrefix()
	origOffset := ds.offset

	for i, seqNum := range prefix {
		event := ds.events[seqNum]
		msg := event.MsgBytes
		if i == 0 && ds.offset != 0 {
			if ds.offset > len(msg) {
				panic(fmt.Sprintf("tracking: DataStream offset %d exceeds msg_size %d of first event (seq_num=%d)", ds.offset, len(msg), seqNum))
			}
			msg = msg[ds.offset:]
			ds.offset = 0
		}
		parser.Append(msg, event.TimestampNs)
	}

	lenBefore := len(typed)
	result := parser.ParseMessages(dir, &typed)
	ds.messages = typed

	// The parser saw the first event starting at origOffset, so a position
	// inside that event is relative to origOffset.
	newOffset := result.EndPosition.ByteOffset
	if result.EndPosition.SeqNumIndex == 0 {
		newOffset += origOffset
	}

	if len(typed) == lenBefore && result.EndPosition.SeqNumIndex == 0 && newOffset != origOffset {
		// Parser produced no new messages, yet claims to have moved the
		// offset within the still-unconsumed first event. A parser is
		// stateless across calls, so it cannot have made real partial
		// progress without a message to show for it: log it and leave
		// state unchanged.
		tracklog.Warnf("DataStream.ExtractMessages: parser progress anomaly: no messages produced but offset %d != prior offset %d", newOffset, origOffset)
		ds.offset = origOffset
		return typed
	}

	for i := 0; i < result.EndPosition.SeqNumIndex && i < len(prefix); i++ {
		delete(ds.events, prefix[i])
		ds.erasedCount++
	}
	ds.offset = newOffset

	return typed
}

// Empty reports whether the event map is empty and either no typed queue
// exists yet or the typed queue of type T is itself empty.
func Empty[T any](ds *DataStream) bool {
	if len(ds.events) != 0 {
		return false
	}
	if ds.msgType == nil {
		return true
	}
	t := typeTag[T]()
	if ds.msgType != t {
		panic(fmt.Sprintf("tracking: DataStream holds message type %s, cannot query Empty[%s]", ds.msgType, t))
	}
	return len(ds.messages.([]T)) == 0
}
