package tracking

// MessageDirection tells a Parser which grammar to apply: a stream's
// bytes are requests from one role's point of view and responses from
// the other's, independent of which physical syscall direction
// (EventDirectionSend/Recv) carried them. ConnectionTracker.ReqData and
// RespData pick the physical stream; the caller of ExtractMessages
// supplies the matching MessageDirection.
type MessageDirection int

const (
	MessageDirectionUnknown MessageDirection = iota
	MessageDirectionRequest
	MessageDirectionResponse
)

// BufferPosition is an end position within the concatenated buffer a
// DataStream submitted to a Parser: events [0, SeqNumIndex) are fully
// consumed, and the event at SeqNumIndex has ByteOffset bytes already
// consumed.
type BufferPosition struct {
	SeqNumIndex int
	ByteOffset  int
}

// ParseResult is what ParseMessages returns after appending zero or more
// complete messages to its output queue.
type ParseResult struct {
	EndPosition BufferPosition
}

// Parser is the capability a protocol plug-in (HTTP/1.x, HTTP/2, ...)
// exposes to DataStream.ExtractMessages. A Parser is treated as
// stateless across ExtractMessages calls: partial trailing bytes are
// retained by the caller via DataStream.offset, not by the parser.
//
// Append is called once per contiguous event, in submission order,
// before ParseMessages. ParseMessages appends fully parsed messages to
// out and returns the first not-yet-consumed byte position.
type Parser[T any] interface {
	Append(data []byte, timestampNs uint64)
	ParseMessages(dir MessageDirection, out *[]T) ParseResult
}
