// Package protohttp is an HTTP/1.x Parser[Message] plug-in for
// tracking.DataStream. It exists so the core's generic ExtractMessages
// machinery has a real T to run against; the grammar itself is
// intentionally minimal (no chunked transfer-encoding, no trailers),
// since concrete protocol grammars are plug-ins, not core decision
// logic.
package protohttp

// MessageKind distinguishes a parsed request from a parsed response,
// since both share the Message shape.
type MessageKind int

const (
	MessageKindRequest MessageKind = iota
	MessageKindResponse
)

// Message is one fully parsed HTTP/1.x request or response.
type Message struct {
	Kind        MessageKind
	TimestampNs uint64

	Method     string // request only
	Path       string // request only
	StatusCode int    // response only

	Headers map[string][]string
	Body    []byte
}
