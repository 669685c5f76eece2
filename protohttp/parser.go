package protohttp

import (
	"bytes"
	"strconv"
	"strings"

	"sockettrace/tracking"
)

// chunk is one Append call's worth of bytes, remembered so ParseMessages
// can report a BufferPosition relative to the events the caller
// submitted: Append is called once per contiguous event, in order,
// before ParseMessages.
type chunk struct {
	data        []byte
	timestampNs uint64
}

// Parser incrementally parses a concatenated byte stream into HTTP/1.x
// Messages. It is stateless across ExtractMessages calls: callers
// construct a fresh Parser per DataStream.ExtractMessages invocation.
type Parser struct {
	chunks []chunk
}

// NewParser returns a Parser with no buffered input.
func NewParser() *Parser { return &Parser{} }

// Append records one contiguous event's bytes for the next ParseMessages
// call.
func (p *Parser) Append(data []byte, timestampNs uint64) {
	p.chunks = append(p.chunks, chunk{data: data, timestampNs: timestampNs})
}

// ParseMessages parses as many complete HTTP/1.x messages as possible
// out of the concatenated chunks, in dir's grammar (request-line vs
// status-line), appending them to out.
func (p *Parser) ParseMessages(dir tracking.MessageDirection, out *[]Message) tracking.ParseResult {
	concat, lengths, timestamps := p.concatenate()

	consumed := 0
	for consumed < len(concat) {
		msg, n, ok := parseOne(dir, concat[consumed:], timestampAt(lengths, timestamps, consumed))
		if !ok {
			break
		}
		*out = append(*out, msg)
		consumed += n
	}

	chunkIdx, byteOffset := normalizePosition(lengths, consumed)
	return tracking.ParseResult{EndPosition: tracking.BufferPosition{
		SeqNumIndex: chunkIdx,
		ByteOffset:  byteOffset,
	}}
}

// concatenate joins all appended chunks into one buffer, alongside each
// chunk's length and timestamp.
func (p *Parser) concatenate() (concat []byte, lengths []int, timestamps []uint64) {
	lengths = make([]int, len(p.chunks))
	timestamps = make([]uint64, len(p.chunks))
	total := 0
	for i, c := range p.chunks {
		lengths[i] = len(c.data)
		timestamps[i] = c.timestampNs
		total += len(c.data)
	}
	concat = make([]byte, 0, total)
	for _, c := range p.chunks {
		concat = append(concat, c.data...)
	}
	return concat, lengths, timestamps
}

// timestampAt returns the timestamp of the chunk containing absolute
// offset into the concatenated buffer (a floor search: offset may land
// anywhere inside a chunk, not just on a boundary).
func timestampAt(lengths []int, timestamps []uint64, offset int) uint64 {
	for i, n := range lengths {
		if offset < n {
			return timestamps[i]
		}
		offset -= n
	}
	if len(timestamps) == 0 {
		return 0
	}
	return timestamps[len(timestamps)-1]
}

// normalizePosition converts an absolute offset into the concatenated
// buffer into the (chunk index, byte offset within that chunk) shape
// DataStream expects, walking chunk boundaries forward so that
// consuming exactly through the end of chunk i reports (i+1, 0) rather
// than (i, len(chunk i)): offset must be 0 whenever the first event has
// been fully consumed.
func normalizePosition(lengths []int, offset int) (int, int) {
	idx := 0
	for idx < len(lengths) && offset >= lengths[idx] {
		offset -= lengths[idx]
		idx++
	}
	return idx, offset
}

// parseOne parses a single request or response out of buf, returning
// the message, the number of bytes consumed, and whether a complete
// message was found (false means "need more data").
func parseOne(dir tracking.MessageDirection, buf []byte, timestampNs uint64) (Message, int, bool) {
	headerEnd := bytes.Index(buf, []byte("\r\n\r\n"))
	if headerEnd == -1 {
		return Message{}, 0, false
	}
	bodyStart := headerEnd + 4

	lines := strings.Split(string(buf[:headerEnd]), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return Message{}, 0, false
	}

	msg := Message{TimestampNs: timestampNs, Headers: map[string][]string{}}
	switch dir {
	case tracking.MessageDirectionRequest:
		method, path, ok := parseRequestLine(lines[0])
		if !ok {
			return Message{}, 0, false
		}
		msg.Kind = MessageKindRequest
		msg.Method = method
		msg.Path = path
	case tracking.MessageDirectionResponse:
		status, ok := parseStatusLine(lines[0])
		if !ok {
			return Message{}, 0, false
		}
		msg.Kind = MessageKindResponse
		msg.StatusCode = status
	default:
		return Message{}, 0, false
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		msg.Headers[name] = append(msg.Headers[name], value)
	}

	contentLength, err := headerInt(msg.Headers, "Content-Length")
	if err != nil {
		return Message{}, 0, false
	}
	if bodyStart+contentLength > len(buf) {
		return Message{}, 0, false // body not fully buffered yet
	}

	msg.Body = append([]byte(nil), buf[bodyStart:bodyStart+contentLength]...)
	return msg, bodyStart + contentLength, true
}

func headerInt(headers map[string][]string, name string) (int, error) {
	for k, vs := range headers {
		if !strings.EqualFold(k, name) || len(vs) == 0 {
			continue
		}
		return strconv.Atoi(strings.TrimSpace(vs[0]))
	}
	return 0, nil
}

func parseRequestLine(line string) (method, path string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 || !strings.HasPrefix(fields[2], "HTTP/") {
		return "", "", false
	}
	return fields[0], fields[1], true
}

func parseStatusLine(line string) (int, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return code, true
}
